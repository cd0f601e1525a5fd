package handler

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/middleware"
)

// Handler 显式持有依赖，不用全局单例
type Handler struct {
	DB           *gorm.DB
	AuthTokens   map[string]bool // 验证接口的 token 白名单
	RegistryURLs []string        // POST /badges/init 导入的注册表地址
}

func New(dbConn *gorm.DB, authTokens []string, registryURLs []string) *Handler {
	tokens := make(map[string]bool, len(authTokens))
	for _, t := range authTokens {
		tokens[t] = true
	}
	return &Handler{DB: dbConn, AuthTokens: tokens, RegistryURLs: registryURLs}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", HealthzHandler)
	r.GET("/readyz", h.ReadinessHandler)

	r.POST("/verifyPathfinder", h.VerifyPathfinder)

	// 管理后台只允许本地访问
	admin := r.Group("/badges", middleware.LocalOnly())
	{
		admin.GET("", h.ListBadges)
		admin.POST("", h.CreateBadge)
		admin.PUT("/:id", h.UpdateBadge)
		admin.DELETE("/:id", h.DeleteBadge)
		admin.POST("/init", h.InitBadges)
	}
}
