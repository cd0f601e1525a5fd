package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/db"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/models"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/registry"
)

// ListBadges 徽章列表
func (h *Handler) ListBadges(c *gin.Context) {
	badges, err := db.ListBadges(h.DB, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, badges)
}

// CreateBadge 新建徽章
func (h *Handler) CreateBadge(c *gin.Context) {
	var req models.BadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exists, err := db.BadgeExists(h.DB, req.Code, req.Issuer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "徽章已存在"})
		return
	}

	badge := badgeFromRequest(&req)
	if err := h.DB.Create(badge).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建失败"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": badge.ID})
}

// UpdateBadge 更新徽章
func (h *Handler) UpdateBadge(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 ID"})
		return
	}
	var req models.BadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	badge, err := db.GetBadgeByID(h.DB, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "徽章未找到"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	update := badgeFromRequest(&req)
	update.ID = badge.ID
	// 同步游标不归管理后台管，保持原值
	update.LastMarkUrlHolders = badge.LastMarkUrlHolders
	update.LastMarkUrlTransactions = badge.LastMarkUrlTransactions
	if err := h.DB.Save(update).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "徽章已更新"})
}

// DeleteBadge 删除徽章
func (h *Handler) DeleteBadge(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 ID"})
		return
	}
	if err := h.DB.Delete(&models.Badge{}, uint(id)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "徽章已删除"})
}

// InitBadges 从配置的 stellar.toml 注册表导入徽章目录
func (h *Handler) InitBadges(c *gin.Context) {
	if err := registry.ParseTomlFiles(c.Request.Context(), h.DB, h.RegistryURLs); err != nil {
		logrus.Errorf("注册表导入失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "导入失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "徽章目录已初始化"})
}

func badgeFromRequest(req *models.BadgeRequest) *models.Badge {
	aliases := req.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	raw, _ := json.Marshal(aliases)
	return &models.Badge{
		Code:             req.Code,
		Issuer:           req.Issuer,
		Difficulty:       req.Difficulty,
		SubDifficulty:    req.SubDifficulty,
		CategoryBroad:    req.CategoryBroad,
		CategoryNarrow:   req.CategoryNarrow,
		DescriptionShort: req.DescriptionShort,
		DescriptionLong:  req.DescriptionLong,
		Current:          req.Current,
		Instructions:     req.Instructions,
		IssueDate:        req.IssueDate,
		Image:            req.Image,
		Type:             req.Type,
		Aliases:          raw,
	}
}
