package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/db"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/models"
)

// VerifyPathfinder 徽章验证接口：把 address 通过 holder 账本可达的
// 徽章记录投影成 quests 响应。内部错误只返回笼统的 500
func (h *Handler) VerifyPathfinder(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bad Request"})
		return
	}

	if !h.AuthTokens[req.Authentication] {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	quests, err := db.TransactionsForHolder(h.DB, req.Address)
	if err != nil {
		logrus.Errorf("查询 holder %s 失败: %v", req.Address, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, models.VerifyResponse{
		Quests:          quests,
		TotalReputation: "",
		ScfRole:         "",
		RoleAssigned:    true,
	})
}
