package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LocalOnly 中间件：管理后台只允许本地访问（127.0.0.1 或 ::1）
func LocalOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil || !ip.IsLoopback() {
			c.JSON(http.StatusForbidden, gin.H{"error": "禁止访问：仅允许本地访问"})
			c.Abort()
			return
		}
		c.Next()
	}
}
