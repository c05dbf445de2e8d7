package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader 由上游网关注入的用户标识头。
	UserIDHeader = "X-User-ID"
	// UserIDKey 用户标识在 gin.Context 中的键。
	UserIDKey = "userID"
)

// UserIdentity 从请求头读取用户标识并存入上下文；WebSocket 握手无法自定义头部，允许使用 userId 查询参数。
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("userId"))
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "缺少用户标识",
				"data":    nil,
			})
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}
