// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"auto-advisor-go/internal/middleware"
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/service"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

// statusFor 将业务错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyUtterance), errors.Is(err, service.ErrInvalidCriteria):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrMissingUser), errors.Is(err, model.ErrOrphanMemory):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrSessionOwnership):
		return http.StatusForbidden
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrCatalogUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}
