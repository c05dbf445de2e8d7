package handler

import (
	"auto-advisor-go/internal/service"
	"auto-advisor-go/pkg/log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理会话查询相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetSession 返回单个会话的详情。
func (h *ConversationHandler) GetSession(c *gin.Context) {
	view, err := h.service.GetSession(c.Request.Context(), currentUser(c), c.Param("sessionId"))
	if err != nil {
		log.Warnf("获取会话失败: %v", err)
		respond(c, statusFor(err), err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, "success", view)
}

// ListSessions 返回当前用户的全部会话。
func (h *ConversationHandler) ListSessions(c *gin.Context) {
	views, err := h.service.ListSessions(c.Request.Context(), currentUser(c))
	if err != nil {
		log.Error("ListSessions: failed", err)
		respond(c, http.StatusInternalServerError, "Failed to retrieve sessions", nil)
		return
	}
	respond(c, http.StatusOK, "success", views)
}

// GetTrace 返回会话的检索轨迹，limit 查询参数可选。
func (h *ConversationHandler) GetTrace(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		respond(c, http.StatusBadRequest, "limit 必须为正整数", nil)
		return
	}
	audits, err := h.service.GetTrace(c.Request.Context(), currentUser(c), c.Param("sessionId"), limit)
	if err != nil {
		log.Warnf("获取检索轨迹失败: %v", err)
		respond(c, statusFor(err), err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, "success", audits)
}
