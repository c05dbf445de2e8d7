package handler

import (
	"auto-advisor-go/internal/service"
	"auto-advisor-go/pkg/log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultRecallTopK = 5

// MemoryHandler 暴露用户长期记忆的召回接口。
type MemoryHandler struct {
	memoryService service.MemoryService
}

// NewMemoryHandler 创建一个新的 MemoryHandler。
func NewMemoryHandler(memoryService service.MemoryService) *MemoryHandler {
	return &MemoryHandler{memoryService: memoryService}
}

// Recall 按 query 召回当前用户的记忆。
func (h *MemoryHandler) Recall(c *gin.Context) {
	topK := defaultRecallTopK
	if raw := c.Query("topK"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respond(c, http.StatusBadRequest, "topK 必须是正整数", nil)
			return
		}
		topK = n
	}

	memories, err := h.memoryService.Recall(c.Request.Context(), currentUser(c), c.Query("query"), topK)
	if err != nil {
		log.Warnf("召回记忆失败: %v", err)
		respond(c, statusFor(err), err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, "success", memories)
}
