package handler

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/service"
	"auto-advisor-go/pkg/log"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SearchRequest 是直接检索接口的请求体。
type SearchRequest struct {
	Criteria       model.SearchCriteria `json:"criteria"`
	Utterance      string               `json:"utterance"`
	RejectedBrands []string             `json:"rejectedBrands"`
}

// SearchHandler 负责处理绕过对话的结构化检索请求。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 按给定条件检索，必要时自动放宽或给出推荐。
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "请求体格式错误", nil)
		return
	}
	criteria, err := service.ValidateCriteria(req.Criteria)
	if err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	result, err := h.searchService.Search(c.Request.Context(), service.SearchRequest{
		Criteria:       criteria,
		Utterance:      req.Utterance,
		RejectedBrands: req.RejectedBrands,
	})
	if err != nil {
		log.Warnf("检索失败: %v", err)
		if errors.Is(err, service.ErrCatalogUnavailable) {
			respond(c, http.StatusServiceUnavailable, "车源目录暂时不可用", result)
			return
		}
		respond(c, statusFor(err), err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, "success", result)
}
