package service

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/repository"
	"auto-advisor-go/pkg/log"
	"auto-advisor-go/pkg/metrics"
	"context"
	"fmt"
	"math"
	"time"
)

// SearchRequest 是一次放宽检索的输入。Utterance 与 Context 只用于让 oracle 排序候选。
type SearchRequest struct {
	Criteria       model.SearchCriteria
	Utterance      string
	Context        string
	RejectedBrands []string
}

// SearchService 在目录上执行精确检索，没有结果时逐步放宽条件，最后给出推荐。
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) (*model.SearchResult, error)
}

type searchService struct {
	catalog repository.CatalogRepository
	oracle  oracleCaller
	cfg     config.AssistantConfig
}

// NewSearchService 创建放宽检索引擎，oracle 可以为 nil。
func NewSearchService(catalog repository.CatalogRepository, oracle TextOracle, timeout time.Duration, cfg config.AssistantConfig) SearchService {
	return &searchService{
		catalog: catalog,
		oracle:  newOracleCaller(oracle, timeout),
		cfg:     cfg,
	}
}

// Search 返回的结果总是带有策略标签。目录在所有阶段都不可用时，
// 返回空的 recommended 结果以及 ErrCatalogUnavailable。
func (s *searchService) Search(ctx context.Context, req SearchRequest) (*model.SearchResult, error) {
	original := req.Criteria.Clone()
	limit := s.cfg.ResultLimit
	catalogUp := false

	items, err := s.catalog.Query(ctx, original, limit)
	if err != nil {
		log.Warnf("精确检索失败: %v", err)
	} else {
		catalogUp = true
		if len(items) >= s.cfg.MinResults && len(items) > 0 {
			metrics.RelaxationSteps.Observe(0)
			return &model.SearchResult{
				OriginalCriteria: original,
				CriteriaUsed:     original,
				Items:            items,
				Strategy:         model.StrategyExact,
				Confidence:       1.0,
			}, nil
		}
	}

	// 空条件只做一次精确检索，不放宽
	if original.IsEmpty() {
		return s.recommend(ctx, req, nil, catalogUp)
	}

	relaxer := newRelaxer(original, req.RejectedBrands, s.cfg)
	var steps []model.RelaxationStep
	for len(steps) < s.cfg.MaxRelaxationSteps {
		param := s.chooseParam(ctx, req, relaxer)
		if param == "" {
			break
		}
		step, ok := relaxer.apply(param, s.reorderSubstitutes(ctx, req, relaxer))
		if !ok {
			continue
		}
		steps = append(steps, step)

		items, err := s.catalog.Query(ctx, relaxer.current, limit)
		if err != nil {
			log.Warnf("放宽检索失败（第 %d 步）: %v", len(steps), err)
			continue
		}
		catalogUp = true
		if len(items) >= s.cfg.MinResults && len(items) > 0 {
			metrics.RelaxationSteps.Observe(float64(len(steps)))
			return &model.SearchResult{
				OriginalCriteria: original,
				CriteriaUsed:     relaxer.current.Clone(),
				Items:            items,
				Strategy:         model.StrategyRelaxed,
				RelaxationSteps:  steps,
				Confidence:       relaxedConfidence(len(steps)),
				Explanation:      describeSteps(steps),
			}, nil
		}
	}
	metrics.RelaxationSteps.Observe(float64(len(steps)))
	return s.recommend(ctx, req, steps, catalogUp)
}

// relaxedConfidence 随步数递减，不低于 0.3。
func relaxedConfidence(steps int) float64 {
	c := 0.9 - 0.1*float64(steps-1)
	return math.Max(0.3, math.Round(c*100)/100)
}

// chooseParam 在本轮可放宽的参数中选择一个。oracle 给出的参数只有在可放宽时才采用，
// 否则使用固定优先级。
func (s *searchService) chooseParam(ctx context.Context, req SearchRequest, r *relaxer) string {
	candidates := r.candidates()
	if len(candidates) == 0 {
		return ""
	}
	if len(candidates) == 1 || r.oracleSkipped {
		return candidates[0]
	}
	var out struct {
		Parameter string `json:"parameter"`
	}
	if err := s.oracle.askJSON(ctx, "relaxation", buildRelaxPrompt(req, r.current, candidates), &out); err != nil {
		r.oracleSkipped = true
		return candidates[0]
	}
	for _, c := range candidates {
		if c == out.Parameter {
			return c
		}
	}
	log.Warnf("oracle 选择的放宽参数 %q 不可用，改用固定优先级", out.Parameter)
	_ = s.oracle.malformed(ctx, "relaxation", fmt.Sprintf("parameter %q is not relaxable", out.Parameter))
	return candidates[0]
}

// reorderSubstitutes 返回让 oracle 调整替换候选顺序的函数；oracle 只能重排，不能引入新值。
func (s *searchService) reorderSubstitutes(ctx context.Context, req SearchRequest, r *relaxer) func(param string, options []string) []string {
	return func(param string, options []string) []string {
		if len(options) < 2 || r.oracleSkipped {
			return options
		}
		var out struct {
			Order []string `json:"order"`
		}
		if err := s.oracle.askJSON(ctx, "relaxation", buildSubstitutePrompt(req, param, options), &out); err != nil {
			r.oracleSkipped = true
			return options
		}
		return reorderWithin(options, out.Order)
	}
}

// reorderWithin 按 preferred 的顺序排列 options，忽略 options 之外的值。
func reorderWithin(options, preferred []string) []string {
	used := make(map[string]bool, len(options))
	out := make([]string, 0, len(options))
	for _, p := range preferred {
		for _, o := range options {
			if !used[o] && equalFold(o, p) {
				out = append(out, o)
				used[o] = true
			}
		}
	}
	for _, o := range options {
		if !used[o] {
			out = append(out, o)
		}
	}
	return out
}
