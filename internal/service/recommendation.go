package service

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/pkg/log"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	rankedConfidence   = 0.35
	fallbackConfidence = 0.2
	maxExplanationLen  = 300
)

// recommend 放宽用尽后从目录样本中挑选推荐。oracle 可用时由它排序，否则取样本前几项。
func (s *searchService) recommend(ctx context.Context, req SearchRequest, steps []model.RelaxationStep, catalogUp bool) (*model.SearchResult, error) {
	result := &model.SearchResult{
		OriginalCriteria: req.Criteria.Clone(),
		CriteriaUsed:     req.Criteria.Clone(),
		Strategy:         model.StrategyRecommended,
		RelaxationSteps:  steps,
	}

	window, err := s.catalog.Sample(ctx, s.cfg.RecommendationWindow)
	if err != nil {
		log.Warnf("获取推荐样本失败: %v", err)
		if !catalogUp {
			degradationFrom(ctx).catalogFailed()
			result.Explanation = "Каталог временно недоступен."
			return result, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		result.Explanation = "Подходящих предложений не нашлось."
		return result, nil
	}
	window = withoutRejected(window, req)
	if len(window) == 0 {
		result.Explanation = "В каталоге сейчас нет подходящих предложений."
		return result, nil
	}

	if ids, reason, ok := s.rankWithOracle(ctx, req, window); ok {
		result.Items = pickByID(window, ids, s.cfg.ResultLimit)
		result.Confidence = rankedConfidence
		result.Explanation = truncateRunes(reason, maxExplanationLen)
		if result.Explanation == "" {
			result.Explanation = gapAnalysis(req.Criteria, window)
		}
		return result, nil
	}

	limit := s.cfg.ResultLimit
	if limit <= 0 || limit > len(window) {
		limit = len(window)
	}
	result.Items = append([]model.CatalogItem(nil), window[:limit]...)
	result.Confidence = fallbackConfidence
	result.Explanation = gapAnalysis(req.Criteria, window)
	return result, nil
}

// rankWithOracle 让 oracle 从样本中挑选 id；只保留样本内的 id。
func (s *searchService) rankWithOracle(ctx context.Context, req SearchRequest, window []model.CatalogItem) ([]string, string, bool) {
	var out struct {
		IDs    []string `json:"ids"`
		Reason string   `json:"reason"`
	}
	if err := s.oracle.askJSON(ctx, "recommendation", buildRecommendPrompt(req, window), &out); err != nil {
		return nil, "", false
	}
	known := make(map[string]bool, len(window))
	for _, it := range window {
		known[it.ID] = true
	}
	var ids []string
	for _, id := range out.IDs {
		if known[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		_ = s.oracle.malformed(ctx, "recommendation", "no known item ids in ranking")
		return nil, "", false
	}
	return ids, strings.TrimSpace(out.Reason), true
}

func pickByID(window []model.CatalogItem, ids []string, limit int) []model.CatalogItem {
	byID := make(map[string]model.CatalogItem, len(window))
	for _, it := range window {
		byID[it.ID] = it
	}
	seen := make(map[string]bool)
	var out []model.CatalogItem
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, byID[id])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func withoutRejected(window []model.CatalogItem, req SearchRequest) []model.CatalogItem {
	var out []model.CatalogItem
	for _, it := range window {
		if req.Criteria.Excludes(it.Brand) || containsFold(req.RejectedBrands, it.Brand) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// gapAnalysis 说明目录与原始条件之间的差距，例如品牌的最低价高于预算。
func gapAnalysis(c model.SearchCriteria, window []model.CatalogItem) string {
	var notes []string
	if c.Brand != "" {
		var cheapest, newest *model.CatalogItem
		for i := range window {
			it := &window[i]
			if !strings.EqualFold(it.Brand, c.Brand) {
				continue
			}
			if cheapest == nil || it.Price < cheapest.Price {
				cheapest = it
			}
			if newest == nil || it.Year > newest.Year {
				newest = it
			}
		}
		switch {
		case cheapest == nil:
			notes = append(notes, fmt.Sprintf("Автомобилей %s сейчас нет в наличии", c.Brand))
		default:
			if c.MaxPrice > 0 && cheapest.Price > c.MaxPrice {
				notes = append(notes, fmt.Sprintf("Самый доступный %s стоит %s при бюджете %s", cheapest.Title(), formatPrice(cheapest.Price), formatPrice(c.MaxPrice)))
			}
			if c.MinYear > 0 && newest.Year < c.MinYear {
				notes = append(notes, fmt.Sprintf("Самый свежий %s %d года выпуска", c.Brand, newest.Year))
			}
		}
	}
	if len(notes) == 0 {
		return "Точных совпадений нет, ниже подборка популярных предложений."
	}
	return strings.Join(notes, ". ") + "."
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
