package service

import (
	"auto-advisor-go/internal/model"
	"fmt"
)

const maxSuggestions = 3

// SuggestionService 根据本轮结果生成主动建议。
type SuggestionService interface {
	Suggest(class model.Classification, result *model.SearchResult, stats *CatalogStats) []model.Suggestion
}

type suggestionService struct{}

// NewSuggestionService 创建建议服务。
func NewSuggestionService() SuggestionService {
	return suggestionService{}
}

// Suggest 返回 0 到 3 条建议，按重要性排序。
func (suggestionService) Suggest(class model.Classification, result *model.SearchResult, stats *CatalogStats) []model.Suggestion {
	var out []model.Suggestion
	add := func(kind, text string) {
		if len(out) >= maxSuggestions {
			return
		}
		for _, s := range out {
			if s.Kind == kind {
				return
			}
		}
		out = append(out, model.Suggestion{Kind: kind, Text: text})
	}

	switch {
	case stats != nil:
		if stats.Count > 0 {
			add("show_offers", "Показать конкретные предложения по этим параметрам?")
		} else {
			add("clarify", "Попробовать другие параметры поиска?")
		}
	case result == nil:
		if class.Capability != model.CapabilityCatalogSearch {
			add("start_search", "Подобрать автомобиль по вашим параметрам?")
		}
	case result.Strategy == model.StrategyRelaxed:
		if step, ok := result.StepFor(model.ParamMaxPrice); ok && len(result.Items) > 0 {
			add("budget_recalculation", fmt.Sprintf("Бюджет придётся увеличить примерно до %s (было %s). Пересчитать варианты с новым бюджетом?",
				formatPrice(result.MinPrice()), formatValue(model.ParamMaxPrice, step.OldValue)))
		}
		if step, ok := result.StepFor(model.ParamBrand); ok {
			add("other_brands", fmt.Sprintf("Показать другие альтернативы марке %v?", step.OldValue))
		}
		if result.Touched(model.ParamMinYear) || result.Touched(model.ParamMaxYear) {
			add("year_range", "Рассмотреть автомобили других лет выпуска?")
		}
		add("compare", "Сравнить найденные варианты?")
	case result.Strategy == model.StrategyRecommended:
		c := result.OriginalCriteria
		if c.MaxPrice == 0 {
			add("clarify_budget", "Какой у вас бюджет?")
		}
		if c.Category == "" {
			add("clarify_body", "Какой тип кузова вам ближе?")
		}
		if c.Brand != "" {
			add("other_brands", "Рассмотреть другие марки?")
		}
		if c.MaxPrice > 0 {
			add("budget_recalculation", "Пересчитать подбор с другим бюджетом?")
		}
	default:
		if len(result.Items) >= listedItems {
			add("narrow", "Уточните год выпуска или коробку передач, чтобы сузить выбор.")
		}
		if len(result.Items) > 1 {
			add("compare", "Сравнить найденные варианты?")
		}
		if len(result.Items) > 0 {
			add("credit", fmt.Sprintf("Рассчитать кредит для %s?", result.Items[0].Title()))
		}
	}
	return out
}
