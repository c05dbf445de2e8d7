package service

import (
	"auto-advisor-go/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func suggestionKinds(list []model.Suggestion) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Kind)
	}
	return out
}

func TestSuggestionService_Suggest(t *testing.T) {
	svc := NewSuggestionService()
	search := model.Classification{Capability: model.CapabilityCatalogSearch}
	items := serviceCatalog()

	t.Run("relaxed budget comes first", func(t *testing.T) {
		result := &model.SearchResult{
			Strategy: model.StrategyRelaxed,
			Items:    []model.CatalogItem{items[2]},
			RelaxationSteps: []model.RelaxationStep{
				{Parameter: model.ParamMaxPrice, OldValue: float64(1000000), NewValue: float64(1200000), Strategy: model.RelaxWidenNumeric},
				{Parameter: model.ParamBrand, OldValue: "BMW", NewValue: "Audi", Strategy: model.RelaxSubstituteSimilar},
			},
		}
		got := svc.Suggest(search, result, nil)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"budget_recalculation", "other_brands", "compare"}, suggestionKinds(got))
		assert.Contains(t, got[0].Text, "1 080 000 ₽")
		assert.Contains(t, got[0].Text, "1 000 000 ₽")
		assert.Contains(t, got[1].Text, "BMW")
	})

	t.Run("exact with many items", func(t *testing.T) {
		result := &model.SearchResult{Strategy: model.StrategyExact, Items: items[:5]}
		got := svc.Suggest(search, result, nil)
		assert.Equal(t, []string{"narrow", "compare", "credit"}, suggestionKinds(got))
		assert.Contains(t, got[2].Text, items[0].Title())
	})

	t.Run("exact with a single item", func(t *testing.T) {
		result := &model.SearchResult{Strategy: model.StrategyExact, Items: items[:1]}
		assert.Equal(t, []string{"credit"}, suggestionKinds(svc.Suggest(search, result, nil)))
	})

	t.Run("recommended asks for missing basics", func(t *testing.T) {
		result := &model.SearchResult{Strategy: model.StrategyRecommended}
		assert.Equal(t, []string{"clarify_budget", "clarify_body"}, suggestionKinds(svc.Suggest(search, result, nil)))
	})

	t.Run("recommended for a brand with budget", func(t *testing.T) {
		result := &model.SearchResult{
			Strategy:         model.StrategyRecommended,
			OriginalCriteria: model.SearchCriteria{Brand: "Porsche", MaxPrice: 500000, Category: "купе"},
		}
		assert.Equal(t, []string{"other_brands", "budget_recalculation"}, suggestionKinds(svc.Suggest(search, result, nil)))
	})

	t.Run("stats", func(t *testing.T) {
		got := svc.Suggest(model.Classification{Capability: model.CapabilityStructuredQuery}, nil, &CatalogStats{Count: 3})
		assert.Equal(t, []string{"show_offers"}, suggestionKinds(got))

		got = svc.Suggest(model.Classification{Capability: model.CapabilityStructuredQuery}, nil, &CatalogStats{})
		assert.Equal(t, []string{"clarify"}, suggestionKinds(got))
	})

	t.Run("smalltalk invites a search", func(t *testing.T) {
		got := svc.Suggest(model.Classification{Capability: model.CapabilitySmalltalk}, nil, nil)
		assert.Equal(t, []string{"start_search"}, suggestionKinds(got))
	})

	t.Run("failed search suggests nothing", func(t *testing.T) {
		assert.Empty(t, svc.Suggest(search, nil, nil))
	})
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1 200 000 ₽", formatPrice(1200000))
	assert.Equal(t, "950 ₽", formatPrice(950))
	assert.Equal(t, "12 500 ₽", formatPrice(12499.6))
	assert.Equal(t, "-1 000 ₽", formatPrice(-1000))
	assert.Equal(t, "0 ₽", formatPrice(0))
}

func TestComputeStats(t *testing.T) {
	items := serviceCatalog()
	st := computeStats(model.SearchCriteria{Category: "внедорожник"}, []model.CatalogItem{items[0], items[3], items[4]})
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, float64(1150000), st.MinPrice)
	assert.Equal(t, float64(8900000), st.MaxPrice)
	assert.Equal(t, float64(5316667), st.AvgPrice)
	assert.Equal(t, 2019, st.MinYear)
	assert.Equal(t, 2023, st.MaxYear)
	assert.Equal(t, []string{"BMW", "Lada", "Toyota"}, st.Brands)
	assert.False(t, st.Truncated)

	text := formatStats(st)
	assert.Contains(t, text, "Найдено предложений: 3")
	assert.Contains(t, text, "Годы выпуска: 2019–2023")

	assert.Equal(t, "По этим параметрам в каталоге нет предложений.", formatStats(computeStats(model.SearchCriteria{}, nil)))
}

func TestTemplateReply(t *testing.T) {
	items := serviceCatalog()
	assert.Equal(t, genericFailureReply, templateReply(nil))

	exact := templateReply(&model.SearchResult{Strategy: model.StrategyExact, Items: items})
	assert.Contains(t, exact, "Нашёл подходящих вариантов: 6.")
	assert.Contains(t, exact, "…и ещё 1")

	relaxed := templateReply(&model.SearchResult{Strategy: model.StrategyRelaxed, Items: items[2:3], Explanation: "марка: Audi вместо BMW"})
	assert.Contains(t, relaxed, "марка: Audi вместо BMW")
	assert.Contains(t, relaxed, "Audi A3, 2023 г., 1 080 000 ₽ (Москва)")

	empty := templateReply(&model.SearchResult{Strategy: model.StrategyRecommended, Explanation: "Каталог пуст."})
	assert.Equal(t, "Подходящих вариантов по заданным условиям нет. Каталог пуст.", empty)
}
