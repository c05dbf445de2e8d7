package service

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/repository"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestSearch(catalog repository.CatalogRepository, oracle TextOracle) *searchService {
	return &searchService{
		catalog: catalog,
		oracle:  newOracleCaller(oracle, time.Second),
		cfg:     config.DefaultAssistantConfig(),
	}
}

func itemIDs(items []model.CatalogItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

func TestSearchService_Exact(t *testing.T) {
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(serviceCatalog()), nil)

	res, err := svc.Search(context.Background(), SearchRequest{Criteria: model.SearchCriteria{Brand: "BMW"}})
	require.NoError(t, err)
	assert.Equal(t, model.StrategyExact, res.Strategy)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Empty(t, res.RelaxationSteps)
	assert.Equal(t, []string{"bmw-x5", "bmw-320"}, itemIDs(res.Items))
}

func TestSearchService_EmptyCriteriaReturnsCatalog(t *testing.T) {
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(serviceCatalog()), nil)

	res, err := svc.Search(context.Background(), SearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.StrategyExact, res.Strategy)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Empty(t, res.RelaxationSteps)
	assert.Len(t, res.Items, len(serviceCatalog()))
	assert.True(t, res.CriteriaUsed.IsEmpty())
}

func TestSearchService_RelaxesPriceThenBrand(t *testing.T) {
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(serviceCatalog()), nil)
	original := model.SearchCriteria{Brand: "BMW", MaxPrice: 1500000}

	res, err := svc.Search(context.Background(), SearchRequest{Criteria: original, Utterance: "BMW до 1.5 млн"})
	require.NoError(t, err)
	assert.Equal(t, model.StrategyRelaxed, res.Strategy)
	require.Len(t, res.RelaxationSteps, 2)

	price := res.RelaxationSteps[0]
	assert.Equal(t, model.ParamMaxPrice, price.Parameter)
	assert.Equal(t, model.RelaxWidenNumeric, price.Strategy)
	assert.Equal(t, float64(1500000), price.OldValue)
	assert.InDelta(t, 1800000, price.NewValue.(float64), 1)

	brand := res.RelaxationSteps[1]
	assert.Equal(t, model.ParamBrand, brand.Parameter)
	assert.Equal(t, model.RelaxSubstituteSimilar, brand.Strategy)
	assert.Equal(t, "BMW", brand.OldValue)
	assert.Equal(t, "Audi", brand.NewValue)

	assert.Equal(t, []string{"audi-a3"}, itemIDs(res.Items))
	assert.Equal(t, 0.8, res.Confidence)
	assert.Equal(t, original, res.OriginalCriteria)
	assert.Equal(t, "Audi", res.CriteriaUsed.Brand)
	assert.NotEmpty(t, res.Explanation)
}

func TestSearchService_DropsModelBeforeBrand(t *testing.T) {
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(serviceCatalog()), nil)

	res, err := svc.Search(context.Background(), SearchRequest{Criteria: model.SearchCriteria{Brand: "BMW", Model: "X6"}})
	require.NoError(t, err)
	assert.Equal(t, model.StrategyRelaxed, res.Strategy)
	require.Len(t, res.RelaxationSteps, 1)
	assert.Equal(t, model.ParamModel, res.RelaxationSteps[0].Parameter)
	assert.Equal(t, model.RelaxDrop, res.RelaxationSteps[0].Strategy)
	assert.Equal(t, "BMW", res.CriteriaUsed.Brand)
	assert.Equal(t, 0.9, res.Confidence)
}

func TestSearchService_RejectedBrandsNeverSubstituted(t *testing.T) {
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(serviceCatalog()), nil)

	res, err := svc.Search(context.Background(), SearchRequest{
		Criteria:       model.SearchCriteria{Brand: "BMW", MaxPrice: 1500000},
		RejectedBrands: []string{"audi"},
	})
	require.NoError(t, err)
	for _, step := range res.RelaxationSteps {
		assert.NotEqual(t, "Audi", step.NewValue)
	}
	for _, it := range res.Items {
		assert.NotEqual(t, "Audi", it.Brand)
	}
	assert.Equal(t, model.StrategyRecommended, res.Strategy)
	assert.Len(t, res.RelaxationSteps, 5)
	assert.Equal(t, fallbackConfidence, res.Confidence)
}

func TestSearchService_NumericRelaxationOnlyWidens(t *testing.T) {
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(serviceCatalog()), nil)
	cases := []model.SearchCriteria{
		{MaxPrice: 1000000, MinYear: 2023},
		{Brand: "Porsche", MaxPrice: 500000},
		{MinPrice: 9000000, MaxYear: 2018},
		{Category: "купе", MinYear: 2025, Color: "желтый"},
	}
	for _, c := range cases {
		res, err := svc.Search(context.Background(), SearchRequest{Criteria: c})
		require.NoError(t, err)
		for _, step := range res.RelaxationSteps {
			if step.Strategy != model.RelaxWidenNumeric {
				continue
			}
			switch step.Parameter {
			case model.ParamMaxPrice:
				assert.Greater(t, step.NewValue.(float64), step.OldValue.(float64))
			case model.ParamMinPrice:
				assert.Less(t, step.NewValue.(float64), step.OldValue.(float64))
			case model.ParamMinYear:
				assert.Less(t, step.NewValue.(int), step.OldValue.(int))
			case model.ParamMaxYear:
				assert.Greater(t, step.NewValue.(int), step.OldValue.(int))
			}
		}
		assert.LessOrEqual(t, len(res.RelaxationSteps), 5)
	}
}

func TestSearchService_RecommendsWhenRelaxationFails(t *testing.T) {
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(serviceCatalog()), nil)

	res, err := svc.Search(context.Background(), SearchRequest{Criteria: model.SearchCriteria{Brand: "Porsche", MaxPrice: 500000}})
	require.NoError(t, err)
	assert.Equal(t, model.StrategyRecommended, res.Strategy)
	assert.Len(t, res.RelaxationSteps, 5)
	assert.Len(t, res.Items, len(serviceCatalog()))
	assert.Equal(t, fallbackConfidence, res.Confidence)
	assert.Contains(t, res.Explanation, "Porsche")
}

func TestSearchService_EmptyCatalog(t *testing.T) {
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(nil), nil)

	res, err := svc.Search(context.Background(), SearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.StrategyRecommended, res.Strategy)
	assert.Empty(t, res.RelaxationSteps)
	assert.Empty(t, res.Items)
	assert.NotEmpty(t, res.Explanation)
}

func TestSearchService_CatalogUnavailable(t *testing.T) {
	catalog := new(MockCatalogRepository)
	down := errors.New("connection refused")
	catalog.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, down)
	catalog.On("Sample", mock.Anything, mock.Anything).Return(nil, down)
	svc := newTestSearch(catalog, nil)

	health := &degradation{}
	ctx := withDegradation(context.Background(), health)
	res, err := svc.Search(ctx, SearchRequest{Criteria: model.SearchCriteria{Brand: "BMW"}})
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	require.NotNil(t, res)
	assert.Equal(t, model.StrategyRecommended, res.Strategy)
	assert.Empty(t, res.Items)

	_, _, catalogDown := health.snapshot()
	assert.True(t, catalogDown)
}

func TestSearchService_OracleChoosesParameter(t *testing.T) {
	oracle := new(MockOracle)
	oracle.On("Complete", mock.Anything, promptContaining(relaxPromptMarker), mock.Anything).
		Return(`{"parameter": "brand"}`, nil).Once()
	oracle.On("Complete", mock.Anything, promptContaining(substitutePromptMarker), mock.Anything).
		Return(`{"order": ["Tesla", "Audi"]}`, nil).Once()
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(serviceCatalog()), oracle)

	res, err := svc.Search(context.Background(), SearchRequest{Criteria: model.SearchCriteria{Brand: "BMW", MaxPrice: 1500000}})
	require.NoError(t, err)
	require.Len(t, res.RelaxationSteps, 1)
	assert.Equal(t, model.ParamBrand, res.RelaxationSteps[0].Parameter)
	assert.Equal(t, "Audi", res.RelaxationSteps[0].NewValue)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, float64(1500000), res.CriteriaUsed.MaxPrice)
	oracle.AssertExpectations(t)
}

func TestSearchService_OracleChoiceOutsideCandidatesIsIgnored(t *testing.T) {
	oracle := new(MockOracle)
	oracle.On("Complete", mock.Anything, promptContaining(relaxPromptMarker), mock.Anything).
		Return(`{"parameter": "model"}`, nil).Once()
	oracle.On("Complete", mock.Anything, promptContaining(substitutePromptMarker), mock.Anything).
		Return("не знаю", nil).Once()
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(serviceCatalog()), oracle)

	res, err := svc.Search(context.Background(), SearchRequest{Criteria: model.SearchCriteria{Brand: "BMW", MaxPrice: 1500000}})
	require.NoError(t, err)
	require.Len(t, res.RelaxationSteps, 2)
	assert.Equal(t, model.ParamMaxPrice, res.RelaxationSteps[0].Parameter)
	assert.Equal(t, model.ParamBrand, res.RelaxationSteps[1].Parameter)
	assert.Equal(t, "Audi", res.RelaxationSteps[1].NewValue)
	oracle.AssertExpectations(t)
}

func TestSearchService_OracleRankedRecommendation(t *testing.T) {
	oracle := new(MockOracle)
	oracle.On("Complete", mock.Anything, promptContaining(recommendPromptMarker), mock.Anything).
		Return(`{"ids": ["audi-a3", "ghost-1", "lada-niva", "audi-a3"], "reason": "Самые доступные варианты"}`, nil).Once()
	svc := newTestSearch(repository.NewInMemoryCatalogRepository(serviceCatalog()), oracle)

	req := SearchRequest{Criteria: model.SearchCriteria{Brand: "Porsche"}, Utterance: "Порше"}
	res, err := svc.recommend(context.Background(), req, nil, true)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyRecommended, res.Strategy)
	assert.Equal(t, []string{"audi-a3", "lada-niva"}, itemIDs(res.Items))
	assert.Equal(t, rankedConfidence, res.Confidence)
	assert.Equal(t, "Самые доступные варианты", res.Explanation)
}

func TestReorderWithin(t *testing.T) {
	got := reorderWithin([]string{"Audi", "Mercedes-Benz", "Lexus"}, []string{"lexus", "Tesla", "Audi"})
	assert.Equal(t, []string{"Lexus", "Audi", "Mercedes-Benz"}, got)

	assert.Equal(t, []string{"a", "b"}, reorderWithin([]string{"a", "b"}, nil))
}

func TestRelaxedConfidence(t *testing.T) {
	assert.Equal(t, 0.9, relaxedConfidence(1))
	assert.Equal(t, 0.8, relaxedConfidence(2))
	assert.Equal(t, 0.5, relaxedConfidence(5))
	assert.Equal(t, 0.3, relaxedConfidence(7))
	assert.Equal(t, 0.3, relaxedConfidence(12))
}
