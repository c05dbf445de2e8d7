package service

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/pkg/embedding"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRecord(t *testing.T, kind model.MemoryKind, text string, meta map[string]string) *model.MemoryRecord {
	t.Helper()
	rec, err := model.NewMemoryRecord("u1", kind, text, 0.5, meta)
	require.NoError(t, err)
	return rec
}

func TestMemoryService_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("retries once after failure", func(t *testing.T) {
		repo := new(MockMemoryRepository)
		repo.On("Save", ctx, mock.AnythingOfType("*model.MemoryRecord")).Return(errors.New("db down")).Once()
		repo.On("Save", ctx, mock.AnythingOfType("*model.MemoryRecord")).Return(nil).Once()
		svc := NewMemoryService(repo, nil, time.Millisecond)

		err := svc.Save(ctx, newRecord(t, model.MemoryInterest, "Интересовался темой: седан", nil))
		assert.NoError(t, err)
		repo.AssertNumberOfCalls(t, "Save", 2)
	})

	t.Run("gives up after retry", func(t *testing.T) {
		repo := new(MockMemoryRepository)
		repo.On("Save", ctx, mock.Anything).Return(errors.New("db down"))
		svc := NewMemoryService(repo, nil, time.Millisecond)

		err := svc.Save(ctx, newRecord(t, model.MemoryInterest, "Интересовался темой: седан", nil))
		assert.ErrorIs(t, err, ErrMemoryWriteFailed)
		repo.AssertNumberOfCalls(t, "Save", 2)
	})

	t.Run("orphan record is rejected", func(t *testing.T) {
		repo := new(MockMemoryRepository)
		svc := NewMemoryService(repo, nil, time.Millisecond)

		err := svc.Save(ctx, &model.MemoryRecord{Kind: model.MemoryInterest, Text: "x"})
		assert.ErrorIs(t, err, model.ErrOrphanMemory)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("embeds before saving", func(t *testing.T) {
		repo := new(MockMemoryRepository)
		embedder := new(MockEmbedder)
		embedder.On("CreateEmbedding", ctx, "Предпочитает: BMW").Return([]float32{1, 0, 0}, nil)
		repo.On("Save", ctx, mock.MatchedBy(func(rec *model.MemoryRecord) bool {
			return len(rec.Embedding) == 3
		})).Return(nil)
		svc := NewMemoryService(repo, embedder, time.Millisecond)

		require.NoError(t, svc.Save(ctx, newRecord(t, model.MemoryPreference, "Предпочитает: BMW", nil)))
		repo.AssertExpectations(t)
		embedder.AssertExpectations(t)
	})
}

func TestMemoryService_Recall(t *testing.T) {
	ctx := context.Background()
	near := model.ScoredMemory{Record: *newRecord(t, model.MemoryPreference, "Предпочитает: внедорожник", nil), Similarity: 0.92}
	far := model.ScoredMemory{Record: *newRecord(t, model.MemoryInterest, "Интересовался темой: кредит", nil), Similarity: 0.1}

	t.Run("filters weak matches", func(t *testing.T) {
		repo := new(MockMemoryRepository)
		embedder := new(MockEmbedder)
		embedder.On("CreateEmbedding", ctx, "внедорожник").Return([]float32{0.1, 0.2}, nil)
		repo.On("SearchSimilar", ctx, "u1", []float32{0.1, 0.2}, 5).Return([]model.ScoredMemory{near, far}, nil)
		svc := NewMemoryService(repo, embedder, time.Millisecond)

		got, err := svc.Recall(ctx, "u1", "внедорожник", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, near.Record.ID, got[0].Record.ID)
	})

	t.Run("recent when embeddings are not configured", func(t *testing.T) {
		repo := new(MockMemoryRepository)
		embedder := new(MockEmbedder)
		embedder.On("CreateEmbedding", ctx, mock.Anything).Return(nil, embedding.ErrNotConfigured)
		repo.On("Recent", ctx, "u1", 3).Return([]model.MemoryRecord{far.Record}, nil)
		svc := NewMemoryService(repo, embedder, time.Millisecond)

		got, err := svc.Recall(ctx, "u1", "что угодно", 3)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Zero(t, got[0].Similarity)
		repo.AssertNotCalled(t, "SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("recent without embedder", func(t *testing.T) {
		repo := new(MockMemoryRepository)
		repo.On("Recent", ctx, "u1", 5).Return([]model.MemoryRecord{}, nil)
		svc := NewMemoryService(repo, nil, time.Millisecond)

		got, err := svc.Recall(ctx, "u1", "седан", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing user", func(t *testing.T) {
		svc := NewMemoryService(new(MockMemoryRepository), nil, time.Millisecond)
		_, err := svc.Recall(ctx, " ", "седан", 5)
		assert.ErrorIs(t, err, model.ErrOrphanMemory)
	})
}

func TestMemoryService_ExtractCandidates(t *testing.T) {
	svc := NewMemoryService(nil, nil, time.Millisecond)

	t.Run("rejection only", func(t *testing.T) {
		delta := model.SearchCriteria{ExcludeBrands: []string{"BMW"}, Category: "внедорожник"}
		got := svc.ExtractCandidates("u1", "Не хочу BMW, хочу внедорожник", delta, nil, "")
		require.Len(t, got, 1)
		assert.Equal(t, model.MemoryRejection, got[0].Kind)
		assert.Equal(t, "BMW", got[0].Metadata["brands"])
	})

	t.Run("preference criteria and interest", func(t *testing.T) {
		delta := model.SearchCriteria{Category: "внедорожник", FuelType: "дизель"}
		result := &model.SearchResult{OriginalCriteria: delta, Strategy: model.StrategyExact}
		got := svc.ExtractCandidates("u1", "Хочу дизельный внедорожник", delta, result, "внедорожник")
		require.Len(t, got, 3)
		assert.Equal(t, model.MemoryPreference, got[0].Kind)
		assert.Equal(t, "Предпочитает: внедорожник, дизель", got[0].Text)
		assert.Equal(t, model.MemoryCriteria, got[1].Kind)
		assert.Equal(t, "Искал: внедорожник, дизель", got[1].Text)
		assert.Equal(t, "exact", got[1].Metadata["strategy"])
		assert.Equal(t, model.MemoryInterest, got[2].Kind)
	})

	t.Run("nothing worth remembering", func(t *testing.T) {
		assert.Empty(t, svc.ExtractCandidates("u1", "Привет", model.SearchCriteria{}, nil, ""))
	})

	t.Run("orphan candidates are skipped", func(t *testing.T) {
		assert.Empty(t, svc.ExtractCandidates("", "Интересно", model.SearchCriteria{}, nil, "седан"))
	})
}

func TestRejectedBrands(t *testing.T) {
	memories := []model.ScoredMemory{
		{Record: *newRecord(t, model.MemoryRejection, "Не рассматривает марки: BMW, Audi", map[string]string{"brands": "BMW,Audi"})},
		{Record: *newRecord(t, model.MemoryPreference, "Предпочитает: Lada", map[string]string{"brand": "Lada"})},
		{Record: *newRecord(t, model.MemoryRejection, "Не рассматривает марки: audi", map[string]string{"brands": "audi, Kia"})},
	}
	assert.Equal(t, []string{"BMW", "Audi", "Kia"}, RejectedBrands(memories))
	assert.Empty(t, RejectedBrands(nil))
}
