package pipeline

import (
	"auto-advisor-go/internal/model"
	"context"

	"github.com/stretchr/testify/mock"
)

// MockAuditRepository 是 repository.AuditRepository 的一个模拟实现。
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Create(ctx context.Context, audit *model.SearchAudit) error {
	args := m.Called(ctx, audit)
	return args.Error(0)
}

func (m *MockAuditRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.SearchAudit, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SearchAudit), args.Error(1)
}

// MockEmbedder mocks the embedding.Client interface
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}
