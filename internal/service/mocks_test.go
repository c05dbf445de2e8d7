package service

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/pkg/tasks"
	"context"
	"strings"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockOracle mocks the TextOracle interface
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	args := m.Called(ctx, prompt, timeout)
	return args.String(0), args.Error(1)
}

// MockCatalogRepository mocks the CatalogRepository interface
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) Query(ctx context.Context, criteria model.SearchCriteria, limit int) ([]model.CatalogItem, error) {
	args := m.Called(ctx, criteria, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CatalogItem), args.Error(1)
}

func (m *MockCatalogRepository) Sample(ctx context.Context, limit int) ([]model.CatalogItem, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CatalogItem), args.Error(1)
}

// MockMemoryRepository mocks the MemoryRepository interface
type MockMemoryRepository struct {
	mock.Mock
}

func (m *MockMemoryRepository) Save(ctx context.Context, rec *model.MemoryRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockMemoryRepository) SearchSimilar(ctx context.Context, userID string, vector []float32, topK int) ([]model.ScoredMemory, error) {
	args := m.Called(ctx, userID, vector, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScoredMemory), args.Error(1)
}

func (m *MockMemoryRepository) Recent(ctx context.Context, userID string, limit int) ([]model.MemoryRecord, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MemoryRecord), args.Error(1)
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

// MockTurnPublisher mocks the TurnPublisher interface
type MockTurnPublisher struct {
	mock.Mock
}

func (m *MockTurnPublisher) PublishTurn(ctx context.Context, event tasks.TurnEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockSessionArchive mocks the SessionArchive interface
type MockSessionArchive struct {
	mock.Mock
}

func (m *MockSessionArchive) Archive(ctx context.Context, sessionID string, utterances []model.Utterance) error {
	args := m.Called(ctx, sessionID, utterances)
	return args.Error(0)
}

// promptContaining 匹配包含指定片段的 prompt。
func promptContaining(fragment string) interface{} {
	return mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, fragment)
	})
}

// 各组件 prompt 的开头，用于区分 oracle 调用。
const (
	extractionPromptMarker = "Ты извлекаешь параметры"
	replyPromptMarker      = "Ты консультант автосалона"
	relaxPromptMarker      = "Выбери один параметр"
	substitutePromptMarker = "Нужно заменить параметр"
	recommendPromptMarker  = "Подходящих автомобилей по запросу нет"
	classifierPromptMarker = "Определи, как новая реплика"
)

func serviceCatalog() []model.CatalogItem {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return []model.CatalogItem{
		{ID: "bmw-x5", Brand: "BMW", Model: "X5", Category: "внедорожник", Year: 2023, Price: 8900000, FuelType: "бензин", Gearbox: "автомат", Color: "черный", City: "Москва", Rating: 4.8, AddedAt: now.Add(-96 * time.Hour)},
		{ID: "bmw-320", Brand: "BMW", Model: "3 Series", Category: "седан", Year: 2023, Price: 3900000, FuelType: "бензин", Gearbox: "автомат", Color: "белый", City: "Москва", Rating: 4.7, AddedAt: now.Add(-72 * time.Hour)},
		{ID: "audi-a3", Brand: "Audi", Model: "A3", Category: "хэтчбек", Year: 2023, Price: 1080000, FuelType: "бензин", Gearbox: "робот", Color: "синий", City: "Москва", Rating: 4.4, AddedAt: now},
		{ID: "toyota-lc", Brand: "Toyota", Model: "Land Cruiser", Category: "внедорожник", Year: 2019, Price: 5900000, FuelType: "дизель", Gearbox: "автомат", Color: "белый", City: "Казань", Rating: 4.9, AddedAt: now.Add(-120 * time.Hour)},
		{ID: "lada-niva", Brand: "Lada", Model: "Niva Travel", Category: "внедорожник", Year: 2022, Price: 1150000, FuelType: "бензин", Gearbox: "механика", Color: "зеленый", City: "Москва", Rating: 4.0, AddedAt: now.Add(-24 * time.Hour)},
		{ID: "haval-h9", Brand: "Haval", Model: "H9", Category: "внедорожник", Year: 2023, Price: 3700000, FuelType: "дизель", Gearbox: "автомат", Color: "серый", City: "Москва", Rating: 4.3, AddedAt: now.Add(-48 * time.Hour)},
	}
}

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
