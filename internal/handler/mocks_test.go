package handler

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/service"
	"context"

	"github.com/stretchr/testify/mock"
)

// MockChatService 是 service.ChatService 的一个模拟实现。
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) ProcessTurn(ctx context.Context, userID, sessionID, text string) (*service.TurnResponse, error) {
	args := m.Called(ctx, userID, sessionID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TurnResponse), args.Error(1)
}

// MockSearchService 是 service.SearchService 的一个模拟实现。
type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, req service.SearchRequest) (*model.SearchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SearchResult), args.Error(1)
}

// MockConversationService 是 service.ConversationService 的一个模拟实现。
type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) GetSession(ctx context.Context, userID, sessionID string) (*model.SessionView, error) {
	args := m.Called(ctx, userID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionView), args.Error(1)
}

func (m *MockConversationService) ListSessions(ctx context.Context, userID string) ([]model.SessionView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SessionView), args.Error(1)
}

func (m *MockConversationService) GetTrace(ctx context.Context, userID, sessionID string, limit int) ([]model.SearchAudit, error) {
	args := m.Called(ctx, userID, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SearchAudit), args.Error(1)
}
