package service

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/repository"
	"context"
	"errors"
	"sort"
	"time"
)

// ConversationService 定义了会话查询的接口。
type ConversationService interface {
	GetSession(ctx context.Context, userID, sessionID string) (*model.SessionView, error)
	ListSessions(ctx context.Context, userID string) ([]model.SessionView, error)
	GetTrace(ctx context.Context, userID, sessionID string, limit int) ([]model.SearchAudit, error)
}

type conversationService struct {
	repo   repository.SessionRepository
	audits repository.AuditRepository
}

// NewConversationService 创建一个新的 ConversationService。audits 为 nil 时检索轨迹为空。
func NewConversationService(repo repository.SessionRepository, audits repository.AuditRepository) ConversationService {
	return &conversationService{repo: repo, audits: audits}
}

// ErrSessionNotFound 表示会话不存在。
var ErrSessionNotFound = errors.New("session not found")

// GetSession 返回会话详情，只允许会话所属用户读取。
func (s *conversationService) GetSession(ctx context.Context, userID, sessionID string) (*model.SessionView, error) {
	session, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	view := session.ToView()
	return &view, nil
}

// GetTrace 返回会话每一轮的检索轨迹，按轮次升序。
func (s *conversationService) GetTrace(ctx context.Context, userID, sessionID string, limit int) ([]model.SearchAudit, error) {
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if s.audits == nil {
		return []model.SearchAudit{}, nil
	}
	if limit <= 0 {
		limit = 100
	}
	return s.audits.ListBySession(ctx, sessionID, limit)
}

func (s *conversationService) owned(ctx context.Context, userID, sessionID string) (*model.DialogueSession, error) {
	session, err := s.repo.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.UserID != userID {
		return nil, model.ErrSessionOwnership
	}
	return session, nil
}

// ListSessions 返回用户的全部会话，按最近更新时间倒序。
func (s *conversationService) ListSessions(ctx context.Context, userID string) ([]model.SessionView, error) {
	ids, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]model.SessionView, 0, len(ids))
	for _, id := range ids {
		session, err := s.repo.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if session == nil || session.UserID != userID {
			continue
		}
		view := session.ToView()
		view.Utterances = nil
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return time.Time(views[i].UpdatedAt).After(time.Time(views[j].UpdatedAt))
	})
	return views, nil
}
