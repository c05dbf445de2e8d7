// Package repository 提供了数据访问层的实现。
package repository

import (
	"auto-advisor-go/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// SessionRepository 定义了会话历史与会话元数据的存取接口。会话只追加、压缩，不删除。
type SessionRepository interface {
	// Load 读取完整会话，不存在时返回 (nil, nil)。
	Load(ctx context.Context, sessionID string) (*model.DialogueSession, error)
	Append(ctx context.Context, sessionID string, u model.Utterance) error
	// SaveState 保存除发言列表以外的会话元数据。
	SaveState(ctx context.Context, s *model.DialogueSession) error
	// Trim 只保留最近 keep 条发言。
	Trim(ctx context.Context, sessionID string, keep int) error
	ListByUser(ctx context.Context, userID string) ([]string, error)
}

type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewSessionRepository 创建一个基于 Redis 的 SessionRepository 实例。
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

func utterancesKey(sessionID string) string { return fmt.Sprintf("dialogue:%s:utterances", sessionID) }
func stateKey(sessionID string) string      { return fmt.Sprintf("dialogue:%s:state", sessionID) }
func userSessionsKey(userID string) string  { return fmt.Sprintf("user:%s:sessions", userID) }

// Load 从 Redis 读取会话元数据与全部发言。
func (r *redisSessionRepository) Load(ctx context.Context, sessionID string) (*model.DialogueSession, error) {
	pipe := r.redisClient.Pipeline()
	stateCmd := pipe.Get(ctx, stateKey(sessionID))
	listCmd := pipe.LRange(ctx, utterancesKey(sessionID), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	stateJSON, err := stateCmd.Result()
	if err == redis.Nil {
		return nil, nil // 尚无该会话
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session state: %w", err)
	}
	var session model.DialogueSession
	if err := json.Unmarshal([]byte(stateJSON), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}

	raw, err := listCmd.Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get session utterances: %w", err)
	}
	session.Utterances = make([]model.Utterance, 0, len(raw))
	for _, item := range raw {
		var u model.Utterance
		if err := json.Unmarshal([]byte(item), &u); err != nil {
			return nil, fmt.Errorf("failed to unmarshal utterance: %w", err)
		}
		session.Utterances = append(session.Utterances, u)
	}
	return &session, nil
}

// Append 以 RPUSH 追加一条发言。
func (r *redisSessionRepository) Append(ctx context.Context, sessionID string, u model.Utterance) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal utterance: %w", err)
	}
	if err := r.redisClient.RPush(ctx, utterancesKey(sessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to append utterance: %w", err)
	}
	return nil
}

// SaveState 在 Redis 中覆盖会话元数据，并登记用户与会话的归属关系。
func (r *redisSessionRepository) SaveState(ctx context.Context, s *model.DialogueSession) error {
	state := *s
	state.Utterances = nil
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	pipe := r.redisClient.TxPipeline()
	pipe.Set(ctx, stateKey(s.ID), data, 0)
	pipe.SAdd(ctx, userSessionsKey(s.UserID), s.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set session state: %w", err)
	}
	return nil
}

// Trim 以 LTRIM 保留最近 keep 条发言。
func (r *redisSessionRepository) Trim(ctx context.Context, sessionID string, keep int) error {
	if err := r.redisClient.LTrim(ctx, utterancesKey(sessionID), int64(-keep), -1).Err(); err != nil {
		return fmt.Errorf("failed to trim utterances: %w", err)
	}
	return nil
}

// ListByUser 返回用户名下的所有会话 ID。
func (r *redisSessionRepository) ListByUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.redisClient.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}
	return ids, nil
}

type inMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*model.DialogueSession
}

// NewInMemorySessionRepository 返回进程内实现，用于本地运行与测试。
func NewInMemorySessionRepository() SessionRepository {
	return &inMemorySessionRepository{sessions: make(map[string]*model.DialogueSession)}
}

func (r *inMemorySessionRepository) Load(_ context.Context, sessionID string) (*model.DialogueSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (r *inMemorySessionRepository) Append(_ context.Context, sessionID string, u model.Utterance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		s = &model.DialogueSession{ID: sessionID}
		r.sessions[sessionID] = s
	}
	s.Utterances = append(s.Utterances, u)
	return nil
}

func (r *inMemorySessionRepository) SaveState(_ context.Context, s *model.DialogueSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var utterances []model.Utterance
	if existing, ok := r.sessions[s.ID]; ok {
		utterances = existing.Utterances
	}
	state := copySession(s)
	state.Utterances = utterances
	r.sessions[s.ID] = state
	return nil
}

func (r *inMemorySessionRepository) Trim(_ context.Context, sessionID string, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || len(s.Utterances) <= keep {
		return nil
	}
	s.Utterances = append([]model.Utterance(nil), s.Utterances[len(s.Utterances)-keep:]...)
	return nil
}

func (r *inMemorySessionRepository) ListByUser(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, s := range r.sessions {
		if s.UserID == userID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func copySession(s *model.DialogueSession) *model.DialogueSession {
	out := *s
	out.Utterances = append([]model.Utterance(nil), s.Utterances...)
	out.CoveredTopics = append([]string(nil), s.CoveredTopics...)
	out.UserInterests = append([]string(nil), s.UserInterests...)
	out.Criteria = s.Criteria.Clone()
	return &out
}
