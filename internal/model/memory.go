package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrOrphanMemory 表示试图创建不属于任何用户的记忆。
var ErrOrphanMemory = errors.New("memory record requires a user id")

// MemoryKind 是长期记忆的类别。
type MemoryKind string

const (
	MemoryPreference MemoryKind = "preference"
	MemoryRejection  MemoryKind = "rejection"
	MemoryInterest   MemoryKind = "interest"
	MemoryCriteria   MemoryKind = "criteria"
)

// Valid 判断类别是否合法。
func (k MemoryKind) Valid() bool {
	switch k {
	case MemoryPreference, MemoryRejection, MemoryInterest, MemoryCriteria:
		return true
	}
	return false
}

// MemoryRecord 是一条用户级长期记忆，只追加不修改。
type MemoryRecord struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Kind       MemoryKind        `json:"kind"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"-"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Confidence float64           `json:"confidence"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewMemoryRecord 创建记忆记录，user id 为空时拒绝创建。
func NewMemoryRecord(userID string, kind MemoryKind, text string, confidence float64, metadata map[string]string) (*MemoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrOrphanMemory
	}
	if !kind.Valid() {
		return nil, errors.New("unknown memory kind: " + string(kind))
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return &MemoryRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       kind,
		Text:       text,
		Metadata:   metadata,
		Confidence: confidence,
		CreatedAt:  time.Now(),
	}, nil
}

// ScoredMemory 是带相似度的召回结果。
type ScoredMemory struct {
	Record     MemoryRecord `json:"record"`
	Similarity float64      `json:"similarity"`
}
