package repository

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/pkg/storage"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
)

// SessionArchive 保存压缩时从会话中移出的发言。
type SessionArchive interface {
	Archive(ctx context.Context, sessionID string, utterances []model.Utterance) error
}

type minioSessionArchive struct {
	client *minio.Client
	bucket string
}

// NewSessionArchive 创建基于 MinIO 的归档实现；client 为 nil 时返回 no-op 实现。
func NewSessionArchive(client *minio.Client, bucket string) SessionArchive {
	if client == nil {
		return noopArchive{}
	}
	return &minioSessionArchive{client: client, bucket: bucket}
}

// Archive 以 sessions/{id}/{首条序号}-{末条序号}.json 的形式写入对象存储。
func (a *minioSessionArchive) Archive(ctx context.Context, sessionID string, utterances []model.Utterance) error {
	if len(utterances) == 0 {
		return nil
	}
	payload, err := json.Marshal(struct {
		SessionID  string            `json:"session_id"`
		ArchivedAt time.Time         `json:"archived_at"`
		Utterances []model.Utterance `json:"utterances"`
	}{sessionID, time.Now(), utterances})
	if err != nil {
		return fmt.Errorf("failed to marshal archived utterances: %w", err)
	}
	objectName := fmt.Sprintf("sessions/%s/%06d-%06d.json", sessionID,
		utterances[0].TurnIndex, utterances[len(utterances)-1].TurnIndex)
	return storage.PutJSON(ctx, a.client, a.bucket, objectName, payload)
}

type noopArchive struct{}

func (noopArchive) Archive(context.Context, string, []model.Utterance) error { return nil }
