// Package pipeline 定义了轮次事件落库与车源索引的后台流程。
package pipeline

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/repository"
	"auto-advisor-go/pkg/log"
	"auto-advisor-go/pkg/tasks"
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
)

// Processor 把轮次事件写入审计表。
type Processor struct {
	auditRepo repository.AuditRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(auditRepo repository.AuditRepository) *Processor {
	return &Processor{auditRepo: auditRepo}
}

// Process 是事件处理的主函数，重复投递的事件由 event_id 唯一索引去重。
func (p *Processor) Process(ctx context.Context, event tasks.TurnEvent) error {
	if event.EventID == "" || event.SessionID == "" {
		return errors.New("轮次事件缺少 event_id 或 session_id")
	}
	audit := &model.SearchAudit{
		EventID:    event.EventID,
		UserID:     event.UserID,
		SessionID:  event.SessionID,
		TurnIndex:  event.TurnIndex,
		Capability: event.Capability,
		Relation:   event.Relation,
		Strategy:   event.Strategy,
		Confidence: event.Confidence,
		ItemCount:  event.ItemCount,
		Degraded:   event.Degraded,
		Criteria:   datatypes.JSON(event.Criteria),
		Steps:      datatypes.JSON(event.Steps),
		LatencyMs:  event.LatencyMs,
		CreatedAt:  event.OccurredAt,
	}
	if err := p.auditRepo.Create(ctx, audit); err != nil {
		return fmt.Errorf("写入检索审计失败: %w", err)
	}
	log.Debugf("[Processor] 审计写入完成, session: %s, turn: %d, strategy: %s", event.SessionID, event.TurnIndex, event.Strategy)
	return nil
}

// DirectPublisher 在未启用 Kafka 时同步处理事件。
type DirectPublisher struct {
	processor *Processor
}

// NewDirectPublisher 创建同步发布器。
func NewDirectPublisher(processor *Processor) *DirectPublisher {
	return &DirectPublisher{processor: processor}
}

// PublishTurn 直接调用 Processor。
func (d *DirectPublisher) PublishTurn(ctx context.Context, event tasks.TurnEvent) error {
	return d.processor.Process(ctx, event)
}
