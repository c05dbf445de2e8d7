package repository

import (
	"auto-advisor-go/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuditRepository 定义了检索审计记录的操作接口。
type AuditRepository interface {
	// Create 按 EventID 幂等写入，重复投递的事件被忽略。
	Create(ctx context.Context, audit *model.SearchAudit) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.SearchAudit, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository 创建一个新的 AuditRepository 实例。
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, audit *model.SearchAudit) error {
	if audit == nil || audit.EventID == "" {
		return errors.New("audit event id is required")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(audit).Error
}

func (r *auditRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.SearchAudit, error) {
	var audits []model.SearchAudit
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_index ASC").
		Limit(limit).
		Find(&audits).Error
	return audits, err
}
