package model

import (
	"time"

	"gorm.io/datatypes"
)

// SearchAudit 记录每一轮的检索轨迹，供质量分析使用。
type SearchAudit struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	EventID    string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"eventId"`
	UserID     string         `gorm:"type:varchar(128);index;not null" json:"userId"`
	SessionID  string         `gorm:"type:varchar(128);index;not null" json:"sessionId"`
	TurnIndex  int            `gorm:"not null" json:"turnIndex"`
	Capability string         `gorm:"type:varchar(32)" json:"capability"`
	Relation   string         `gorm:"type:varchar(32)" json:"relation"`
	Strategy   string         `gorm:"type:varchar(32)" json:"strategy"`
	Confidence float64        `json:"confidence"`
	ItemCount  int            `json:"itemCount"`
	Degraded   bool           `json:"degraded"`
	Criteria   datatypes.JSON `json:"criteria"`
	Steps      datatypes.JSON `json:"steps"`
	LatencyMs  int64          `json:"latencyMs"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (SearchAudit) TableName() string {
	return "search_audits"
}
