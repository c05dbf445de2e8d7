// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"encoding/json"
	"time"
)

// TurnEvent 描述一轮对话结束后的检索轨迹，由 Kafka 异步写入审计表。
type TurnEvent struct {
	EventID    string          `json:"event_id"`
	UserID     string          `json:"user_id"`
	SessionID  string          `json:"session_id"`
	TurnIndex  int             `json:"turn_index"`
	Capability string          `json:"capability"`
	Relation   string          `json:"relation"`
	Strategy   string          `json:"strategy,omitempty"`
	Confidence float64         `json:"confidence"`
	ItemCount  int             `json:"item_count"`
	Degraded   bool            `json:"degraded"`
	Criteria   json.RawMessage `json:"criteria,omitempty"`
	Steps      json.RawMessage `json:"steps,omitempty"`
	LatencyMs  int64           `json:"latency_ms"`
	OccurredAt time.Time       `json:"occurred_at"`
}
