package model

import (
	"fmt"
	"strings"
	"time"
)

// LocalTime is a custom time type to format time as "YYYY-MM-DD HH:MM:SS".
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(timeFormat))
	return []byte(formatted), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *LocalTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), "\"")
	if s == "" || s == "null" {
		*t = LocalTime(time.Time{})
		return nil
	}
	parsed, err := time.ParseInLocation(timeFormat, s, time.Local)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}

// UtteranceView 是对外展示的发言，时间使用本地格式。
type UtteranceView struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Topic     string    `json:"topic"`
	TurnIndex int       `json:"turnIndex"`
	Timestamp LocalTime `json:"timestamp"`
}

// SessionView 是会话详情接口的返回结构。
type SessionView struct {
	SessionID     string          `json:"sessionId"`
	CurrentTopic  string          `json:"currentTopic"`
	CoveredTopics []string        `json:"coveredTopics"`
	UserInterests []string        `json:"userInterests"`
	Criteria      SearchCriteria  `json:"criteria"`
	Summary       string          `json:"summary,omitempty"`
	Utterances    []UtteranceView `json:"utterances"`
	UpdatedAt     LocalTime       `json:"updatedAt"`
}

// ToView 将会话转换为对外展示结构。
func (s *DialogueSession) ToView() SessionView {
	view := SessionView{
		SessionID:     s.ID,
		CurrentTopic:  s.CurrentTopic,
		CoveredTopics: s.CoveredTopics,
		UserInterests: s.UserInterests,
		Criteria:      s.Criteria,
		Summary:       s.Summary,
		Utterances:    make([]UtteranceView, 0, len(s.Utterances)),
		UpdatedAt:     LocalTime(s.UpdatedAt),
	}
	for _, u := range s.Utterances {
		view.Utterances = append(view.Utterances, UtteranceView{
			Role:      u.Role,
			Text:      u.Text,
			Topic:     u.Topic,
			TurnIndex: u.TurnIndex,
			Timestamp: LocalTime(u.Timestamp),
		})
	}
	return view
}
