// Package model 包含了应用的数据模型定义。
package model

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrSessionOwnership 表示会话已归属另一个用户。
var ErrSessionOwnership = errors.New("session belongs to another user")

// Role 表示发言方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance 代表会话中的单条发言，一经写入不再修改。
type Utterance struct {
	Text      string    `json:"text"`
	TurnIndex int       `json:"turn_index"`
	Role      Role      `json:"role"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// DialogueSession 是一次会话的完整状态：发言列表与话题、兴趣、累计检索条件等元数据。
// ReferencePrice 为上一轮展示车源中的最高价，用于无价格上限时解析“подешевле”；
// Summary 是被压缩掉的早期发言摘要。FocusItem 是上一轮展示的首个车源，贷款试算默认以它为准。
type DialogueSession struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Utterances     []Utterance    `json:"utterances"`
	CurrentTopic   string         `json:"current_topic"`
	CoveredTopics  []string       `json:"covered_topics"`
	UserInterests  []string       `json:"user_interests"`
	Criteria       SearchCriteria `json:"criteria"`
	ReferencePrice float64        `json:"reference_price,omitempty"`
	FocusItem      *CatalogItem   `json:"focus_item,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	CompactedTurns int            `json:"compacted_turns,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewDialogueSession 创建一个空会话。
func NewDialogueSession(id, userID string) *DialogueSession {
	now := time.Now()
	return &DialogueSession{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}
}

// NextTurnIndex 返回下一条发言的序号，压缩过的发言也计入。
func (s *DialogueSession) NextTurnIndex() int {
	if n := len(s.Utterances); n > 0 {
		return s.Utterances[n-1].TurnIndex + 1
	}
	return s.CompactedTurns
}

// Append 追加一条发言并推进话题状态。
func (s *DialogueSession) Append(u Utterance) {
	s.Utterances = append(s.Utterances, u)
	if u.Topic != "" {
		s.CurrentTopic = u.Topic
		s.CoveredTopics = addUnique(s.CoveredTopics, u.Topic)
	}
	s.UpdatedAt = u.Timestamp
}

// AddInterests 将新的兴趣并入集合。
func (s *DialogueSession) AddInterests(interests ...string) {
	for _, i := range interests {
		s.UserInterests = addUnique(s.UserInterests, i)
	}
}

// Recent 返回最近 n 条发言。
func (s *DialogueSession) Recent(n int) []Utterance {
	if n <= 0 {
		return nil
	}
	if len(s.Utterances) <= n {
		return s.Utterances
	}
	return s.Utterances[len(s.Utterances)-n:]
}

// ByTopic 返回属于指定话题的最近 n 条发言。
func (s *DialogueSession) ByTopic(topic string, n int) []Utterance {
	var out []Utterance
	for i := len(s.Utterances) - 1; i >= 0 && len(out) < n; i-- {
		if s.Utterances[i].Topic == topic {
			out = append(out, s.Utterances[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// LastUserText 返回最近一次用户发言内容。
func (s *DialogueSession) LastUserText() string {
	for i := len(s.Utterances) - 1; i >= 0; i-- {
		if s.Utterances[i].Role == RoleUser {
			return s.Utterances[i].Text
		}
	}
	return ""
}

// BuildSummary 生成会话摘要：已覆盖话题、消息数量与最近的用户请求。
func (s *DialogueSession) BuildSummary() string {
	var b strings.Builder
	if s.Summary != "" {
		b.WriteString(s.Summary)
		b.WriteString("\n")
	}
	if len(s.CoveredTopics) > 0 {
		topics := append([]string(nil), s.CoveredTopics...)
		sort.Strings(topics)
		b.WriteString("Обсуждённые темы: ")
		b.WriteString(strings.Join(topics, ", "))
		b.WriteString("\n")
	}
	b.WriteString("Сообщений в диалоге: ")
	b.WriteString(strconv.Itoa(s.CompactedTurns + len(s.Utterances)))
	if last := s.LastUserText(); last != "" {
		b.WriteString("\nПоследний запрос: ")
		b.WriteString(last)
	}
	return b.String()
}

// Compact 在发言超过 limit 条时保留最近 keep 条，其余折叠进 Summary，返回被移出的发言。
func (s *DialogueSession) Compact(limit, keep int) []Utterance {
	if limit <= 0 || keep <= 0 || len(s.Utterances) <= limit || keep >= len(s.Utterances) {
		return nil
	}
	cut := len(s.Utterances) - keep
	archived := append([]Utterance(nil), s.Utterances[:cut]...)
	s.Summary = s.BuildSummaryOf(archived)
	s.Utterances = append([]Utterance(nil), s.Utterances[cut:]...)
	s.CompactedTurns += len(archived)
	return archived
}

// BuildSummaryOf 为一段被归档的发言生成摘要，叠加在已有摘要之上。
func (s *DialogueSession) BuildSummaryOf(archived []Utterance) string {
	var topics []string
	var lastUser string
	for _, u := range archived {
		if u.Topic != "" {
			topics = addUnique(topics, u.Topic)
		}
		if u.Role == RoleUser {
			lastUser = u.Text
		}
	}
	var b strings.Builder
	if s.Summary != "" {
		b.WriteString(s.Summary)
		b.WriteString("\n")
	}
	b.WriteString("Ранее обсуждали: ")
	if len(topics) == 0 {
		b.WriteString("нет данных")
	} else {
		b.WriteString(strings.Join(topics, ", "))
	}
	b.WriteString(" (")
	b.WriteString(strconv.Itoa(len(archived)))
	b.WriteString(" сообщ.)")
	if lastUser != "" {
		b.WriteString("; последний запрос: ")
		b.WriteString(lastUser)
	}
	return b.String()
}

func addUnique(list []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return list
	}
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return list
		}
	}
	return append(list, v)
}
