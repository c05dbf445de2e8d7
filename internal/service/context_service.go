package service

import (
	"auto-advisor-go/internal/model"
	"strings"
)

// ContextScope 是上下文的取材范围。
type ContextScope string

const (
	ScopeNone    ContextScope = ""
	ScopeTopic   ContextScope = "topic"
	ScopeRecent  ContextScope = "recent"
	ScopeSummary ContextScope = "summary"
)

// lowConfidence 以下的分类结果使用更浅一级的上下文。
const lowConfidence = 0.6

// ContextStrategy 描述本轮为 oracle 准备多少历史。
type ContextStrategy struct {
	Level          int          `json:"level"`
	PrimaryScope   ContextScope `json:"primary_scope"`
	SecondaryScope ContextScope `json:"secondary_scope,omitempty"`
	Depth          int          `json:"depth"`
	Compression    bool         `json:"compression"`
	Downgraded     bool         `json:"downgraded,omitempty"`
}

// contextLadder 由深到浅排列。
var contextLadder = []ContextStrategy{
	{Level: 0, PrimaryScope: ScopeTopic, Depth: 10},
	{Level: 1, PrimaryScope: ScopeRecent, Depth: 6},
	{Level: 2, PrimaryScope: ScopeSummary, SecondaryScope: ScopeRecent, Depth: 3, Compression: true},
	{Level: 3, PrimaryScope: ScopeSummary, Compression: true},
}

var relationLevel = map[model.Relation]int{
	model.RelationContinuation:  0,
	model.RelationClarification: 1,
	model.RelationTopicChange:   2,
	model.RelationNewTopic:      3,
}

// ContextText 是物化后的上下文。
type ContextText struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// Format 拼接为单段文本供 prompt 使用。
func (c ContextText) Format() string {
	switch {
	case c.Primary == "":
		return c.Secondary
	case c.Secondary == "":
		return c.Primary
	}
	return c.Primary + "\n" + c.Secondary
}

// ContextService 根据分类结果选择并物化上下文。
type ContextService interface {
	SelectContext(relation model.Relation, confidence float64) ContextStrategy
	Materialize(strategy ContextStrategy, session *model.DialogueSession) ContextText
}

type contextService struct{}

// NewContextService 创建上下文服务。
func NewContextService() ContextService {
	return contextService{}
}

// SelectContext 按关系选择阶梯上的一级，置信度低于阈值时再降一级。
func (contextService) SelectContext(relation model.Relation, confidence float64) ContextStrategy {
	level, ok := relationLevel[relation]
	if !ok {
		level = len(contextLadder) - 1
	}
	downgraded := false
	if confidence < lowConfidence && level < len(contextLadder)-1 {
		level++
		downgraded = true
	}
	s := contextLadder[level]
	s.Downgraded = downgraded
	return s
}

// Materialize 按策略从会话中取出文本。
func (contextService) Materialize(strategy ContextStrategy, session *model.DialogueSession) ContextText {
	if session == nil {
		return ContextText{}
	}
	return ContextText{
		Primary:   materializeScope(strategy.PrimaryScope, strategy.Depth, session),
		Secondary: materializeScope(strategy.SecondaryScope, strategy.Depth, session),
	}
}

func materializeScope(scope ContextScope, depth int, session *model.DialogueSession) string {
	switch scope {
	case ScopeTopic:
		utterances := session.ByTopic(session.CurrentTopic, depth)
		if len(utterances) == 0 {
			utterances = session.Recent(depth)
		}
		return formatUtterances(utterances)
	case ScopeRecent:
		return formatUtterances(session.Recent(depth))
	case ScopeSummary:
		return session.BuildSummary()
	}
	return ""
}

func formatUtterances(utterances []model.Utterance) string {
	var b strings.Builder
	for i, u := range utterances {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(string(u.Role))
		b.WriteString(": ")
		b.WriteString(u.Text)
	}
	return b.String()
}
