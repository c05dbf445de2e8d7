package model

// Relation 描述本轮发言与已有对话的关系。
type Relation string

const (
	RelationContinuation  Relation = "continuation"
	RelationClarification Relation = "clarification"
	RelationNewTopic      Relation = "new_topic"
	RelationTopicChange   Relation = "topic_change"
)

// Valid 判断取值是否合法。
func (r Relation) Valid() bool {
	switch r {
	case RelationContinuation, RelationClarification, RelationNewTopic, RelationTopicChange:
		return true
	}
	return false
}

// Capability 是处理本轮所需的能力。
type Capability string

const (
	CapabilityCatalogSearch   Capability = "catalog_search"
	CapabilityKnowledgeLookup Capability = "knowledge_lookup"
	CapabilityStructuredQuery Capability = "structured_query"
	CapabilitySmalltalk       Capability = "smalltalk"
)

// Valid 判断取值是否合法。
func (c Capability) Valid() bool {
	switch c {
	case CapabilityCatalogSearch, CapabilityKnowledgeLookup, CapabilityStructuredQuery, CapabilitySmalltalk:
		return true
	}
	return false
}

// Classification 是意图与关系分类的结果。Source 为 oracle 或 heuristic。
type Classification struct {
	IsRelated  bool       `json:"is_related"`
	Relation   Relation   `json:"relation"`
	Confidence float64    `json:"confidence"`
	Capability Capability `json:"capability"`
	Source     string     `json:"source"`
}

// Suggestion 是随回复附带的主动建议。
type Suggestion struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}
