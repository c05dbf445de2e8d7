package service

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/pkg/log"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ClassifierService 判断发言与历史的关系以及所需能力。
type ClassifierService interface {
	Classify(ctx context.Context, utterance string, recent []model.Utterance, knownTopics []string) model.Classification
}

type classifierService struct {
	oracle oracleCaller
}

// NewClassifierService 创建分类服务，oracle 可以为 nil。
func NewClassifierService(oracle TextOracle, timeout time.Duration) ClassifierService {
	return &classifierService{oracle: newOracleCaller(oracle, timeout)}
}

var (
	continuationMarkers  = []string{"еще", "также", "кроме того", "а еще", "и еще", "also", "additionally", "плюс к этому"}
	clarificationMarkers = []string{"подешевле", "подороже", "поновее", "посвежее", "дешевле", "уточн", "имею в виду", "а если", "а что если", "лучше", "вместо"}
	aggregateMarkers     = []string{"сколько", "средн", "статистик", "количеств", "в среднем"}
	smalltalkMarkers     = []string{"привет", "здравств", "добрый день", "добрый вечер", "доброе утро", "спасибо", "благодар", "до свидания", "как дела", "hello", "thanks"}
)

// Classify 没有历史时直接判定为新话题；否则询问 oracle，失败或输出非法时使用启发式规则。
func (s *classifierService) Classify(ctx context.Context, utterance string, recent []model.Utterance, knownTopics []string) model.Classification {
	if len(recent) == 0 && len(knownTopics) == 0 {
		return model.Classification{
			IsRelated:  false,
			Relation:   model.RelationNewTopic,
			Confidence: 1.0,
			Capability: inferCapability(utterance),
			Source:     "heuristic",
		}
	}

	var out struct {
		IsRelated  bool    `json:"is_related"`
		Relation   string  `json:"relation"`
		Confidence float64 `json:"confidence"`
		Capability string  `json:"capability"`
	}
	err := s.oracle.askJSON(ctx, "classifier", buildClassifierPrompt(utterance, recent, knownTopics), &out)
	if err == nil {
		c := model.Classification{
			IsRelated:  out.IsRelated,
			Relation:   model.Relation(out.Relation),
			Confidence: out.Confidence,
			Capability: model.Capability(out.Capability),
			Source:     "oracle",
		}
		if c.Relation.Valid() && c.Capability.Valid() && c.Confidence >= 0 && c.Confidence <= 1 {
			if c.Relation == model.RelationNewTopic {
				c.IsRelated = false
			}
			return c
		}
		err = s.oracle.malformed(ctx, "classifier", fmt.Sprintf("relation=%q capability=%q confidence=%v", out.Relation, out.Capability, out.Confidence))
	}
	log.Warnf("意图分类回退到启发式规则: %v", err)
	return heuristicClassify(utterance, recent, knownTopics)
}

// heuristicClassify 是不依赖 oracle 的确定性分类。
func heuristicClassify(utterance string, recent []model.Utterance, knownTopics []string) model.Classification {
	text := normalizeText(utterance)
	c := model.Classification{Capability: inferCapability(utterance), Source: "heuristic"}
	switch {
	case len(recent) == 0 && len(knownTopics) == 0:
		c.Relation, c.Confidence = model.RelationNewTopic, 1.0
	case containsMarker(text, continuationMarkers):
		c.IsRelated, c.Relation, c.Confidence = true, model.RelationContinuation, 0.8
	case containsMarker(text, clarificationMarkers) || overlapsTopics(text, knownTopics):
		c.IsRelated, c.Relation, c.Confidence = true, model.RelationClarification, 0.7
	default:
		c.Relation, c.Confidence = model.RelationNewTopic, 0.6
	}
	return c
}

// inferCapability 根据关键词判断所需能力。
func inferCapability(utterance string) model.Capability {
	text := normalizeText(utterance)
	vehicle := mentionsVehicle(text) || containsDigit(text) ||
		containsMarker(text, cheaperWords) || containsMarker(text, pricierWords) || containsMarker(text, newerWords)
	switch {
	case containsMarker(text, aggregateMarkers) && vehicle:
		return model.CapabilityStructuredQuery
	case vehicle:
		return model.CapabilityCatalogSearch
	case containsMarker(text, smalltalkMarkers):
		return model.CapabilitySmalltalk
	default:
		return model.CapabilityKnowledgeLookup
	}
}

// containsMarker 按子串匹配，可以覆盖词形变化。
func containsMarker(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func overlapsTopics(text string, topics []string) bool {
	for _, topic := range topics {
		for _, w := range tokenize(topic) {
			if len([]rune(w)) >= 3 && strings.Contains(text, w) {
				return true
			}
		}
	}
	return false
}

func buildClassifierPrompt(utterance string, recent []model.Utterance, knownTopics []string) string {
	var b strings.Builder
	b.WriteString("Определи, как новая реплика пользователя связана с диалогом об автомобилях.\n")
	b.WriteString("Верни только JSON: {\"is_related\": bool, \"relation\": \"continuation|clarification|new_topic|topic_change\", ")
	b.WriteString("\"confidence\": число от 0 до 1, \"capability\": \"catalog_search|knowledge_lookup|structured_query|smalltalk\"}.\n")
	if len(knownTopics) > 0 {
		b.WriteString("Темы диалога: ")
		b.WriteString(strings.Join(knownTopics, ", "))
		b.WriteString("\n")
	}
	if len(recent) > 0 {
		b.WriteString("Последние сообщения:\n")
		for _, u := range recent {
			b.WriteString(string(u.Role))
			b.WriteString(": ")
			b.WriteString(u.Text)
			b.WriteString("\n")
		}
	}
	b.WriteString("Новая реплика: ")
	b.WriteString(utterance)
	return b.String()
}
