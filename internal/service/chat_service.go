// Package service 包含了应用的业务逻辑层。
package service

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/repository"
	"auto-advisor-go/pkg/log"
	"auto-advisor-go/pkg/metrics"
	"auto-advisor-go/pkg/tasks"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TurnState 是一轮处理所处的阶段。
type TurnState string

const (
	StateIdle             TurnState = "idle"
	StateClassifying      TurnState = "classifying"
	StateExtracting       TurnState = "extracting"
	StateSearching        TurnState = "searching"
	StateDrafting         TurnState = "drafting"
	StateCommittingMemory TurnState = "committing_memory"
)

// TurnResponse 是一轮对话的完整输出。
type TurnResponse struct {
	SessionID       string                `json:"session_id"`
	TurnIndex       int                   `json:"turn_index"`
	ReplyText       string                `json:"reply_text"`
	Suggestions     []model.Suggestion    `json:"suggestions"`
	Classification  model.Classification  `json:"classification"`
	Context         ContextStrategy       `json:"context"`
	Criteria        *model.SearchCriteria `json:"criteria,omitempty"`
	SearchResult    *model.SearchResult   `json:"search_result,omitempty"`
	Stats           *CatalogStats         `json:"stats,omitempty"`
	Loan            *LoanQuote            `json:"loan,omitempty"`
	MemoriesSaved   int                   `json:"memories_saved"`
	Notes           []string              `json:"notes,omitempty"`
	Degraded        bool                  `json:"degraded"`
	DegradedReasons []string              `json:"degraded_reasons,omitempty"`
	States          []TurnState           `json:"states"`
}

// TurnPublisher 在一轮结束后发布检索轨迹事件，kafka.Producer 满足该接口。
type TurnPublisher interface {
	PublishTurn(ctx context.Context, event tasks.TurnEvent) error
}

// ChatService 定义了对话编排的接口。
type ChatService interface {
	ProcessTurn(ctx context.Context, userID, sessionID, text string) (*TurnResponse, error)
}

// ChatDeps 汇总编排器依赖的组件。Oracle、Publisher 与 Archive 可以为 nil。
type ChatDeps struct {
	Sessions    repository.SessionRepository
	Archive     repository.SessionArchive
	Catalog     repository.CatalogRepository
	Classifier  ClassifierService
	Contexts    ContextService
	Extractor   ExtractionService
	Search      SearchService
	Suggestions SuggestionService
	Memory      MemoryService
	Oracle      TextOracle
	Publisher   TurnPublisher
	Config      config.AssistantConfig
	Timeout     time.Duration
}

type chatService struct {
	ChatDeps
	oracle oracleCaller
	locks  sessionLocks
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(deps ChatDeps) ChatService {
	if deps.Archive == nil {
		deps.Archive = repository.NewSessionArchive(nil, "")
	}
	return &chatService{
		ChatDeps: deps,
		oracle:   newOracleCaller(deps.Oracle, deps.Timeout),
	}
}

// turn 是一轮处理中的可变状态。
type turn struct {
	userID     string
	text       string
	session    *model.DialogueSession
	class      model.Classification
	strategy   ContextStrategy
	contextTxt ContextText
	memories   []model.ScoredMemory
	extraction *ExtractionResult
	result     *model.SearchResult
	stats      *CatalogStats
	loan       *LoanQuote
	finance    bool
	states     []TurnState
}

func (t *turn) enter(s TurnState) {
	t.states = append(t.states, s)
}

// ProcessTurn 处理一轮用户发言。同一会话的轮次串行执行。
// 只有参数非法、会话归属冲突或等待会话锁时 ctx 被取消才返回错误，其余故障都走兜底路径。
func (s *chatService) ProcessTurn(ctx context.Context, userID, sessionID, text string) (*TurnResponse, error) {
	start := time.Now()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyUtterance
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	health := &degradation{}
	ctx = withDegradation(ctx, health)
	t := &turn{userID: userID, text: text, finance: isFinanceQuery(text), states: []TurnState{StateIdle}}

	t.session, err = s.loadSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	t.enter(StateClassifying)
	s.classifyAndRecall(ctx, t)
	t.strategy = s.Contexts.SelectContext(t.class.Relation, t.class.Confidence)
	t.contextTxt = s.Contexts.Materialize(t.strategy, t.session)

	switch t.class.Capability {
	case model.CapabilityCatalogSearch, model.CapabilityStructuredQuery:
		t.enter(StateExtracting)
		prior := t.session.Criteria
		if t.class.Relation == model.RelationNewTopic || t.class.Relation == model.RelationTopicChange {
			// 新话题不继承旧条件，只保留排除的品牌
			prior = model.SearchCriteria{ExcludeBrands: t.session.Criteria.ExcludeBrands}
		}
		ex := s.Extractor.Extract(ctx, text, t.contextTxt.Format(), prior, t.session.ReferencePrice)
		t.extraction = &ex

		t.enter(StateSearching)
		if t.class.Capability == model.CapabilityStructuredQuery {
			s.aggregate(ctx, t)
		} else {
			s.search(ctx, t)
		}
	}

	t.enter(StateDrafting)
	s.quoteLoan(t)
	reply := s.draft(ctx, t)
	suggestions := s.Suggestions.Suggest(t.class, t.result, t.stats)

	t.enter(StateCommittingMemory)
	commitCtx := context.WithoutCancel(ctx)
	turnIndex, newTopic := s.persistTurn(commitCtx, t, reply)
	saved, notes := s.commitMemories(commitCtx, t, newTopic)

	t.enter(StateIdle)
	reasons, _, _ := health.snapshot()
	resp := &TurnResponse{
		SessionID:       sessionID,
		TurnIndex:       turnIndex,
		ReplyText:       reply,
		Suggestions:     suggestions,
		Classification:  t.class,
		Context:         t.strategy,
		SearchResult:    t.result,
		Stats:           t.stats,
		Loan:            t.loan,
		MemoriesSaved:   saved,
		Notes:           notes,
		Degraded:        len(reasons) > 0,
		DegradedReasons: reasons,
		States:          t.states,
	}
	if t.extraction != nil {
		c := t.extraction.Criteria
		resp.Criteria = &c
	}

	latency := time.Since(start)
	s.publish(commitCtx, t, resp, latency)
	strategy := ""
	if t.result != nil {
		strategy = string(t.result.Strategy)
	}
	metrics.ObserveTurn(string(t.class.Capability), strategy, resp.Degraded, latency)
	log.Infow("轮次处理完成",
		"session_id", sessionID, "turn", turnIndex, "capability", t.class.Capability,
		"relation", t.class.Relation, "strategy", strategy, "degraded", resp.Degraded, "latency_ms", latency.Milliseconds())
	return resp, nil
}

// loadSession 读取会话；存储不可用时使用空会话继续本轮。
func (s *chatService) loadSession(ctx context.Context, userID, sessionID string) (*model.DialogueSession, error) {
	session, err := s.Sessions.Load(ctx, sessionID)
	if err != nil {
		log.Errorf("读取会话 %s 失败: %v", sessionID, err)
		degradationFrom(ctx).mark("session:load_failed")
		return model.NewDialogueSession(sessionID, userID), nil
	}
	if session == nil {
		return model.NewDialogueSession(sessionID, userID), nil
	}
	if session.UserID != "" && session.UserID != userID {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionOwnership, sessionID)
	}
	session.UserID = userID
	return session, nil
}

// classifyAndRecall 并发执行意图分类与长期记忆召回。
func (s *chatService) classifyAndRecall(ctx context.Context, t *turn) {
	recent := t.session.Recent(contextLadder[1].Depth)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.class = s.Classifier.Classify(gctx, t.text, recent, specificTopics(t.session.CoveredTopics))
		return nil
	})
	g.Go(func() error {
		memories, err := s.Memory.Recall(gctx, t.userID, t.text, s.Config.MemoryTopK)
		if err != nil {
			log.Warnf("召回长期记忆失败: %v", err)
			degradationFrom(ctx).mark("memory:recall_failed")
			return nil
		}
		t.memories = memories
		return nil
	})
	_ = g.Wait()
}

func (s *chatService) search(ctx context.Context, t *turn) {
	rejected := model.UnionStrings(RejectedBrands(t.memories), t.extraction.Criteria.ExcludeBrands)
	result, err := s.Search.Search(ctx, SearchRequest{
		Criteria:       t.extraction.Criteria,
		Utterance:      t.text,
		Context:        t.contextTxt.Format(),
		RejectedBrands: rejected,
	})
	if err != nil {
		log.Warnf("检索未完成: %v", err)
		if !errors.Is(err, ErrCatalogUnavailable) {
			degradationFrom(ctx).mark("search:failed")
		}
	}
	t.result = result
}

// aggregate 在更宽的结果窗口上统计数量与价格。
func (s *chatService) aggregate(ctx context.Context, t *turn) {
	criteria := t.extraction.Criteria
	items, err := s.Catalog.Query(ctx, criteria, statsWindow)
	if err != nil {
		log.Warnf("聚合查询失败: %v", err)
		degradationFrom(ctx).catalogFailed()
		return
	}
	st := computeStats(criteria, items)
	t.stats = &st
}

// draft 起草回复：优先由 oracle 生成，失败时使用模板。目录不可用时仍由 oracle 起草，
// 只有 oracle 与目录同时不可用才返回通用提示。
func (s *chatService) draft(ctx context.Context, t *turn) string {
	facts := replyFacts{
		Utterance:  t.text,
		Context:    t.contextTxt.Format(),
		Capability: t.class.Capability,
		Result:     t.result,
		Stats:      t.stats,
		Memories:   t.memories,
		Loan:       t.loan,
	}
	d := degradationFrom(ctx)
	_, _, catalogDown := d.snapshot()
	facts.CatalogDown = catalogDown
	if catalogDown && d.oracleIsDown() {
		return genericFailureReply
	}
	if reply, err := s.oracle.ask(ctx, "reply", buildReplyPrompt(facts)); err == nil && strings.TrimSpace(reply) != "" {
		return strings.TrimSpace(reply)
	}

	switch {
	case t.loan != nil:
		return formatLoan(*t.loan)
	case catalogDown:
		return genericFailureReply
	case t.finance && t.result == nil:
		return financeNoTargetReply
	case t.stats != nil:
		return formatStats(*t.stats)
	case t.result != nil:
		return templateReply(t.result)
	case t.class.Capability == model.CapabilitySmalltalk:
		return smalltalkReply
	default:
		return knowledgeReply
	}
}

// quoteLoan 为贷款类发言试算月供。本轮点名了品牌或型号时以本轮结果的首个车源为准，
// 否则沿用上一轮展示的车源。
func (s *chatService) quoteLoan(t *turn) {
	if !t.finance {
		return
	}
	var target *model.CatalogItem
	named := t.extraction != nil && (t.extraction.Delta.Brand != "" || t.extraction.Delta.Model != "")
	fresh := t.result != nil && len(t.result.Items) > 0
	switch {
	case fresh && (named || t.session.FocusItem == nil):
		target = &t.result.Items[0]
	case t.session.FocusItem != nil:
		target = t.session.FocusItem
	default:
		return
	}
	q := CalculateLoan(*target, loanTermsFrom(t.text, s.Config))
	t.loan = &q
}

// persistTurn 写入用户与助手发言、更新会话元数据，超过上限时压缩并归档早期发言。
// 返回用户发言的序号与本轮新出现的话题。
func (s *chatService) persistTurn(ctx context.Context, t *turn, reply string) (int, string) {
	session := t.session
	topic := inferTopic(t)
	newTopic := ""
	if !isDefaultTopic(topic) && !containsFold(session.CoveredTopics, topic) {
		newTopic = topic
	}

	now := time.Now()
	userIdx := session.NextTurnIndex()
	for _, u := range []model.Utterance{
		{Text: t.text, TurnIndex: userIdx, Role: model.RoleUser, Topic: topic, Timestamp: now},
		{Text: reply, TurnIndex: userIdx + 1, Role: model.RoleAssistant, Topic: topic, Timestamp: now},
	} {
		if err := s.Sessions.Append(ctx, session.ID, u); err != nil {
			log.Errorf("写入会话 %s 发言失败: %v", session.ID, err)
			degradationFrom(ctx).mark("session:append_failed")
		}
		session.Append(u)
	}

	if t.extraction != nil {
		session.Criteria = t.extraction.Criteria
	}
	if t.result != nil && len(t.result.Items) > 0 {
		session.ReferencePrice = t.result.MaxPrice()
		focus := t.result.Items[0]
		session.FocusItem = &focus
	}
	if newTopic != "" {
		session.AddInterests(newTopic)
	}
	s.compact(ctx, session)

	if err := s.Sessions.SaveState(ctx, session); err != nil {
		log.Errorf("保存会话 %s 状态失败: %v", session.ID, err)
		degradationFrom(ctx).mark("session:save_failed")
	}
	return userIdx, newTopic
}

// compact 先归档再截断，归档失败时保留全部发言。
func (s *chatService) compact(ctx context.Context, session *model.DialogueSession) {
	limit, keep := s.Config.MaxSessionUtterances, s.Config.KeepUtterances
	if limit <= 0 || keep <= 0 || len(session.Utterances) <= limit {
		return
	}
	cut := len(session.Utterances) - keep
	if err := s.Archive.Archive(ctx, session.ID, session.Utterances[:cut]); err != nil {
		log.Errorf("归档会话 %s 失败，暂不压缩: %v", session.ID, err)
		degradationFrom(ctx).mark("session:archive_failed")
		return
	}
	session.Compact(limit, keep)
	if err := s.Sessions.Trim(ctx, session.ID, keep); err != nil {
		log.Errorf("截断会话 %s 失败: %v", session.ID, err)
	}
}

// commitMemories 写入本轮候选记忆，失败只记录不影响回复。
func (s *chatService) commitMemories(ctx context.Context, t *turn, newTopic string) (int, []string) {
	var delta model.SearchCriteria
	if t.extraction != nil {
		delta = t.extraction.Delta
	}
	candidates := s.Memory.ExtractCandidates(t.userID, t.text, delta, t.result, newTopic)
	saved := 0
	var failed error
	for _, rec := range candidates {
		if err := s.Memory.Save(ctx, rec); err != nil {
			log.Errorf("写入长期记忆失败: %v", err)
			failed = err
			continue
		}
		saved++
	}
	if failed != nil {
		degradationFrom(ctx).mark("memory:write_failed")
		return saved, []string{"memory not updated this turn"}
	}
	return saved, nil
}

func (s *chatService) publish(ctx context.Context, t *turn, resp *TurnResponse, latency time.Duration) {
	if s.Publisher == nil {
		return
	}
	event := tasks.TurnEvent{
		EventID:    uuid.NewString(),
		UserID:     t.userID,
		SessionID:  resp.SessionID,
		TurnIndex:  resp.TurnIndex,
		Capability: string(t.class.Capability),
		Relation:   string(t.class.Relation),
		Degraded:   resp.Degraded,
		LatencyMs:  latency.Milliseconds(),
		OccurredAt: time.Now(),
	}
	if resp.Criteria != nil {
		event.Criteria, _ = json.Marshal(resp.Criteria)
	}
	if t.result != nil {
		event.Strategy = string(t.result.Strategy)
		event.Confidence = t.result.Confidence
		event.ItemCount = len(t.result.Items)
		event.Steps, _ = json.Marshal(t.result.RelaxationSteps)
	}
	if err := s.Publisher.PublishTurn(ctx, event); err != nil {
		log.Warnf("发布轮次事件失败: %v", err)
	}
}

// 未能从条件或会话中得到话题时使用的默认话题，不计入用户兴趣。
const (
	topicCarSearch = "подбор автомобиля"
	topicSmalltalk = "общение"
	topicKnowledge = "консультация"
	topicStats     = "статистика"
)

// inferTopic 依据本轮条件推断话题：品牌与车身优先，澄清类发言沿用当前话题，
// 都没有时按能力给出默认话题，保证每条发言都带话题。
func inferTopic(t *turn) string {
	if t.extraction != nil {
		d := t.extraction.Delta
		parts := make([]string, 0, 2)
		if d.Brand != "" {
			parts = append(parts, d.Brand)
		}
		if d.Category != "" {
			parts = append(parts, d.Category)
		}
		if len(parts) == 0 && d.Model != "" {
			parts = append(parts, d.Model)
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	if t.finance {
		return topicFinance
	}
	switch t.class.Capability {
	case model.CapabilityKnowledgeLookup, model.CapabilityStructuredQuery:
		if !t.class.IsRelated || t.session.CurrentTopic == "" {
			return defaultTopic(t.class.Capability)
		}
	}
	if t.session.CurrentTopic != "" {
		return t.session.CurrentTopic
	}
	return defaultTopic(t.class.Capability)
}

func defaultTopic(c model.Capability) string {
	switch c {
	case model.CapabilitySmalltalk:
		return topicSmalltalk
	case model.CapabilityKnowledgeLookup:
		return topicKnowledge
	case model.CapabilityStructuredQuery:
		return topicStats
	default:
		return topicCarSearch
	}
}

// specificTopics 去掉默认话题，只把真实话题交给分类器。
func specificTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		if !isDefaultTopic(topic) {
			out = append(out, topic)
		}
	}
	return out
}

func isDefaultTopic(topic string) bool {
	switch topic {
	case topicCarSearch, topicSmalltalk, topicKnowledge, topicStats, topicFinance:
		return true
	}
	return false
}
