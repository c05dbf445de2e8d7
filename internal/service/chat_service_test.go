package service

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/repository"
	"auto-advisor-go/pkg/tasks"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	catalog   repository.CatalogRepository
	oracle    TextOracle
	memory    repository.MemoryRepository
	sessions  repository.SessionRepository
	archive   repository.SessionArchive
	publisher TurnPublisher
	cfg       config.AssistantConfig
}

func newChatFixture() *chatFixture {
	return &chatFixture{
		catalog:  repository.NewInMemoryCatalogRepository(serviceCatalog()),
		memory:   repository.NewInMemoryMemoryRepository(),
		sessions: repository.NewInMemorySessionRepository(),
		cfg:      config.DefaultAssistantConfig(),
	}
}

func (f *chatFixture) build() ChatService {
	timeout := time.Second
	return NewChatService(ChatDeps{
		Sessions:    f.sessions,
		Archive:     f.archive,
		Catalog:     f.catalog,
		Classifier:  NewClassifierService(f.oracle, timeout),
		Contexts:    NewContextService(),
		Extractor:   NewExtractionService(f.oracle, timeout, f.cfg),
		Search:      NewSearchService(f.catalog, f.oracle, timeout, f.cfg),
		Suggestions: NewSuggestionService(),
		Memory:      NewMemoryService(f.memory, nil, time.Millisecond),
		Oracle:      f.oracle,
		Publisher:   f.publisher,
		Config:      f.cfg,
		Timeout:     timeout,
	})
}

var fullTrace = []TurnState{StateIdle, StateClassifying, StateExtracting, StateSearching, StateDrafting, StateCommittingMemory, StateIdle}

func TestChatService_CheaperFollowUp(t *testing.T) {
	f := newChatFixture()
	svc := f.build()
	ctx := context.Background()

	first, err := svc.ProcessTurn(ctx, "u1", "s1", "Хочу внедорожник")
	require.NoError(t, err)
	assert.Equal(t, 0, first.TurnIndex)
	assert.Equal(t, model.RelationNewTopic, first.Classification.Relation)
	assert.Equal(t, fullTrace, first.States)
	require.NotNil(t, first.SearchResult)
	assert.Equal(t, model.StrategyExact, first.SearchResult.Strategy)
	assert.Len(t, first.SearchResult.Items, 4)
	assert.Equal(t, 3, first.MemoriesSaved)
	assert.NotEmpty(t, first.ReplyText)

	second, err := svc.ProcessTurn(ctx, "u1", "s1", "А подешевле?")
	require.NoError(t, err)
	assert.Equal(t, 2, second.TurnIndex)
	assert.Equal(t, model.RelationClarification, second.Classification.Relation)
	assert.Equal(t, 1, second.Context.Level)
	require.NotNil(t, second.Criteria)
	assert.Equal(t, "внедорожник", second.Criteria.Category)
	assert.Equal(t, float64(7120000), second.Criteria.MaxPrice)
	require.NotNil(t, second.SearchResult)
	assert.Equal(t, []string{"toyota-lc", "haval-h9", "lada-niva"}, itemIDs(second.SearchResult.Items))
	for _, it := range second.SearchResult.Items {
		assert.LessOrEqual(t, it.Price, second.Criteria.MaxPrice)
	}

	session, err := f.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, session.Utterances, 4)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, []string{"внедорожник"}, session.CoveredTopics)
	assert.Equal(t, float64(5900000), session.ReferencePrice)
}

func TestChatService_OracleAndCatalogDown(t *testing.T) {
	f := newChatFixture()
	catalog := new(MockCatalogRepository)
	down := errors.New("connection refused")
	catalog.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, down)
	catalog.On("Sample", mock.Anything, mock.Anything).Return(nil, down)
	f.catalog = catalog

	resp, err := f.build().ProcessTurn(context.Background(), "u1", "s1", "Хочу BMW")
	require.NoError(t, err)
	assert.Equal(t, genericFailureReply, resp.ReplyText)
	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.DegradedReasons, "search:catalog_unavailable")
	assert.Equal(t, fullTrace, resp.States)
	require.NotNil(t, resp.SearchResult)
	assert.Equal(t, model.StrategyRecommended, resp.SearchResult.Strategy)
	assert.Empty(t, resp.SearchResult.Items)
}

func TestChatService_CatalogDownOracleUp(t *testing.T) {
	f := newChatFixture()
	catalog := new(MockCatalogRepository)
	down := errors.New("connection refused")
	catalog.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, down)
	catalog.On("Sample", mock.Anything, mock.Anything).Return(nil, down)
	f.catalog = catalog

	oracle := new(MockOracle)
	oracle.On("Complete", mock.Anything, promptContaining(extractionPromptMarker), mock.Anything).Return(`{"brand": "BMW"}`, nil)
	oracle.On("Complete", mock.Anything, promptContaining(substitutePromptMarker), mock.Anything).Return(`{"order": []}`, nil)
	oracle.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, replyPromptMarker) && strings.Contains(prompt, catalogDownPromptLine)
	}), mock.Anything).Return(" Расскажите, какой бюджет вы рассматриваете? ", nil).Once()
	f.oracle = oracle

	resp, err := f.build().ProcessTurn(context.Background(), "u1", "s1", "Хочу BMW")
	require.NoError(t, err)
	assert.Equal(t, "Расскажите, какой бюджет вы рассматриваете?", resp.ReplyText)
	assert.NotEqual(t, genericFailureReply, resp.ReplyText)
	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.DegradedReasons, "search:catalog_unavailable")
	oracle.AssertCalled(t, "Complete", mock.Anything, promptContaining(replyPromptMarker), mock.Anything)
}

func TestChatService_CatalogDownReplyOracleFails(t *testing.T) {
	f := newChatFixture()
	catalog := new(MockCatalogRepository)
	down := errors.New("connection refused")
	catalog.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, down)
	catalog.On("Sample", mock.Anything, mock.Anything).Return(nil, down)
	f.catalog = catalog

	oracle := new(MockOracle)
	oracle.On("Complete", mock.Anything, promptContaining(extractionPromptMarker), mock.Anything).Return(`{"brand": "BMW"}`, nil)
	oracle.On("Complete", mock.Anything, promptContaining(substitutePromptMarker), mock.Anything).Return(`{"order": []}`, nil)
	oracle.On("Complete", mock.Anything, promptContaining(replyPromptMarker), mock.Anything).Return("", errors.New("timeout"))
	f.oracle = oracle

	resp, err := f.build().ProcessTurn(context.Background(), "u1", "s1", "Хочу BMW")
	require.NoError(t, err)
	assert.Equal(t, genericFailureReply, resp.ReplyText)
	assert.True(t, resp.Degraded)
}

func TestChatService_OracleDraftsReplyAndPublishes(t *testing.T) {
	f := newChatFixture()
	oracle := new(MockOracle)
	oracle.On("Complete", mock.Anything, promptContaining(extractionPromptMarker), mock.Anything).
		Return(`{"category": "внедорожник", "max_price": 6000000}`, nil).Once()
	oracle.On("Complete", mock.Anything, promptContaining(replyPromptMarker), mock.Anything).
		Return("  Есть три внедорожника до 6 млн.  ", nil).Once()
	f.oracle = oracle

	publisher := new(MockTurnPublisher)
	publisher.On("PublishTurn", mock.Anything, mock.MatchedBy(func(e tasks.TurnEvent) bool {
		return e.EventID != "" && e.SessionID == "s1" && e.UserID == "u1" &&
			e.Strategy == "exact" && e.ItemCount == 3 && !e.Degraded && len(e.Criteria) > 0
	})).Return(nil).Once()
	f.publisher = publisher

	resp, err := f.build().ProcessTurn(context.Background(), "u1", "s1", "Хочу внедорожник до 6 млн")
	require.NoError(t, err)
	assert.Equal(t, "Есть три внедорожника до 6 млн.", resp.ReplyText)
	assert.False(t, resp.Degraded)
	assert.Empty(t, resp.DegradedReasons)
	assert.Equal(t, float64(6000000), resp.Criteria.MaxPrice)
	assert.NotEmpty(t, resp.Suggestions)
	oracle.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestChatService_MemoryWriteFailure(t *testing.T) {
	f := newChatFixture()
	memory := new(MockMemoryRepository)
	memory.On("Recent", mock.Anything, "u1", mock.Anything).Return([]model.MemoryRecord{}, nil)
	memory.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down"))
	f.memory = memory

	resp, err := f.build().ProcessTurn(context.Background(), "u1", "s1", "Хочу внедорожник")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ReplyText)
	assert.Zero(t, resp.MemoriesSaved)
	assert.Equal(t, []string{"memory not updated this turn"}, resp.Notes)
	assert.Contains(t, resp.DegradedReasons, "memory:write_failed")
	memory.AssertNumberOfCalls(t, "Save", 6)
}

type countingCatalog struct {
	repository.CatalogRepository
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (c *countingCatalog) Query(ctx context.Context, criteria model.SearchCriteria, limit int) ([]model.CatalogItem, error) {
	c.mu.Lock()
	c.active++
	if c.active > c.maxSeen {
		c.maxSeen = c.active
	}
	c.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return c.CatalogRepository.Query(ctx, criteria, limit)
}

func TestChatService_SerializesTurnsPerSession(t *testing.T) {
	f := newChatFixture()
	counting := &countingCatalog{CatalogRepository: f.catalog}
	f.catalog = counting
	svc := f.build()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		indexes []int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.ProcessTurn(context.Background(), "u1", "s1", "Хочу седан")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			indexes = append(indexes, resp.TurnIndex)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{0, 2}, indexes)
	assert.Equal(t, 1, counting.maxSeen)
}

func TestChatService_CompactsLongSessions(t *testing.T) {
	f := newChatFixture()
	f.cfg.MaxSessionUtterances = 4
	f.cfg.KeepUtterances = 2
	archive := new(MockSessionArchive)
	archive.On("Archive", mock.Anything, "s1", mock.MatchedBy(func(u []model.Utterance) bool {
		return len(u) == 4 && u[0].TurnIndex == 0
	})).Return(nil).Once()
	f.archive = archive
	svc := f.build()
	ctx := context.Background()

	var last *TurnResponse
	for i := 0; i < 3; i++ {
		resp, err := svc.ProcessTurn(ctx, "u1", "s1", "Хочу седан")
		require.NoError(t, err)
		last = resp
	}
	assert.Equal(t, 4, last.TurnIndex)
	archive.AssertExpectations(t)

	session, err := f.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, session.Utterances, 2)
	assert.Equal(t, 4, session.Utterances[0].TurnIndex)
	assert.Equal(t, 4, session.CompactedTurns)
	assert.Contains(t, session.Summary, "седан")
}

func TestChatService_ArchiveFailureKeepsHistory(t *testing.T) {
	f := newChatFixture()
	f.cfg.MaxSessionUtterances = 2
	f.cfg.KeepUtterances = 1
	archive := new(MockSessionArchive)
	archive.On("Archive", mock.Anything, "s1", mock.Anything).Return(errors.New("bucket missing"))
	f.archive = archive
	svc := f.build()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.ProcessTurn(ctx, "u1", "s1", "Хочу седан")
		require.NoError(t, err)
	}
	session, err := f.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, session.Utterances, 4)
	assert.Empty(t, session.Summary)
}

func TestChatService_RejectsBadInput(t *testing.T) {
	svc := newChatFixture().build()
	ctx := context.Background()

	_, err := svc.ProcessTurn(ctx, "u1", "s1", "   ")
	assert.ErrorIs(t, err, ErrEmptyUtterance)

	_, err = svc.ProcessTurn(ctx, "", "s1", "Хочу седан")
	assert.ErrorIs(t, err, ErrMissingUser)

	_, err = svc.ProcessTurn(ctx, "u1", "s1", "Хочу седан")
	require.NoError(t, err)
	_, err = svc.ProcessTurn(ctx, "u2", "s1", "Хочу седан")
	assert.ErrorIs(t, err, model.ErrSessionOwnership)
}

func TestChatService_GeneratesSessionID(t *testing.T) {
	resp, err := newChatFixture().build().ProcessTurn(context.Background(), "u1", "", "Привет!")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, model.CapabilitySmalltalk, resp.Classification.Capability)
	assert.Equal(t, []TurnState{StateIdle, StateClassifying, StateDrafting, StateCommittingMemory, StateIdle}, resp.States)
	assert.Equal(t, smalltalkReply, resp.ReplyText)
	assert.Nil(t, resp.SearchResult)
}

func TestChatService_RelaxesYearAndBrand(t *testing.T) {
	resp, err := newChatFixture().build().ProcessTurn(context.Background(), "u1", "s1", "BMW 2023 до 1 миллиона")
	require.NoError(t, err)

	require.NotNil(t, resp.Criteria)
	assert.Equal(t, "BMW", resp.Criteria.Brand)
	assert.Equal(t, float64(1000000), resp.Criteria.MaxPrice)
	assert.Equal(t, 2023, resp.Criteria.MinYear)
	assert.Equal(t, 2023, resp.Criteria.MaxYear)

	res := resp.SearchResult
	require.NotNil(t, res)
	assert.Equal(t, model.StrategyRelaxed, res.Strategy)
	require.NotEmpty(t, res.RelaxationSteps)
	assert.Equal(t, model.ParamMaxPrice, res.RelaxationSteps[0].Parameter)
	assert.Equal(t, model.RelaxWidenNumeric, res.RelaxationSteps[0].Strategy)
	brand, ok := res.StepFor(model.ParamBrand)
	require.True(t, ok)
	assert.Equal(t, "Audi", brand.NewValue)
	assert.Equal(t, []string{"audi-a3"}, itemIDs(res.Items))
	assert.Less(t, res.Confidence, 1.0)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
}

func TestChatService_EveryUtteranceHasTopic(t *testing.T) {
	f := newChatFixture()
	svc := f.build()
	ctx := context.Background()

	tests := []struct {
		sessionID string
		text      string
		topic     string
	}{
		{"greet", "Привет", topicSmalltalk},
		{"search", "подбери машину до 2 млн", topicCarSearch},
		{"loan", "Рассчитай кредит", topicFinance},
	}
	for _, tt := range tests {
		t.Run(tt.sessionID, func(t *testing.T) {
			_, err := svc.ProcessTurn(ctx, "u1", tt.sessionID, tt.text)
			require.NoError(t, err)

			session, err := f.sessions.Load(ctx, tt.sessionID)
			require.NoError(t, err)
			require.Len(t, session.Utterances, 2)
			for _, u := range session.Utterances {
				assert.NotEmpty(t, u.Topic)
				assert.Equal(t, tt.topic, u.Topic)
			}
			assert.NotContains(t, session.UserInterests, tt.topic)
		})
	}
}

func TestChatService_LoanForShownItem(t *testing.T) {
	f := newChatFixture()
	svc := f.build()
	ctx := context.Background()

	first, err := svc.ProcessTurn(ctx, "u1", "s1", "Хочу хэтчбек")
	require.NoError(t, err)
	require.NotNil(t, first.SearchResult)
	assert.Equal(t, []string{"audi-a3"}, itemIDs(first.SearchResult.Items))
	assert.Nil(t, first.Loan)

	second, err := svc.ProcessTurn(ctx, "u1", "s1", "Рассчитай кредит")
	require.NoError(t, err)
	require.NotNil(t, second.Loan)
	assert.Equal(t, "audi-a3", second.Loan.ItemID)
	assert.Equal(t, float64(216000), second.Loan.DownPayment)
	assert.Equal(t, float64(864000), second.Loan.LoanAmount)
	assert.Equal(t, f.cfg.LoanTermMonths, second.Loan.Terms.TermMonths)
	assert.Greater(t, second.Loan.MonthlyPayment, 0.0)
	assert.Equal(t, formatLoan(*second.Loan), second.ReplyText)
	assert.Contains(t, second.ReplyText, "Расчёт кредита")
}

func TestChatService_LoanWithoutShownItem(t *testing.T) {
	resp, err := newChatFixture().build().ProcessTurn(context.Background(), "u1", "s1", "Рассчитай кредит")
	require.NoError(t, err)
	assert.Nil(t, resp.Loan)
	assert.Equal(t, financeNoTargetReply, resp.ReplyText)
}
