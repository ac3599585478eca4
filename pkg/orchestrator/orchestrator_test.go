package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaziai/kazi/pkg/agent"
	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/models"
	"github.com/kaziai/kazi/pkg/tool"
)

// testConfig builds a Config from the built-in agents and intents.
func testConfig() *config.Config {
	builtin := config.GetBuiltinConfig()
	return &config.Config{
		DefaultProvider:     builtin.DefaultProvider,
		Orchestrator:        config.DefaultOrchestratorConfig(),
		Negotiation:         config.DefaultNegotiationConfig(),
		Goals:               config.DefaultGoalConfig(),
		Tasks:               config.DefaultTaskConfig(),
		Push:                config.DefaultPushConfig(),
		AgentRegistry:       config.NewAgentRegistry(builtin.Agents),
		IntentRegistry:      config.NewIntentRegistry(builtin.Intents),
		LLMProviderRegistry: config.NewLLMProviderRegistry(builtin.LLMProviders),
	}
}

// memConversationStore is an in-memory ConversationStore for tests.
type memConversationStore struct {
	mu    sync.Mutex
	convs map[string]*models.Conversation
	msgs  map[string][]models.Message
}

func newMemConversationStore() *memConversationStore {
	return &memConversationStore{
		convs: make(map[string]*models.Conversation),
		msgs:  make(map[string][]models.Message),
	}
}

func (s *memConversationStore) Ensure(_ context.Context, userID, conversationID string) (*models.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID != "" {
		if conv, ok := s.convs[conversationID]; ok {
			return conv, false, nil
		}
	}
	conv := &models.Conversation{ID: uuid.New().String(), UserID: userID}
	s.convs[conv.ID] = conv
	return conv, true, nil
}

func (s *memConversationStore) AppendMessage(_ context.Context, req models.AddMessageRequest) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := models.Message{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Ordinal:        len(s.msgs[req.ConversationID]) + 1,
		Role:           req.Role,
		Content:        req.Content,
	}
	s.msgs[req.ConversationID] = append(s.msgs[req.ConversationID], msg)
	return &msg, nil
}

func (s *memConversationStore) History(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.msgs[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *memConversationStore) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

func (s *memConversationStore) messages(conversationID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.msgs[conversationID]...)
}

// seqTraceSink hands out trace-1, trace-2, … and records finishes.
type seqTraceSink struct {
	mu       sync.Mutex
	created  int
	statuses map[string]models.TraceStatus
}

func newSeqTraceSink() *seqTraceSink {
	return &seqTraceSink{statuses: make(map[string]models.TraceStatus)}
}

func (s *seqTraceSink) Create(context.Context, models.CreateTraceRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	return fmt.Sprintf("trace-%d", s.created), nil
}

func (s *seqTraceSink) AppendEntry(context.Context, string, models.TraceEntry) error { return nil }

func (s *seqTraceSink) Finish(_ context.Context, traceID string, status models.TraceStatus, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[traceID] = status
	return nil
}

func newTestOrchestrator(t *testing.T, client llm.Client) (*Orchestrator, *memConversationStore, *seqTraceSink, *events.Recorder) {
	t.Helper()
	tools := tool.NewRegistry()
	tool.RegisterBuiltins(tools)

	recorder := events.NewRecorder()
	store := newMemConversationStore()
	traces := newSeqTraceSink()
	llms := llm.NewRegistryFromClients(map[string]llm.Client{"groq": client}, "groq")

	return New(testConfig(), llms, tools, recorder, store, traces), store, traces, recorder
}

func finalAnswer(output string, confidence float64) string {
	return fmt.Sprintf(`{"output": %q, "confidence": %v, "rationale": "done", "fields": {}}`, output, confidence)
}

func TestRunTurnDirectPath(t *testing.T) {
	client := llm.NewScriptedClient(
		`{"intent": "general_chat", "confidence": 0.9, "reasoning": "greeting"}`,
		"Hello! How can I help with your career today?",
	)
	orch, store, traces, recorder := newTestOrchestrator(t, client)

	result, err := orch.RunTurn(context.Background(), TurnRequest{
		UserID: "user-1", Text: "hi there",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello! How can I help with your career today?", result.Assistant)
	assert.Equal(t, []string{"trace-1"}, result.TraceIDs)
	assert.Equal(t, models.TraceStatusCompleted, traces.statuses["trace-1"])

	kinds := recorder.Kinds()
	assert.Equal(t, []string{
		events.KindConversationID,
		events.KindRouting,
		events.KindContent,
		events.KindTraceIDs,
		events.KindDone,
	}, kinds)

	// routing must announce the direct path with no agents
	routing := recorder.Events()[1].Payload.(events.RoutingPayload)
	assert.True(t, routing.Direct)
	assert.Empty(t, routing.Agents)

	msgs := store.messages(result.ConversationID)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
}

func TestRunTurnSingleAgentPipeline(t *testing.T) {
	client := llm.NewScriptedClient(
		`{"intent": "job_search", "confidence": 0.92, "extracted": {"role": "backend engineer"}, "reasoning": "job hunt"}`,
		finalAnswer("Found 3 strong openings at Northwind Labs.", 0.85),
		`{"action": "continue", "reason": "findings are complete"}`,
		"Here are three roles worth a look.",
	)
	orch, _, traces, recorder := newTestOrchestrator(t, client)

	result, err := orch.RunTurn(context.Background(), TurnRequest{
		UserID: "user-1", Text: "find me backend engineer jobs",
	})
	require.NoError(t, err)

	assert.Equal(t, "Here are three roles worth a look.", result.Assistant)
	assert.Equal(t, []string{"trace-1"}, result.TraceIDs)
	assert.Equal(t, models.TraceStatusCompleted, traces.statuses["trace-1"])

	// the evaluator speaks after every completed step, the last included
	assert.Equal(t, []string{
		events.KindConversationID,
		events.KindRouting,
		events.KindAgentStatus,
		events.KindAgentStatus,
		events.KindEvaluator,
		events.KindContent,
		events.KindTraceIDs,
		events.KindDone,
	}, recorder.Kinds())

	routing := recorder.Events()[1].Payload.(events.RoutingPayload)
	assert.False(t, routing.Direct)
	assert.Equal(t, []string{"scout"}, routing.Agents)
}

func TestRunTurnMultiAgentWithEvaluator(t *testing.T) {
	client := llm.NewScriptedClient(
		`{"intent": "write_materials", "confidence": 0.9, "reasoning": "cover letter"}`,
		finalAnswer("ATS score 82, strong match.", 0.8),
		`{"action": "continue", "reason": "analysis looks sound"}`,
		finalAnswer("Drafted the cover letter.", 0.82),
		`{"action": "continue", "reason": "letter covers the findings"}`,
		"Your cover letter is ready; the role is a strong match.",
	)
	orch, _, _, recorder := newTestOrchestrator(t, client)

	result, err := orch.RunTurn(context.Background(), TurnRequest{
		UserID: "user-1", Text: "write me a cover letter for the Northwind role",
	})
	require.NoError(t, err)

	// match and forge both ran, the evaluator spoke after each, and the
	// close confidences meant no negotiation.
	assert.Equal(t, []string{
		events.KindConversationID,
		events.KindRouting,
		events.KindAgentStatus,
		events.KindAgentStatus,
		events.KindEvaluator,
		events.KindAgentStatus,
		events.KindAgentStatus,
		events.KindEvaluator,
		events.KindContent,
		events.KindTraceIDs,
		events.KindDone,
	}, recorder.Kinds())

	assert.Equal(t, []string{"trace-1", "trace-2"}, result.TraceIDs)
}

func TestRunTurnEvaluatorStop(t *testing.T) {
	client := llm.NewScriptedClient(
		`{"intent": "write_materials", "confidence": 0.9, "reasoning": "cover letter"}`,
		finalAnswer("Resume already matches; no rewrite needed.", 0.95),
		`{"action": "stop", "reason": "nothing left to write"}`,
		"You're all set; the resume already fits the role.",
	)
	orch, _, _, recorder := newTestOrchestrator(t, client)

	result, err := orch.RunTurn(context.Background(), TurnRequest{
		UserID: "user-1", Text: "do I need a new cover letter?",
	})
	require.NoError(t, err)

	// forge never ran
	assert.Equal(t, []string{"trace-1"}, result.TraceIDs)
	assert.NotContains(t, recorder.Kinds()[5:], events.KindAgentStatus)
}

func TestRunTurnEvaluatorExtendsEmptyPipeline(t *testing.T) {
	client := llm.NewScriptedClient(
		`{"intent": "job_search", "confidence": 0.92, "reasoning": "job hunt"}`,
		finalAnswer("Found 3 openings, fit unknown.", 0.7),
		`{"action": "add_agent", "target_agent": "match", "reason": "openings need fit scoring"}`,
		finalAnswer("All three score above 80.", 0.85),
		`{"action": "continue", "reason": "scored"}`,
		"Three openings, all strong fits.",
	)
	orch, _, _, recorder := newTestOrchestrator(t, client)

	result, err := orch.RunTurn(context.Background(), TurnRequest{
		UserID: "user-1", Text: "find me jobs and tell me if they fit",
	})
	require.NoError(t, err)

	// the pipeline was [scout] only; the evaluator appended match after the
	// final planned step
	assert.Equal(t, []string{"trace-1", "trace-2"}, result.TraceIDs)
	assert.Equal(t, "Three openings, all strong fits.", result.Assistant)

	var statuses, evals int
	for _, k := range recorder.Kinds() {
		switch k {
		case events.KindAgentStatus:
			statuses++
		case events.KindEvaluator:
			evals++
		}
	}
	assert.Equal(t, 4, statuses)
	assert.Equal(t, 2, evals)
}

// expiringContext reports a deadline expiry once flipped, without waiting
// out a real timer.
type expiringContext struct {
	context.Context
	expired atomic.Bool
}

func (c *expiringContext) Err() error {
	if c.expired.Load() {
		return context.DeadlineExceeded
	}
	return c.Context.Err()
}

// expireOnEvaluator flips the context's deadline after the first evaluator
// event, so the next loop iteration sees the budget spent.
type expireOnEvaluator struct {
	*events.Recorder
	ctx *expiringContext
}

func (p *expireOnEvaluator) Publish(userID, kind string, payload any) {
	p.Recorder.Publish(userID, kind, payload)
	if kind == events.KindEvaluator {
		p.ctx.expired.Store(true)
	}
}

func TestRunPipelineBudgetExpiryAnswersFromCompletedSteps(t *testing.T) {
	client := llm.NewScriptedClient(
		`{"intent": "write_materials", "confidence": 0.9, "reasoning": "cover letter"}`,
		finalAnswer("ATS score 82, strong match.", 0.8),
		`{"action": "continue", "reason": "analysis looks sound"}`,
		"Here is what I found before running out of time.",
	)
	tools := tool.NewRegistry()
	tool.RegisterBuiltins(tools)
	recorder := events.NewRecorder()
	turnCtx := &expiringContext{Context: context.Background()}
	publisher := &expireOnEvaluator{Recorder: recorder, ctx: turnCtx}
	llms := llm.NewRegistryFromClients(map[string]llm.Client{"groq": client}, "groq")
	orch := New(testConfig(), llms, tools, publisher, newMemConversationStore(), newSeqTraceSink())

	result := orch.runPipeline(turnCtx, context.Background(), "turn-1", "conv-1", nil,
		TurnRequest{UserID: "user-1", Text: "write me a cover letter"}, slog.Default())

	// the budget expired after match; forge was dropped, synthesis ran over
	// the one completed report
	assert.Equal(t, "Here is what I found before running out of time.", result.Assistant)
	assert.Equal(t, []string{"trace-1"}, result.TraceIDs)

	assert.Equal(t, []string{
		events.KindRouting,
		events.KindAgentStatus,
		events.KindAgentStatus,
		events.KindEvaluator,
		events.KindError,
		events.KindContent,
		events.KindTraceIDs,
		events.KindDone,
	}, recorder.Kinds())

	payload := recorder.Events()[4].Payload.(events.ErrorPayload)
	assert.Equal(t, models.ErrKindTurnBudgetExceeded, payload.Kind)
}

// midAgentCanceller raises the turn's cancel token while the first agent is
// running.
type midAgentCanceller struct {
	*events.Recorder
	orch   *Orchestrator
	convID string
	once   sync.Once
}

func (p *midAgentCanceller) Publish(userID, kind string, payload any) {
	p.Recorder.Publish(userID, kind, payload)
	switch kind {
	case events.KindConversationID:
		p.convID = payload.(events.ConversationIDPayload).ConversationID
	case events.KindAgentStatus:
		if sp := payload.(events.AgentStatusPayload); sp.Status == events.AgentStatusRunning {
			p.once.Do(func() { p.orch.CancelTurn(userID, p.convID) })
		}
	}
}

func TestRunTurnCancelMidAgent(t *testing.T) {
	client := llm.NewScriptedClient(
		`{"intent": "job_search", "confidence": 0.92, "reasoning": "job hunt"}`,
		finalAnswer("never reached", 0.5),
	)
	tools := tool.NewRegistry()
	tool.RegisterBuiltins(tools)
	recorder := events.NewRecorder()
	publisher := &midAgentCanceller{Recorder: recorder}
	llms := llm.NewRegistryFromClients(map[string]llm.Client{"groq": client}, "groq")
	orch := New(testConfig(), llms, tools, publisher, newMemConversationStore(), newSeqTraceSink())
	publisher.orch = orch

	result, err := orch.RunTurn(context.Background(), TurnRequest{
		UserID: "user-1", Text: "find me jobs",
	})
	require.NoError(t, err)

	assert.Equal(t, cancelledMessage, result.Assistant)
	assert.Contains(t, result.Assistant, "cancelled")

	// running, then a terminal cancelled frame naming the cause; the stream
	// still closes with trace_ids and done, and no error frame
	assert.Equal(t, []string{
		events.KindConversationID,
		events.KindRouting,
		events.KindAgentStatus,
		events.KindAgentStatus,
		events.KindContent,
		events.KindTraceIDs,
		events.KindDone,
	}, recorder.Kinds())

	terminal := recorder.Events()[3].Payload.(events.AgentStatusPayload)
	assert.Equal(t, events.AgentStatusCancelled, terminal.Status)
	assert.Equal(t, "cancelled", terminal.Message)
}

func TestDirectMessagesMapsHistoryRoles(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	msgs := directMessages(history, "what next?")
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "what next?"}, msgs[2])
}

func TestRunTurnRouterFailureFallsBackToDirect(t *testing.T) {
	// First call (router) returns non-JSON, which is unparseable routing.
	failing := llm.NewScriptedClient(
		"not json at all",
		"I can still answer directly.",
	)
	orch, _, _, recorder := newTestOrchestrator(t, failing)

	result, err := orch.RunTurn(context.Background(), TurnRequest{
		UserID: "user-1", Text: "help me out",
	})
	require.NoError(t, err)

	assert.Equal(t, "I can still answer directly.", result.Assistant)
	routing := recorder.Events()[1].Payload.(events.RoutingPayload)
	assert.True(t, routing.Direct)
	assert.Equal(t, "general_chat", routing.Intent)
}

func TestRunTurnEmptyTextRejected(t *testing.T) {
	orch, _, _, recorder := newTestOrchestrator(t, llm.NewScriptedClient())

	_, err := orch.RunTurn(context.Background(), TurnRequest{UserID: "user-1", Text: "   "})
	require.Error(t, err)

	require.Len(t, recorder.Events(), 1)
	assert.Equal(t, events.KindError, recorder.Events()[0].Kind)
	payload := recorder.Events()[0].Payload.(events.ErrorPayload)
	assert.Equal(t, models.ErrKindInvalidInput, payload.Kind)
}

func TestRunTurnCancelledContext(t *testing.T) {
	client := llm.NewScriptedClient("never used")
	orch, _, _, recorder := newTestOrchestrator(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := orch.RunTurn(ctx, TurnRequest{UserID: "user-1", Text: "find jobs"})
	require.NoError(t, err)

	// The router cannot run on a dead context, so the turn degrades to the
	// direct path and reports the stop instead of hanging.
	assert.Equal(t, cancelledMessage, result.Assistant)
	kinds := recorder.Kinds()
	assert.Equal(t, events.KindDone, kinds[len(kinds)-1])
}

func TestRunTurnReusesConversation(t *testing.T) {
	client := llm.NewScriptedClient(
		`{"intent": "general_chat", "confidence": 0.9, "reasoning": "chat"}`,
		"First answer.",
		`{"intent": "general_chat", "confidence": 0.9, "reasoning": "chat"}`,
		"Second answer.",
	)
	orch, store, _, _ := newTestOrchestrator(t, client)

	first, err := orch.RunTurn(context.Background(), TurnRequest{UserID: "user-1", Text: "hello"})
	require.NoError(t, err)

	second, err := orch.RunTurn(context.Background(), TurnRequest{
		UserID: "user-1", ConversationID: first.ConversationID, Text: "and again",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Len(t, store.messages(first.ConversationID), 4)
}

func TestSynthesizeApologyOnMajorityFailure(t *testing.T) {
	client := llm.NewScriptedClient("should not be called")
	orch, _, _, recorder := newTestOrchestrator(t, client)

	shared := agent.NewShared(nil)
	shared.AddReport(models.AgentReport{AgentName: "scout", Failed: true, ErrorKind: models.ErrKindToolFailed})
	shared.AddReport(models.AgentReport{AgentName: "match", Output: "fine", Confidence: 0.9})

	got := orch.synthesize(context.Background(), "user-1", "question", shared, nil, false)
	assert.Equal(t, apologyMessage, got)
	assert.Zero(t, client.CallCount())

	require.Len(t, recorder.Events(), 1)
	assert.Equal(t, events.KindContent, recorder.Events()[0].Kind)
}

func TestSynthesizeCancelled(t *testing.T) {
	client := llm.NewScriptedClient("should not be called")
	orch, _, _, _ := newTestOrchestrator(t, client)

	got := orch.synthesize(context.Background(), "user-1", "question", agent.NewShared(nil), nil, true)
	assert.Equal(t, cancelledMessage, got)
	assert.Zero(t, client.CallCount())
}

func TestSynthesizeFallbackOnModelFailure(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Err = fmt.Errorf("%w: boom", llm.ErrUnavailable)
	orch, _, _, recorder := newTestOrchestrator(t, client)

	shared := agent.NewShared(nil)
	shared.AddReport(models.AgentReport{AgentName: "scout", Output: "low", Confidence: 0.5})
	shared.AddReport(models.AgentReport{AgentName: "match", Output: "the best findings", Confidence: 0.9})

	got := orch.synthesize(context.Background(), "user-1", "question", shared, nil, false)
	assert.Equal(t, "the best findings", got)
	require.NotEmpty(t, recorder.Events())
}

func TestFallbackSynthesisPrefersConsensus(t *testing.T) {
	shared := agent.NewShared(nil)
	shared.AddReport(models.AgentReport{AgentName: "scout", Output: "report", Confidence: 0.9})

	got := fallbackSynthesis(shared, &models.ConsensusResult{Reached: true, Position: "agreed position"})
	assert.Equal(t, "agreed position", got)
}

func TestTrimLast(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "a"},
		{Role: models.RoleAssistant, Content: "b"},
		{Role: models.RoleUser, Content: "c"},
	}
	assert.Len(t, trimLast(history, "c"), 2)
	assert.Len(t, trimLast(history, "other"), 3)
	assert.Empty(t, trimLast(nil, "c"))
}
