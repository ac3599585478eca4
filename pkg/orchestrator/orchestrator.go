package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaziai/kazi/pkg/agent"
	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/metrics"
	"github.com/kaziai/kazi/pkg/models"
	"github.com/kaziai/kazi/pkg/tool"
)

// ConversationStore is the persistence contract the orchestrator needs:
// lazy conversation creation, ordered message append, trailing history,
// and a per-conversation exclusive lock held for the span of one turn's
// writes.
type ConversationStore interface {
	Ensure(ctx context.Context, userID, conversationID string) (*models.Conversation, bool, error)
	AppendMessage(ctx context.Context, req models.AddMessageRequest) (*models.Message, error)
	History(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	// Lock acquires the conversation's advisory lock; the returned
	// release must be called after the assistant message is persisted.
	Lock(ctx context.Context, conversationID string) (release func(), err error)
}

// TurnRequest is one run_turn invocation.
type TurnRequest struct {
	UserID         string
	ConversationID string // empty means create lazily
	Text           string
	Attachment     *models.Attachment
}

// TurnResult reports where the turn's artifacts landed.
type TurnResult struct {
	TurnID         string
	ConversationID string
	TraceIDs       []string
	Assistant      string
}

// Orchestrator drives the full pipeline for one user turn: routing, agent
// steps, evaluation, optional negotiation, and synthesis.
type Orchestrator struct {
	cfg    *config.Config
	llms   *llm.Registry
	tools  *tool.Registry
	runner *agent.Runner

	router     *Router
	evaluator  *Evaluator
	negotiator *Negotiator

	publisher     events.Publisher
	conversations ConversationStore
	traces        agent.TraceSink
	cancels       *CancelRegistry
}

// New wires an orchestrator from its collaborators.
func New(
	cfg *config.Config,
	llms *llm.Registry,
	tools *tool.Registry,
	publisher events.Publisher,
	conversations ConversationStore,
	traces agent.TraceSink,
) *Orchestrator {
	defaultClient := llms.Default()
	return &Orchestrator{
		cfg:           cfg,
		llms:          llms,
		tools:         tools,
		runner:        agent.NewRunner(),
		router:        NewRouter(cfg, defaultClient),
		evaluator:     NewEvaluator(cfg.AgentRegistry, defaultClient),
		negotiator:    NewNegotiator(cfg.Negotiation, cfg.AgentRegistry, defaultClient),
		publisher:     publisher,
		conversations: conversations,
		traces:        traces,
		cancels:       NewCancelRegistry(),
	}
}

// Cancels exposes the cancel registry for the transport layer.
func (o *Orchestrator) Cancels() *CancelRegistry {
	return o.cancels
}

// CancelTurn raises the cancel token for a conversation's in-flight turn.
// Idempotent.
func (o *Orchestrator) CancelTurn(userID, conversationID string) {
	o.cancels.Cancel(userID, conversationID)
}

// RunTurn executes one user turn end to end. Events stream through the
// publisher; the stream terminates with done or error. The returned error
// mirrors the error event for callers running synchronously.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		o.publishError(req.UserID, "", models.ErrKindInvalidInput, "user text must be non-empty")
		return nil, fmt.Errorf("user text must be non-empty")
	}

	turnID := uuid.New().String()
	log := slog.With("turn_id", turnID, "user_id", req.UserID)

	conv, created, err := o.conversations.Ensure(ctx, req.UserID, req.ConversationID)
	if err != nil {
		o.publishError(req.UserID, turnID, models.ErrKindInternal, "failed to open conversation")
		return nil, fmt.Errorf("failed to ensure conversation: %w", err)
	}
	if created {
		log.Info("Conversation created lazily", "conversation_id", conv.ID)
	}

	o.publisher.Publish(req.UserID, events.KindConversationID, events.ConversationIDPayload{
		ConversationID: conv.ID, TurnID: turnID,
	})

	// One turn writes a conversation at a time.
	release, err := o.conversations.Lock(ctx, conv.ID)
	if err != nil {
		o.publishError(req.UserID, turnID, models.ErrKindInternal, "conversation is busy")
		return nil, fmt.Errorf("failed to lock conversation: %w", err)
	}
	defer release()

	if _, err := o.conversations.AppendMessage(ctx, models.AddMessageRequest{
		ConversationID: conv.ID, Role: models.RoleUser, Content: req.Text,
	}); err != nil {
		o.publishError(req.UserID, turnID, models.ErrKindInternal, "failed to persist message")
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	// Turn-scoped cancel token under the global wall-clock budget.
	turnCtx, releaseToken := o.cancels.Register(ctx, req.UserID, conv.ID)
	defer releaseToken()
	turnCtx, cancelBudget := context.WithTimeout(turnCtx, o.cfg.Orchestrator.TurnBudget)
	defer cancelBudget()

	history, err := o.conversations.History(ctx, conv.ID, o.cfg.Orchestrator.RouterHistory+1)
	if err != nil {
		log.Warn("Failed to load history, routing on the message alone", "error", err)
		history = nil
	}
	// The just-persisted user message is passed explicitly.
	history = trimLast(history, req.Text)

	start := time.Now()
	result := o.runPipeline(turnCtx, ctx, turnID, conv.ID, history, req, log)
	metrics.RecordTurn(turnStatus(turnCtx), time.Since(start).Seconds())

	result.TurnID = turnID
	result.ConversationID = conv.ID
	return result, nil
}

// turnStatus classifies a finished turn for instrumentation.
func turnStatus(turnCtx context.Context) string {
	switch {
	case errors.Is(turnCtx.Err(), context.DeadlineExceeded):
		return "budget_exceeded"
	case turnCtx.Err() != nil:
		return "cancelled"
	default:
		return "completed"
	}
}

// runPipeline is the body of a turn after persistence setup. turnCtx
// carries cancellation and the budget; persistCtx survives both so the
// assistant message can still be written after a cancel or timeout.
func (o *Orchestrator) runPipeline(
	turnCtx, persistCtx context.Context,
	turnID, conversationID string,
	history []models.Message,
	req TurnRequest,
	log *slog.Logger,
) *TurnResult {
	routing := o.router.Route(turnCtx, history, req.Text)
	o.publisher.Publish(req.UserID, events.KindRouting, events.RoutingPayload{
		Intent: routing.Intent, Agents: routing.Agents,
		Confidence: routing.Confidence, Direct: routing.Direct,
	})

	if routing.Direct {
		return o.runDirect(turnCtx, persistCtx, turnID, conversationID, history, req)
	}

	shared := agent.NewShared(routing.Extracted)
	state := newEvalState()
	traceIDs := make([]string, 0, len(routing.Agents))
	remaining := append([]string(nil), routing.Agents...)
	var completed []string
	cancelled := false
	budgetExceeded := false

	classifyStop := func() {
		if errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
			budgetExceeded = true
		} else {
			cancelled = true
		}
	}

	for len(remaining) > 0 {
		if turnCtx.Err() != nil {
			classifyStop()
			break
		}

		agentName := remaining[0]
		remaining = remaining[1:]

		var attachments []models.Attachment
		if req.Attachment != nil {
			attachments = []models.Attachment{*req.Attachment}
		}
		report := o.execAgent(turnCtx, execParams{
			UserID:      req.UserID,
			TurnID:      turnID,
			AgentName:   agentName,
			Brief:       req.Text,
			History:     history,
			Attachments: attachments,
			Shared:      shared,
		})
		if report.TraceID != "" {
			traceIDs = append(traceIDs, report.TraceID)
		}
		shared.AddReport(*report)
		completed = append(completed, agentName)

		if report.ErrorKind == models.ErrKindCancelled {
			classifyStop()
			break
		}

		// Every completed step gets an evaluation, including the last:
		// the evaluator may still extend an empty pipeline via add_agent.
		decision := o.evaluator.Evaluate(turnCtx, state, report, remaining, completed, shared)
		o.publisher.Publish(req.UserID, events.KindEvaluator, events.EvaluatorPayload{
			Action: string(decision.Action), Target: decision.TargetAgent, Reason: decision.Reason,
		})

		switch decision.Action {
		case models.EvalStop:
			remaining = nil
		case models.EvalSkipNext:
			if len(remaining) > 0 {
				remaining = remaining[1:]
			}
		case models.EvalLoopBack:
			shared.RemoveReportsFor(decision.TargetAgent)
			remaining = append([]string{decision.TargetAgent}, remaining...)
		case models.EvalAddAgent:
			remaining = append([]string{decision.TargetAgent}, remaining...)
		}
	}

	// Budget expiry is a terminal error; the remaining agents are dropped
	// and synthesis runs over whatever the completed steps produced.
	if budgetExceeded {
		o.publishError(req.UserID, turnID, models.ErrKindTurnBudgetExceeded,
			"turn budget exhausted; answering from completed steps")
	}

	// Negotiation phase for pipelines that enable it.
	var consensus *models.ConsensusResult
	if !cancelled && !budgetExceeded && o.negotiationEnabled(routing.Intent) && o.negotiator.Diverges(shared.Reports()) {
		consensus = o.negotiator.Run(turnCtx, req.UserID, o.publisher, shared.Reports())
	}

	assistant := o.synthesize(turnCtx, req.UserID, req.Text, shared, consensus, cancelled)

	if _, err := o.conversations.AppendMessage(persistCtx, models.AddMessageRequest{
		ConversationID: conversationID, Role: models.RoleAssistant, Content: assistant,
	}); err != nil {
		log.Error("Failed to persist assistant message", "error", err)
	}

	o.publisher.Publish(req.UserID, events.KindTraceIDs, events.TraceIDsPayload{IDs: traceIDs})
	o.publisher.Publish(req.UserID, events.KindDone, events.DonePayload{TurnID: turnID})

	return &TurnResult{TraceIDs: traceIDs, Assistant: assistant}
}

// StepRequest executes a single agent outside a chat turn, on behalf of a
// goal step. The goal executor is its only caller.
type StepRequest struct {
	UserID    string
	StepID    string
	AgentName string
	Brief     string
	Shared    *agent.Shared
}

// RunStep runs one agent through the same runtime a chat turn uses, with
// the goal step id threaded into the trace.
func (o *Orchestrator) RunStep(ctx context.Context, req StepRequest) *models.AgentReport {
	shared := req.Shared
	if shared == nil {
		shared = agent.NewShared(nil)
	}
	return o.execAgent(ctx, execParams{
		UserID:    req.UserID,
		StepID:    req.StepID,
		AgentName: req.AgentName,
		Brief:     req.Brief,
		Shared:    shared,
	})
}

type execParams struct {
	UserID      string
	TurnID      string
	StepID      string
	AgentName   string
	Brief       string
	History     []models.Message
	Attachments []models.Attachment
	Shared      *agent.Shared
}

// execAgent executes one agent through the agent runtime.
func (o *Orchestrator) execAgent(ctx context.Context, p execParams) *models.AgentReport {
	agentCfg, err := o.cfg.AgentRegistry.Get(p.AgentName)
	if err != nil {
		// Router and planner both validate agent names; a miss here is a
		// wiring bug.
		slog.Error("Dispatched agent missing from registry", "agent", p.AgentName)
		return &models.AgentReport{
			AgentName: p.AgentName, Failed: true,
			ErrorKind: models.ErrKindInternal, Rationale: "agent not registered",
		}
	}

	client, err := o.llms.ForProvider(agentCfg.LLMProvider)
	if err != nil {
		return &models.AgentReport{
			AgentName: p.AgentName, Failed: true,
			ErrorKind: models.ErrKindLLMUnavailable, Rationale: err.Error(),
		}
	}

	maxRounds := agentCfg.MaxToolRounds
	if maxRounds == 0 {
		maxRounds = o.cfg.Orchestrator.MaxToolRounds
	}

	report, err := o.runner.Run(ctx, &agent.Execution{
		UserID:        p.UserID,
		TurnID:        p.TurnID,
		StepID:        p.StepID,
		AgentName:     p.AgentName,
		Config:        agentCfg,
		LLM:           client,
		Tools:         o.tools,
		Publisher:     o.publisher,
		Traces:        o.traces,
		MaxToolRounds: maxRounds,
		ToolTimeout:   o.cfg.Orchestrator.ToolTimeout,
		History:       p.History,
		Brief:         p.Brief,
		Attachments:   p.Attachments,
		Shared:        p.Shared,
	})
	if err != nil {
		slog.Error("Agent execution wiring failure", "agent", p.AgentName, "error", err)
		metrics.RecordAgentExecution(p.AgentName, "failed")
		return &models.AgentReport{
			AgentName: p.AgentName, Failed: true,
			ErrorKind: models.ErrKindInternal, Rationale: err.Error(),
		}
	}

	status := events.AgentStatusComplete
	if report.Failed {
		status = events.AgentStatusFailed
		if report.ErrorKind == models.ErrKindCancelled {
			status = events.AgentStatusCancelled
		}
	}
	metrics.RecordAgentExecution(p.AgentName, status)
	return report
}

func (o *Orchestrator) negotiationEnabled(intentName string) bool {
	intent, err := o.cfg.IntentRegistry.Get(intentName)
	return err == nil && intent.Negotiate
}

func trimLast(history []models.Message, text string) []models.Message {
	if n := len(history); n > 0 && history[n-1].Role == models.RoleUser && history[n-1].Content == text {
		return history[:n-1]
	}
	return history
}

func (o *Orchestrator) publishError(userID, turnID string, kind models.ErrorKind, msg string) {
	o.publisher.Publish(userID, events.KindError, events.ErrorPayload{
		Kind: kind, Message: msg, TurnID: turnID,
	})
}
