package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/models"
	"github.com/kaziai/kazi/pkg/tool"
)

// Runner executes one agent to produce an AgentReport.
type Runner struct{}

// NewRunner creates a runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run drives the reason/act/observe loop:
//
//  1. Build a reasoning prompt from history, brief, and prior reports.
//  2. Ask the model for a tool call or a final answer.
//  3. On tool call: invoke via the registry, record the round in the
//     trace, emit an agent_reasoning event, loop.
//  4. On final answer: parse into the report shape and return.
//
// Bounds: MaxToolRounds tool rounds, then a forced conclusion; one parse
// repair; per-tool timeout with one retry for read-only tools.
// Cancellation is polled between rounds and before each tool call.
//
// The returned report always carries the trace ID; a non-nil error is
// reserved for broken wiring, not agent-level failures (those come back
// as report.Failed with an ErrorKind).
func (r *Runner) Run(ctx context.Context, exec *Execution) (*models.AgentReport, error) {
	if exec.Config == nil {
		return nil, fmt.Errorf("agent %q has no configuration", exec.AgentName)
	}

	start := time.Now()
	log := slog.With("agent", exec.AgentName, "turn_id", exec.TurnID)

	traceID, err := exec.Traces.Create(ctx, models.CreateTraceRequest{
		UserID:       exec.UserID,
		TurnID:       exec.TurnID,
		StepID:       exec.StepID,
		AgentName:    exec.AgentName,
		InputsDigest: Digest(exec.Brief, renderShared(exec.Shared)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trace: %w", err)
	}

	exec.Publisher.Publish(exec.UserID, events.KindAgentStatus, events.AgentStatusPayload{
		Agent: exec.AgentName, Status: events.AgentStatusRunning,
	})

	report := r.iterate(ctx, exec, traceID, log)
	report.AgentName = exec.AgentName
	report.TraceID = traceID

	latency := time.Since(start).Milliseconds()
	status := models.TraceStatusCompleted
	eventStatus := events.AgentStatusComplete
	message := ""
	switch report.ErrorKind {
	case models.ErrKindCancelled:
		status = models.TraceStatusCancelled
		eventStatus = events.AgentStatusCancelled
		message = "cancelled"
	case "":
	default:
		status = models.TraceStatusFailed
		eventStatus = events.AgentStatusFailed
		message = report.Rationale
	}
	if err := exec.Traces.Finish(ctx, traceID, status, latency); err != nil {
		log.Warn("Failed to finish trace", "trace_id", traceID, "error", err)
	}

	exec.Publisher.Publish(exec.UserID, events.KindAgentStatus, events.AgentStatusPayload{
		Agent: exec.AgentName, Status: eventStatus, Message: message,
	})

	return report, nil
}

func (r *Runner) iterate(ctx context.Context, exec *Execution, traceID string, log *slog.Logger) *models.AgentReport {
	system := buildSystemPrompt(exec)
	messages := buildMessages(exec)
	repaired := false
	seq := 0

	maxRounds := exec.MaxToolRounds
	if maxRounds < 1 {
		maxRounds = 1
	}

	for round := 1; round <= maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return failedReport(models.ErrKindCancelled, "execution cancelled")
		}

		text, err := exec.LLM.Complete(ctx, llm.Request{
			System:   system,
			Messages: messages,
			JSONOnly: true,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return failedReport(models.ErrKindCancelled, "execution cancelled")
			}
			log.Warn("LLM call failed", "round", round, "error", err)
			return failedReport(models.ErrKindLLMUnavailable, err.Error())
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: text})

		reply, ok := parseReply(text)
		if !ok {
			if repaired {
				return failedReport(models.ErrKindAgentParseFailed, "unparseable reply after repair")
			}
			repaired = true
			round-- // the repair exchange does not consume a tool round
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: repairPrompt})
			continue
		}

		if reply.isFinalAnswer() {
			return finalReport(reply)
		}

		// Tool call path. Cancellation is checked before invoking.
		if err := ctx.Err(); err != nil {
			return failedReport(models.ErrKindCancelled, "execution cancelled")
		}

		observation := r.callTool(ctx, exec, traceID, reply, round, &seq)
		if observation.report != nil {
			return observation.report
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: observation.text})
	}

	return r.forceConclusion(ctx, exec, system, messages)
}

// toolOutcome is either an observation to feed back or a terminal report.
type toolOutcome struct {
	text   string
	report *models.AgentReport
}

// callTool invokes one tool round: registry dispatch with timeout and
// retry, trace entry, and the tool_status / agent_reasoning events.
func (r *Runner) callTool(ctx context.Context, exec *Execution, traceID string, reply *parsedReply, round int, seq *int) toolOutcome {
	allowed := false
	for _, name := range exec.Config.Tools {
		if name == reply.Tool {
			allowed = true
			break
		}
	}

	exec.Publisher.Publish(exec.UserID, events.KindToolStatus, events.ToolStatusPayload{
		Agent: exec.AgentName, Tool: reply.Tool, Status: events.ToolStatusStarted,
	})

	var result tool.Result
	if !allowed {
		result = tool.Failure(models.ErrKindNoSuchTool,
			fmt.Sprintf("tool %q is not available; available tools: %s",
				reply.Tool, strings.Join(exec.Config.Tools, ", ")))
	} else {
		result = exec.Tools.InvokeWithTimeout(ctx, reply.Tool, reply.Args, exec.ToolTimeout)
	}

	toolStatus := events.ToolStatusCompleted
	if !result.OK {
		toolStatus = events.ToolStatusFailed
	}
	exec.Publisher.Publish(exec.UserID, events.KindToolStatus, events.ToolStatusPayload{
		Agent: exec.AgentName, Tool: reply.Tool, Status: toolStatus,
		LatencyMs: result.LatencyMs, ErrorKind: result.ErrorKind,
	})

	digest := resultDigest(result)
	*seq++
	entry := models.TraceEntry{
		Seq:          *seq,
		Thought:      reply.Thought,
		ToolName:     reply.Tool,
		ResultDigest: digest,
	}
	if err := exec.Traces.AppendEntry(ctx, traceID, entry); err != nil {
		slog.Warn("Failed to append trace entry", "trace_id", traceID, "error", err)
	}

	exec.Publisher.Publish(exec.UserID, events.KindAgentReasoning, events.AgentReasoningPayload{
		Agent: exec.AgentName, Round: round,
		Thought: reply.Thought, Tool: reply.Tool, ResultDigest: digest,
	})

	switch result.ErrorKind {
	case "":
		return toolOutcome{text: renderObservation(reply.Tool, result.Data)}
	case models.ErrKindCancelled:
		return toolOutcome{report: failedReport(models.ErrKindCancelled, "execution cancelled")}
	case models.ErrKindToolFailed, models.ErrKindInvalidArgs:
		// Handler-level failures surface as step failures.
		return toolOutcome{report: failedReport(result.ErrorKind, result.Error)}
	default:
		// no_such_tool and tool_timeout go back to the agent, which
		// decides whether to abandon or answer without the tool.
		return toolOutcome{text: fmt.Sprintf("Tool call failed (%s): %s", result.ErrorKind, result.Error)}
	}
}

// forceConclusion runs one final LLM call demanding an answer.
func (r *Runner) forceConclusion(ctx context.Context, exec *Execution, system string, messages []llm.Message) *models.AgentReport {
	if err := ctx.Err(); err != nil {
		return failedReport(models.ErrKindCancelled, "execution cancelled")
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: forcedConclusionPrompt})
	text, err := exec.LLM.Complete(ctx, llm.Request{
		System:   system,
		Messages: messages,
		JSONOnly: true,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return failedReport(models.ErrKindCancelled, "execution cancelled")
		}
		return failedReport(models.ErrKindLLMUnavailable, err.Error())
	}

	reply, ok := parseReply(text)
	if !ok || !reply.isFinalAnswer() {
		return failedReport(models.ErrKindAgentParseFailed, "no final answer after forced conclusion")
	}
	return finalReport(reply)
}

func finalReport(reply *parsedReply) *models.AgentReport {
	return &models.AgentReport{
		Output:     reply.Output,
		Confidence: clampConfidence(reply.Confidence),
		Rationale:  reply.Rationale,
		Fields:     reply.Fields,
	}
}

func failedReport(kind models.ErrorKind, msg string) *models.AgentReport {
	return &models.AgentReport{
		Failed:    true,
		ErrorKind: kind,
		Rationale: msg,
	}
}

func resultDigest(result tool.Result) string {
	if !result.OK {
		return Digest(string(result.ErrorKind), result.Error)
	}
	return Digest(fmt.Sprintf("%v", result.Data))
}
