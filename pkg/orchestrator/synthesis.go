package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kaziai/kazi/pkg/agent"
	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/models"
)

// directAgentName labels traces produced by the direct-answer path.
const directAgentName = "direct"

const apologyMessage = "I ran into trouble completing that request. Most of my " +
	"assistants hit errors, so I don't have a reliable answer for you right " +
	"now. Please try again in a moment."

const cancelledMessage = "Request cancelled. Let me know what you'd like to do next."

// runDirect answers the turn with a single model call, no agent steps.
// Even the direct path leaves a trace so feedback can attach to it.
func (o *Orchestrator) runDirect(
	turnCtx, persistCtx context.Context,
	turnID, conversationID string,
	history []models.Message,
	req TurnRequest,
) *TurnResult {
	start := time.Now()
	traceID, err := o.traces.Create(turnCtx, models.CreateTraceRequest{
		UserID:       req.UserID,
		TurnID:       turnID,
		AgentName:    directAgentName,
		InputsDigest: agent.Digest(req.Text),
	})
	if err != nil {
		slog.Error("Failed to create direct trace", "error", err)
	}

	assistant, streamErr := o.streamCompletion(turnCtx, req.UserID, llm.Request{
		System:   directSystemPrompt,
		Messages: directMessages(history, req.Text),
	})

	status := models.TraceStatusCompleted
	if streamErr != nil {
		switch {
		case turnCtx.Err() != nil:
			status = models.TraceStatusCancelled
			assistant = cancelledMessage
		default:
			status = models.TraceStatusFailed
			assistant = apologyMessage
			o.publishError(req.UserID, turnID, models.ErrKindLLMUnavailable, "model unavailable")
		}
		// Partial stream output is discarded; emit the fallback whole.
		o.publisher.Publish(req.UserID, events.KindContent, events.ContentPayload{Delta: assistant})
	}

	if traceID != "" {
		if err := o.traces.Finish(persistCtx, traceID, status, time.Since(start).Milliseconds()); err != nil {
			slog.Error("Failed to finish direct trace", "trace_id", traceID, "error", err)
		}
	}

	if _, err := o.conversations.AppendMessage(persistCtx, models.AddMessageRequest{
		ConversationID: conversationID, Role: models.RoleAssistant, Content: assistant,
	}); err != nil {
		slog.Error("Failed to persist assistant message", "error", err)
	}

	traceIDs := []string{}
	if traceID != "" {
		traceIDs = append(traceIDs, traceID)
	}
	o.publisher.Publish(req.UserID, events.KindTraceIDs, events.TraceIDsPayload{IDs: traceIDs})
	o.publisher.Publish(req.UserID, events.KindDone, events.DonePayload{TurnID: turnID})

	return &TurnResult{TraceIDs: traceIDs, Assistant: assistant}
}

// synthesize produces the final assistant message from the pipeline's
// reports, streaming content deltas as they arrive.
func (o *Orchestrator) synthesize(
	turnCtx context.Context,
	userID, userText string,
	shared *agent.Shared,
	consensus *models.ConsensusResult,
	cancelled bool,
) string {
	if cancelled {
		o.publisher.Publish(userID, events.KindContent, events.ContentPayload{Delta: cancelledMessage})
		return cancelledMessage
	}

	// Majority agent failure means the reports cannot be trusted as a
	// basis for an answer.
	if shared.FailureRatio() >= o.cfg.Orchestrator.FailureApologyRatio {
		o.publisher.Publish(userID, events.KindContent, events.ContentPayload{Delta: apologyMessage})
		return apologyMessage
	}

	// Synthesis streams outside the cancel token: the user message is the
	// reports, already paid for.
	synthCtx, cancel := context.WithTimeout(context.WithoutCancel(turnCtx), 60*time.Second)
	defer cancel()

	assistant, err := o.streamCompletion(synthCtx, userID, llm.Request{
		System:   synthesisSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: renderSynthesisInput(userText, shared, consensus)}},
	})
	if err != nil {
		slog.Warn("Synthesis model call failed, falling back to best report", "error", err)
		assistant = fallbackSynthesis(shared, consensus)
		o.publisher.Publish(userID, events.KindContent, events.ContentPayload{Delta: assistant})
	}
	return assistant
}

// directMessages maps the trailing history onto chat roles and appends the
// current user message. Unlike the router path, the full loaded history is
// sent; it is already bounded by the history query limit.
func directMessages(history []models.Message, userText string) []llm.Message {
	var messages []llm.Message
	for _, msg := range history {
		role := llm.RoleUser
		if msg.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: userText})
}

// streamCompletion streams the model's answer as content events and
// returns the full text.
func (o *Orchestrator) streamCompletion(ctx context.Context, userID string, req llm.Request) (string, error) {
	client := o.llms.Default()
	return client.CompleteStream(ctx, req, func(delta string) error {
		o.publisher.Publish(userID, events.KindContent, events.ContentPayload{Delta: delta})
		return nil
	})
}

// fallbackSynthesis stitches an answer from raw reports when the
// synthesis model is unavailable.
func fallbackSynthesis(shared *agent.Shared, consensus *models.ConsensusResult) string {
	if consensus != nil && consensus.Position != "" {
		return consensus.Position
	}
	var best *models.AgentReport
	for _, r := range shared.Reports() {
		r := r
		if r.Failed {
			continue
		}
		if best == nil || r.Confidence > best.Confidence {
			best = &r
		}
	}
	if best == nil {
		return apologyMessage
	}
	return best.Output
}

const directSystemPrompt = `You are Kazi, a friendly career assistant. Answer the user's message
directly and concisely. If the question needs research or document work you
cannot do inline, say what you can help with instead.`

const synthesisSystemPrompt = `You are Kazi, a career assistant. Several specialist agents have
analyzed the user's request; their reports follow. Write the final answer
for the user: synthesize the findings into clear prose, surface concrete
numbers and names, and present dissenting views fairly when they exist.
Never mention the agents or the internal process.`

func renderSynthesisInput(userText string, shared *agent.Shared, consensus *models.ConsensusResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User request: %s\n\n", userText)

	for _, r := range shared.Reports() {
		if r.Failed {
			fmt.Fprintf(&sb, "[%s] failed (%s); no findings.\n\n", r.AgentName, r.ErrorKind)
			continue
		}
		fmt.Fprintf(&sb, "[%s] (confidence %.2f):\n%s\n", r.AgentName, r.Confidence, r.Output)
		if len(r.Fields) > 0 {
			if data, err := json.Marshal(r.Fields); err == nil {
				fmt.Fprintf(&sb, "fields: %s\n", data)
			}
		}
		sb.WriteString("\n")
	}

	if consensus != nil {
		if consensus.Reached {
			fmt.Fprintf(&sb, "The agents reached consensus (confidence %.2f): %s\n",
				consensus.Confidence, consensus.Position)
		} else {
			fmt.Fprintf(&sb, "No consensus after %d rounds. Leading position: %s\n",
				consensus.RoundsTaken, consensus.Position)
			for _, d := range consensus.Dissenting {
				fmt.Fprintf(&sb, "Dissenting view: %s\n", d)
			}
		}
	}
	return sb.String()
}
