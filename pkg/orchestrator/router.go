// Package orchestrator composes the router, agent runtime, evaluator, and
// negotiator into the full pipeline for one user turn.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/models"
)

// Router classifies a user message into {intent, ordered agent list,
// confidence}, with a direct-answer fallback below the confidence
// threshold.
type Router struct {
	cfg *config.Config
	llm llm.Client
}

// NewRouter creates a router using the given classification model.
func NewRouter(cfg *config.Config, client llm.Client) *Router {
	return &Router{cfg: cfg, llm: client}
}

type routerReply struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Extracted  map[string]any `json:"extracted"`
	Reasoning  string         `json:"reasoning"`
}

// Route classifies the latest user message given the trailing history.
// A model failure or unknown intent degrades to the direct-answer path
// rather than failing the turn.
func (r *Router) Route(ctx context.Context, history []models.Message, userText string) *models.RoutingDecision {
	text, err := r.llm.Complete(ctx, llm.Request{
		System:   r.systemPrompt(),
		Messages: r.messages(history, userText),
		JSONOnly: true,
	})
	if err != nil {
		slog.Warn("Router model call failed, falling back to direct response", "error", err)
		return directDecision("general_chat", 0, "router unavailable")
	}

	var reply routerReply
	if jsonErr := json.Unmarshal([]byte(text), &reply); jsonErr != nil {
		slog.Warn("Router reply unparseable, falling back to direct response", "error", jsonErr)
		return directDecision("general_chat", 0, "unparseable routing reply")
	}

	intent, err := r.cfg.IntentRegistry.Get(reply.Intent)
	if err != nil {
		slog.Warn("Router produced unknown intent", "intent", reply.Intent)
		return directDecision("general_chat", reply.Confidence, reply.Reasoning)
	}

	decision := &models.RoutingDecision{
		Intent:     reply.Intent,
		Confidence: reply.Confidence,
		Extracted:  reply.Extracted,
		Reasoning:  reply.Reasoning,
	}

	// Below the threshold, or an intentionally empty pipeline, means
	// "respond directly without any agent step".
	agents := dedupeAgents(intent.Agents)
	if reply.Confidence < r.cfg.Orchestrator.RouterConfidenceThreshold || len(agents) == 0 {
		decision.Direct = true
		decision.Agents = []string{}
		return decision
	}

	decision.Agents = agents
	return decision
}

func (r *Router) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You route user messages in a career-assistance product to one intent.\n")
	sb.WriteString("Known intents:\n")
	for _, name := range r.cfg.IntentRegistry.Names() {
		intent, _ := r.cfg.IntentRegistry.Get(name)
		fmt.Fprintf(&sb, "- %s: %s\n", name, intent.Description)
	}
	sb.WriteString(`
Reply with exactly one JSON object:
{"intent": "<name>", "confidence": 0.0-1.0,
 "extracted": {"company": "...", "role": "...", ...},
 "reasoning": "one sentence"}
Only include extracted entities actually present in the message.`)
	return sb.String()
}

func (r *Router) messages(history []models.Message, userText string) []llm.Message {
	k := r.cfg.Orchestrator.RouterHistory
	if len(history) > k {
		history = history[len(history)-k:]
	}

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

func directDecision(intent string, confidence float64, reasoning string) *models.RoutingDecision {
	return &models.RoutingDecision{
		Intent:     intent,
		Agents:     []string{},
		Confidence: confidence,
		Direct:     true,
		Reasoning:  reasoning,
	}
}

// dedupeAgents removes duplicates preserving first occurrence.
func dedupeAgents(agents []string) []string {
	seen := make(map[string]bool, len(agents))
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
