package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/models"
)

// Negotiator runs the optional multi-round debate across agents whose
// reports diverge, converging on a consensus position or flagging dissent.
type Negotiator struct {
	cfg    *config.NegotiationConfig
	agents *config.AgentRegistry
	llm    llm.Client
}

// NewNegotiator creates a negotiator using the given model.
func NewNegotiator(cfg *config.NegotiationConfig, agents *config.AgentRegistry, client llm.Client) *Negotiator {
	return &Negotiator{cfg: cfg, agents: agents, llm: client}
}

// Diverges reports whether the given reports disagree semantically:
// confidence spread above the threshold, or conflicting values on any
// tracked field shared by two reports.
func (n *Negotiator) Diverges(reports []models.AgentReport) bool {
	ok := successful(reports)
	if len(ok) < 2 {
		return false
	}

	minC, maxC := ok[0].Confidence, ok[0].Confidence
	for _, r := range ok[1:] {
		if r.Confidence < minC {
			minC = r.Confidence
		}
		if r.Confidence > maxC {
			maxC = r.Confidence
		}
	}
	if maxC-minC > n.cfg.ConfidenceSpread {
		return true
	}

	// Conflicting values for the same tracked field count as semantic
	// disagreement.
	seen := make(map[string]any)
	for _, r := range ok {
		for _, field := range n.trackedFields(r.AgentName) {
			value, present := r.Fields[field]
			if !present {
				continue
			}
			if prev, dup := seen[field]; dup && !reflect.DeepEqual(prev, value) {
				return true
			}
			seen[field] = value
		}
	}
	return false
}

// Run executes up to MaxRounds debate rounds. Every round streams a
// negotiation_round event; the outcome streams as negotiation_result.
func (n *Negotiator) Run(
	ctx context.Context,
	userID string,
	publisher events.Publisher,
	reports []models.AgentReport,
) *models.ConsensusResult {
	participants := successful(reports)
	if len(participants) < 2 {
		return &models.ConsensusResult{Reached: true, RoundsTaken: 0}
	}

	positions := make([]models.NegotiationPosition, len(participants))
	for i, r := range participants {
		positions[i] = models.NegotiationPosition{
			AgentName:  r.AgentName,
			Stance:     models.StanceMaintain,
			Position:   r.Output,
			Evidence:   r.Rationale,
			Confidence: r.Confidence,
			Fields:     r.Fields,
		}
	}

	rounds := 0
	for round := 1; round <= n.cfg.MaxRounds; round++ {
		if ctx.Err() != nil {
			break
		}
		rounds = round
		positions = n.runRound(ctx, positions)

		publisher.Publish(userID, events.KindNegotiationRound, events.NegotiationRoundPayload{
			Round:     round,
			Positions: summarize(positions),
		})

		if n.converged(positions) {
			result := n.consensusResult(positions, rounds)
			publisher.Publish(userID, events.KindNegotiationResult, negotiationResultPayload(result))
			return result
		}
	}

	result := n.exhaustedResult(positions, rounds)
	publisher.Publish(userID, events.KindNegotiationResult, negotiationResultPayload(result))
	return result
}

// runRound asks every participant, in parallel, to respond to the others'
// positions. An unavailable or unparseable reply keeps the prior position.
func (n *Negotiator) runRound(ctx context.Context, positions []models.NegotiationPosition) []models.NegotiationPosition {
	next := make([]models.NegotiationPosition, len(positions))
	var wg sync.WaitGroup
	for i := range positions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next[i] = n.respond(ctx, positions[i], others(positions, i))
		}(i)
	}
	wg.Wait()
	return next
}

type negotiationReply struct {
	Stance     string         `json:"stance"`
	Position   string         `json:"position"`
	Evidence   string         `json:"evidence"`
	Confidence *float64       `json:"confidence"`
	Fields     map[string]any `json:"fields"`
}

func (n *Negotiator) respond(ctx context.Context, own models.NegotiationPosition, peers []models.NegotiationPosition) models.NegotiationPosition {
	text, err := n.llm.Complete(ctx, llm.Request{
		System:   negotiatorSystemPrompt(own.AgentName),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: renderDebate(own, peers)}},
		JSONOnly: true,
	})
	if err != nil {
		slog.Warn("Negotiation reply unavailable, keeping position",
			"agent", own.AgentName, "error", err)
		return own
	}

	var reply negotiationReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		slog.Warn("Negotiation reply unparseable, keeping position",
			"agent", own.AgentName, "error", err)
		return own
	}

	updated := own
	switch models.NegotiationStance(reply.Stance) {
	case models.StanceMaintain, models.StanceRefine, models.StanceConcede, models.StanceChallenge:
		updated.Stance = models.NegotiationStance(reply.Stance)
	default:
		updated.Stance = models.StanceMaintain
	}
	if reply.Position != "" {
		updated.Position = reply.Position
	}
	if reply.Evidence != "" {
		updated.Evidence = reply.Evidence
	}
	if reply.Confidence != nil {
		updated.Confidence = clamp01(*reply.Confidence)
	}
	if len(reply.Fields) > 0 {
		updated.Fields = reply.Fields
	}
	return updated
}

// converged checks consensus: all positions equivalent on tracked fields
// and mean confidence at or above the threshold.
func (n *Negotiator) converged(positions []models.NegotiationPosition) bool {
	if meanConfidence(positions) < n.cfg.ConsensusConfidence {
		return false
	}

	seen := make(map[string]any)
	for _, p := range positions {
		for _, field := range n.trackedFields(p.AgentName) {
			value, present := p.Fields[field]
			if !present {
				continue
			}
			if prev, dup := seen[field]; dup && !reflect.DeepEqual(prev, value) {
				return false
			}
			seen[field] = value
		}
	}
	return true
}

func (n *Negotiator) consensusResult(positions []models.NegotiationPosition, rounds int) *models.ConsensusResult {
	best := highestConfidence(positions)
	return &models.ConsensusResult{
		Reached:     true,
		Position:    best.Position,
		Confidence:  meanConfidence(positions),
		RoundsTaken: rounds,
	}
}

// exhaustedResult returns the highest-confidence position and preserves
// dissenting views verbatim.
func (n *Negotiator) exhaustedResult(positions []models.NegotiationPosition, rounds int) *models.ConsensusResult {
	best := highestConfidence(positions)
	var dissent []string
	for _, p := range positions {
		if p.AgentName != best.AgentName && p.Stance != models.StanceConcede {
			dissent = append(dissent, fmt.Sprintf("%s: %s", p.AgentName, p.Position))
		}
	}
	return &models.ConsensusResult{
		Reached:     false,
		Position:    best.Position,
		Confidence:  best.Confidence,
		Dissenting:  dissent,
		RoundsTaken: rounds,
	}
}

func (n *Negotiator) trackedFields(agentName string) []string {
	cfg, err := n.agents.Get(agentName)
	if err != nil {
		return nil
	}
	return cfg.TrackedFields
}

func negotiatorSystemPrompt(agentName string) string {
	return fmt.Sprintf(`You are the %s agent in a structured debate with other agents about a
shared answer. Consider their positions and respond with exactly one JSON
object:
{"stance": "maintain|refine|concede|challenge",
 "position": "your possibly-updated position",
 "evidence": "one sentence",
 "confidence": 0.0-1.0,
 "fields": {...}}`, agentName)
}

func renderDebate(own models.NegotiationPosition, peers []models.NegotiationPosition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your current position (confidence %.2f): %s\n\n", own.Confidence, own.Position)
	sb.WriteString("Other agents' positions:\n")
	for _, p := range peers {
		fmt.Fprintf(&sb, "- %s (%s, confidence %.2f): %s\n", p.AgentName, p.Stance, p.Confidence, p.Position)
		if len(p.Fields) > 0 {
			if data, err := json.Marshal(p.Fields); err == nil {
				fmt.Fprintf(&sb, "  fields: %s\n", data)
			}
		}
	}
	return sb.String()
}

func negotiationResultPayload(result *models.ConsensusResult) events.NegotiationResultPayload {
	return events.NegotiationResultPayload{
		Consensus:  result.Reached,
		Position:   result.Position,
		Confidence: result.Confidence,
		Dissent:    result.Dissenting,
	}
}

func summarize(positions []models.NegotiationPosition) []events.NegotiationPositionSummary {
	out := make([]events.NegotiationPositionSummary, len(positions))
	for i, p := range positions {
		out[i] = events.NegotiationPositionSummary{
			Agent:      p.AgentName,
			Stance:     string(p.Stance),
			Confidence: p.Confidence,
			Summary:    p.Position,
		}
	}
	return out
}

func successful(reports []models.AgentReport) []models.AgentReport {
	out := make([]models.AgentReport, 0, len(reports))
	for _, r := range reports {
		if !r.Failed {
			out = append(out, r)
		}
	}
	return out
}

func others(positions []models.NegotiationPosition, i int) []models.NegotiationPosition {
	out := make([]models.NegotiationPosition, 0, len(positions)-1)
	for j, p := range positions {
		if j != i {
			out = append(out, p)
		}
	}
	return out
}

func highestConfidence(positions []models.NegotiationPosition) models.NegotiationPosition {
	best := positions[0]
	for _, p := range positions[1:] {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	return best
}

func meanConfidence(positions []models.NegotiationPosition) float64 {
	if len(positions) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range positions {
		sum += p.Confidence
	}
	return sum / float64(len(positions))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
