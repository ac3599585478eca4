package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/models"
)

func negTestSubject(client llm.Client) *Negotiator {
	cfg := testConfig()
	return NewNegotiator(cfg.Negotiation, cfg.AgentRegistry, client)
}

func stancePosition(stance, position string, confidence float64) string {
	return fmt.Sprintf(`{"stance": %q, "position": %q, "evidence": "e", "confidence": %v}`,
		stance, position, confidence)
}

func TestDivergesOnConfidenceSpread(t *testing.T) {
	neg := negTestSubject(llm.NewScriptedClient())

	reports := []models.AgentReport{
		{AgentName: "scout", Output: "a", Confidence: 0.9},
		{AgentName: "match", Output: "b", Confidence: 0.5},
	}
	assert.True(t, neg.Diverges(reports))

	agreeing := []models.AgentReport{
		{AgentName: "scout", Output: "a", Confidence: 0.8},
		{AgentName: "match", Output: "b", Confidence: 0.75},
	}
	assert.False(t, neg.Diverges(agreeing))
}

func TestDivergesOnTrackedFieldConflict(t *testing.T) {
	neg := negTestSubject(llm.NewScriptedClient())

	reports := []models.AgentReport{
		{AgentName: "match", Output: "a", Confidence: 0.8,
			Fields: map[string]any{"verdict": "strong"}},
		{AgentName: "forge", Output: "b", Confidence: 0.8,
			Fields: map[string]any{"deliverable": "cover_letter"}},
	}
	// no shared tracked fields, close confidence: no divergence
	assert.False(t, neg.Diverges(reports))

	conflict := []models.AgentReport{
		{AgentName: "match", Output: "a", Confidence: 0.8,
			Fields: map[string]any{"verdict": "strong"}},
		{AgentName: "match", Output: "b", Confidence: 0.8,
			Fields: map[string]any{"verdict": "weak"}},
	}
	assert.True(t, neg.Diverges(conflict))
}

func TestDivergesNeedsTwoSuccessfulReports(t *testing.T) {
	neg := negTestSubject(llm.NewScriptedClient())

	reports := []models.AgentReport{
		{AgentName: "scout", Output: "a", Confidence: 0.9},
		{AgentName: "match", Failed: true, Confidence: 0.1},
	}
	assert.False(t, neg.Diverges(reports))
}

func TestNegotiationConsensusFirstRound(t *testing.T) {
	// Both agents refine to high confidence with no field conflicts.
	client := llm.NewScriptedClient(stancePosition("refine", "shared answer", 0.85))
	neg := negTestSubject(client)
	recorder := events.NewRecorder()

	reports := []models.AgentReport{
		{AgentName: "scout", Output: "a", Confidence: 0.9},
		{AgentName: "match", Output: "b", Confidence: 0.4},
	}
	result := neg.Run(context.Background(), "user-1", recorder, reports)

	require.True(t, result.Reached)
	assert.Equal(t, 1, result.RoundsTaken)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
	assert.Empty(t, result.Dissenting)

	kinds := recorder.Kinds()
	assert.Equal(t, []string{events.KindNegotiationRound, events.KindNegotiationResult}, kinds)
}

func TestNegotiationExhaustionKeepsDissent(t *testing.T) {
	// Replies keep confidence low so consensus never forms; the debate
	// runs all rounds and reports the strongest position with dissent.
	client := llm.NewScriptedClient(stancePosition("maintain", "my answer", 0.6))
	neg := negTestSubject(client)
	recorder := events.NewRecorder()

	reports := []models.AgentReport{
		{AgentName: "scout", Output: "scout position", Confidence: 0.9},
		{AgentName: "match", Output: "match position", Confidence: 0.3},
	}
	result := neg.Run(context.Background(), "user-1", recorder, reports)

	require.False(t, result.Reached)
	assert.Equal(t, testConfig().Negotiation.MaxRounds, result.RoundsTaken)
	require.Len(t, result.Dissenting, 1)

	rounds := 0
	for _, k := range recorder.Kinds() {
		if k == events.KindNegotiationRound {
			rounds++
		}
	}
	assert.Equal(t, testConfig().Negotiation.MaxRounds, rounds)
}

func TestNegotiationConcededAgentsExcludedFromDissent(t *testing.T) {
	client := llm.NewScriptedClient(stancePosition("concede", "fine, your way", 0.5))
	neg := negTestSubject(client)

	reports := []models.AgentReport{
		{AgentName: "scout", Output: "scout position", Confidence: 0.9},
		{AgentName: "match", Output: "match position", Confidence: 0.3},
	}
	result := neg.Run(context.Background(), "user-1", events.NopPublisher{}, reports)

	require.False(t, result.Reached)
	assert.Empty(t, result.Dissenting)
}

func TestNegotiationModelFailureKeepsPositions(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Err = errors.New("provider down")
	neg := negTestSubject(client)

	reports := []models.AgentReport{
		{AgentName: "scout", Output: "scout position", Confidence: 0.9,
			Fields: map[string]any{"companies": []any{"a"}}},
		{AgentName: "match", Output: "match position", Confidence: 0.3},
	}
	result := neg.Run(context.Background(), "user-1", events.NopPublisher{}, reports)

	// seed positions survive untouched; mean 0.6 < 0.7 so no consensus
	require.False(t, result.Reached)
	assert.Equal(t, "scout position", result.Position)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
}

func TestNegotiationInvalidStanceDefaultsToMaintain(t *testing.T) {
	client := llm.NewScriptedClient(stancePosition("shrug", "updated", 0.9))
	neg := negTestSubject(client)

	reports := []models.AgentReport{
		{AgentName: "scout", Output: "a", Confidence: 0.9},
		{AgentName: "match", Output: "b", Confidence: 0.4},
	}
	result := neg.Run(context.Background(), "user-1", events.NopPublisher{}, reports)

	// 0.9 mean confidence converges despite the bogus stance string
	require.True(t, result.Reached)
}

func TestMeanAndClampHelpers(t *testing.T) {
	assert.Zero(t, meanConfidence(nil))
	assert.Equal(t, 0.0, clamp01(-1))
	assert.Equal(t, 1.0, clamp01(2))
	assert.Equal(t, 0.5, clamp01(0.5))
}
