package goal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/models"
)

func testPlanner(responses ...string) (*Planner, *llm.ScriptedClient) {
	builtin := config.GetBuiltinConfig()
	client := llm.NewScriptedClient(responses...)
	return NewPlanner(config.DefaultGoalConfig(), config.NewAgentRegistry(builtin.Agents), client), client
}

func TestPlanProducesOrderedSteps(t *testing.T) {
	planner, _ := testPlanner(`{
		"title": "Land a backend role",
		"clarify": false,
		"steps": [
			{"title": "Survey openings", "description": "d1", "agent_name": "scout"},
			{"title": "Score fit", "description": "d2", "agent_name": "match"},
			{"title": "Write materials", "description": "d3", "agent_name": "forge"},
			{"title": "Prep interviews", "description": "d4", "agent_name": "coach"}
		]}`)

	plan, err := planner.Plan(context.Background(), "I want a backend job at a health-tech startup")
	require.NoError(t, err)

	assert.Equal(t, "Land a backend role", plan.Title)
	assert.False(t, plan.Clarify)
	require.Len(t, plan.Steps, 4)
	assert.Equal(t, "scout", plan.Steps[0].AgentName)
	assert.Equal(t, "coach", plan.Steps[3].AgentName)
}

func TestPlanDropsUnknownAgents(t *testing.T) {
	planner, _ := testPlanner(`{
		"title": "Plan",
		"steps": [
			{"title": "a", "agent_name": "scout"},
			{"title": "b", "agent_name": "wizard"},
			{"title": "c", "agent_name": "match"},
			{"title": "d", "agent_name": "forge"}
		]}`)

	plan, err := planner.Plan(context.Background(), "objective")
	require.NoError(t, err)

	require.Len(t, plan.Steps, 3)
	for _, s := range plan.Steps {
		assert.NotEqual(t, "wizard", s.AgentName)
	}
}

func TestPlanTooFewValidStepsFallsBack(t *testing.T) {
	planner, _ := testPlanner(`{
		"title": "Plan",
		"steps": [
			{"title": "a", "agent_name": "scout"},
			{"title": "b", "agent_name": "nobody"}
		]}`)

	plan, err := planner.Plan(context.Background(), "objective")
	require.NoError(t, err)

	// fallback plan: scout → match → forge
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, "scout", plan.Steps[0].AgentName)
	assert.Equal(t, "match", plan.Steps[1].AgentName)
	assert.Equal(t, "forge", plan.Steps[2].AgentName)
}

func TestPlanCapsAtMaxSteps(t *testing.T) {
	planner, _ := testPlanner(`{
		"title": "Plan",
		"steps": [
			{"title": "1", "agent_name": "scout"},
			{"title": "2", "agent_name": "scout"},
			{"title": "3", "agent_name": "match"},
			{"title": "4", "agent_name": "match"},
			{"title": "5", "agent_name": "forge"},
			{"title": "6", "agent_name": "forge"},
			{"title": "7", "agent_name": "coach"},
			{"title": "8", "agent_name": "coach"}
		]}`)

	plan, err := planner.Plan(context.Background(), "objective")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, config.DefaultGoalConfig().MaxSteps)
}

func TestPlanClarifyingQuestion(t *testing.T) {
	planner, _ := testPlanner(`{
		"title": "Clarify objective",
		"clarify": true,
		"steps": [{"title": "What kind of role are you looking for?", "agent_name": "coach"}]}`)

	plan, err := planner.Plan(context.Background(), "help")
	require.NoError(t, err)

	assert.True(t, plan.Clarify)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "What kind of role are you looking for?", plan.Steps[0].Title)
}

func TestPlanModelFailureFallsBack(t *testing.T) {
	planner, client := testPlanner()
	client.Err = errors.New("provider down")

	plan, err := planner.Plan(context.Background(), "find me a job")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 3)
	assert.Equal(t, "find me a job", plan.Title)
}

func TestPlanEmptyObjectiveRejected(t *testing.T) {
	planner, _ := testPlanner()
	_, err := planner.Plan(context.Background(), "  ")
	require.Error(t, err)
}

func testGoal() *models.Goal {
	return &models.Goal{ID: "goal-1", UserID: "user-1", Title: "Land a role", Status: models.GoalStatusActive}
}

func TestAdjustContinueByDefault(t *testing.T) {
	planner, _ := testPlanner(`{"action": "continue", "reason": "plan holds"}`)

	adj := planner.Adjust(context.Background(), testGoal(),
		[]models.Step{{Ordinal: 1, Status: models.StepStatusCompleted}},
		[]models.Step{{Ordinal: 2, Status: models.StepStatusPending}})

	assert.Equal(t, models.PlanContinue, adj.Action)
}

func TestAdjustModifyStepValidated(t *testing.T) {
	planner, _ := testPlanner(
		`{"action": "modify_step", "reason": "premise changed", "new_title": "New step", "agent_name": "match"}`,
		`{"action": "modify_step", "reason": "premise changed", "new_title": "New step", "agent_name": "unknown"}`,
		`{"action": "modify_step", "reason": "premise changed", "agent_name": "match"}`,
	)
	remaining := []models.Step{{Ordinal: 2, Status: models.StepStatusPending}}

	valid := planner.Adjust(context.Background(), testGoal(), nil, remaining)
	assert.Equal(t, models.PlanModifyStep, valid.Action)
	assert.Equal(t, "New step", valid.NewTitle)

	badAgent := planner.Adjust(context.Background(), testGoal(), nil, remaining)
	assert.Equal(t, models.PlanContinue, badAgent.Action)

	noTitle := planner.Adjust(context.Background(), testGoal(), nil, remaining)
	assert.Equal(t, models.PlanContinue, noTitle.Action)
}

func TestAdjustNoRemainingShortCircuits(t *testing.T) {
	planner, client := testPlanner()
	adj := planner.Adjust(context.Background(), testGoal(), nil, nil)
	assert.Equal(t, models.PlanContinue, adj.Action)
	assert.Zero(t, client.CallCount())
}

func TestAdjustModelFailureContinues(t *testing.T) {
	planner, client := testPlanner()
	client.Err = errors.New("provider down")

	adj := planner.Adjust(context.Background(), testGoal(), nil,
		[]models.Step{{Ordinal: 2, Status: models.StepStatusPending}})
	assert.Equal(t, models.PlanContinue, adj.Action)
}
