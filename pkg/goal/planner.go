// Package goal plans long-horizon user objectives into ordered agent steps
// and executes them, one at a time or autonomously, through the turn
// runtime.
package goal

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

// Planner decomposes an objective into a bounded, ordered list of agent
// steps. Every step's agent must exist in the registry.
type Planner struct {
	cfg    *config.GoalConfig
	agents *config.AgentRegistry
	llm    llm.Client
}

// NewPlanner creates a planner using the given model.
func NewPlanner(cfg *config.GoalConfig, agents *config.AgentRegistry, client llm.Client) *Planner {
	return &Planner{cfg: cfg, agents: agents, llm: client}
}

type plannerReply struct {
	Title   string               `json:"title"`
	Clarify bool                 `json:"clarify"`
	Steps   []models.PlannedStep `json:"steps"`
}

// Plan turns an objective into a step list. A vague objective yields a
// single clarifying step; a model failure yields the fallback plan rather
// than an error.
func (p *Planner) Plan(ctx context.Context, objective string) (*models.Plan, error) {
	if strings.TrimSpace(objective) == "" {
		return nil, fmt.Errorf("objective must be non-empty")
	}

	text, err := p.llm.Complete(ctx, llm.Request{
		System:   p.systemPrompt(),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: objective}},
		JSONOnly: true,
	})
	if err != nil {
		slog.Warn("Planner model call failed, using fallback plan", "error", err)
		return p.fallbackPlan(objective), nil
	}

	var reply plannerReply
	if jsonErr := json.Unmarshal([]byte(text), &reply); jsonErr != nil {
		slog.Warn("Planner reply unparseable, using fallback plan", "error", jsonErr)
		return p.fallbackPlan(objective), nil
	}

	if reply.Clarify {
		return p.clarifyPlan(reply), nil
	}

	steps := p.keepKnownAgents(reply.Steps)
	if len(steps) < p.cfg.MinSteps {
		slog.Warn("Planner produced too few valid steps, using fallback plan",
			"valid_steps", len(steps))
		return p.fallbackPlan(objective), nil
	}
	if len(steps) > p.cfg.MaxSteps {
		steps = steps[:p.cfg.MaxSteps]
	}

	title := reply.Title
	if title == "" {
		title = objective
	}
	return &models.Plan{Title: title, Steps: steps}, nil
}

// Adjust re-evaluates the remaining plan after a step completes. Any model
// or validation problem degrades to continue.
func (p *Planner) Adjust(
	ctx context.Context,
	goal *models.Goal,
	completed []models.Step,
	remaining []models.Step,
) *models.PlanAdjustment {
	keep := &models.PlanAdjustment{Action: models.PlanContinue}
	if len(remaining) == 0 {
		return keep
	}

	text, err := p.llm.Complete(ctx, llm.Request{
		System:   adjustSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: renderProgress(goal, completed, remaining)}},
		JSONOnly: true,
	})
	if err != nil {
		slog.Warn("Plan adjustment call failed, continuing plan", "goal_id", goal.ID, "error", err)
		return keep
	}

	var adj models.PlanAdjustment
	if jsonErr := json.Unmarshal([]byte(text), &adj); jsonErr != nil {
		slog.Warn("Plan adjustment unparseable, continuing plan", "goal_id", goal.ID, "error", jsonErr)
		return keep
	}

	switch adj.Action {
	case models.PlanContinue, models.PlanSkipNext:
		return &adj
	case models.PlanModifyStep, models.PlanAddStep:
		if adj.NewTitle == "" {
			slog.Warn("Plan adjustment missing new step title, continuing plan",
				"goal_id", goal.ID, "action", adj.Action)
			return keep
		}
		if adj.AgentName == "" || !p.agents.Has(adj.AgentName) {
			slog.Warn("Plan adjustment names unknown agent, continuing plan",
				"goal_id", goal.ID, "agent", adj.AgentName)
			return keep
		}
		return &adj
	default:
		slog.Warn("Unknown plan adjustment action, continuing plan",
			"goal_id", goal.ID, "action", adj.Action)
		return keep
	}
}

// keepKnownAgents drops steps assigned to agents outside the registry.
func (p *Planner) keepKnownAgents(steps []models.PlannedStep) []models.PlannedStep {
	out := make([]models.PlannedStep, 0, len(steps))
	for _, s := range steps {
		if s.Title == "" {
			continue
		}
		if !p.agents.Has(s.AgentName) {
			slog.Warn("Planner assigned unknown agent, dropping step",
				"agent", s.AgentName, "step", s.Title)
			continue
		}
		out = append(out, s)
	}
	return out
}

// clarifyPlan packages the planner's clarifying question as a single step
// surfaced to the user.
func (p *Planner) clarifyPlan(reply plannerReply) *models.Plan {
	question := "Could you tell me more about what you want to achieve?"
	if len(reply.Steps) > 0 && reply.Steps[0].Title != "" {
		question = reply.Steps[0].Title
	}
	title := reply.Title
	if title == "" {
		title = "Clarify objective"
	}
	return &models.Plan{
		Title:   title,
		Clarify: true,
		Steps: []models.PlannedStep{{
			Title:       question,
			Description: "The objective needs more detail before a plan can be built.",
			AgentName:   "coach",
		}},
	}
}

// fallbackPlan is the generic search → match → apply sequence used when the
// model cannot produce a usable plan.
func (p *Planner) fallbackPlan(objective string) *models.Plan {
	return &models.Plan{
		Title: objective,
		Steps: []models.PlannedStep{
			{
				Title:       "Survey the market for matching roles",
				Description: "Find current openings that fit the objective and research the most promising companies.",
				AgentName:   "scout",
			},
			{
				Title:       "Assess fit against the strongest openings",
				Description: "Parse the leading job descriptions and score the candidate's match.",
				AgentName:   "match",
			},
			{
				Title:       "Prepare application materials",
				Description: "Draft a tailored cover letter and resume adjustments for the best-fit role.",
				AgentName:   "forge",
			},
		},
	}
}

func (p *Planner) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You plan career goals as an ordered sequence of steps, each handled by one specialist agent.\n")
	sb.WriteString("Available agents:\n")
	for _, name := range p.agents.Names() {
		cfg, _ := p.agents.Get(name)
		fmt.Fprintf(&sb, "- %s: %s\n", name, cfg.Role)
	}
	fmt.Fprintf(&sb, `
Reply with exactly one JSON object:
{"title": "<short goal title>",
 "clarify": false,
 "steps": [{"title": "...", "description": "...", "agent_name": "<agent>"}]}

Produce between %d and %d steps. Only use the listed agent names.
If the objective is too vague to plan, set "clarify": true and put one
clarifying question for the user in the first step's title.`,
		p.cfg.MinSteps, p.cfg.MaxSteps)
	return sb.String()
}

const adjustSystemPrompt = `You supervise a career goal being executed step by step. Given completed
step outputs and the remaining plan, decide whether the plan still holds.

Reply with exactly one JSON object:
{"action": "continue|modify_step|add_step|skip_next",
 "reason": "one sentence",
 "new_title": "<required for modify_step and add_step>",
 "new_description": "...",
 "agent_name": "<required for modify_step and add_step>"}

Use continue unless a completed step's output invalidates the next step's
premise. modify_step rewrites the next step; add_step inserts a new step
before it; skip_next drops it.`

func renderProgress(goal *models.Goal, completed, remaining []models.Step) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n%s\n\nCompleted steps:\n", goal.Title, goal.Description)
	for _, s := range completed {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", s.Ordinal, s.AgentName, s.Title)
		if s.Output != "" {
			fmt.Fprintf(&sb, "   output: %s\n", s.Output)
		}
	}
	sb.WriteString("\nRemaining steps:\n")
	for _, s := range remaining {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", s.Ordinal, s.AgentName, s.Title)
	}
	return sb.String()
}
