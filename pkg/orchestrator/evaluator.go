package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/kaziai/kazi/pkg/agent"
	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/models"
)

// maxLoopBacksPerTarget bounds loop_back decisions on any single agent
// within one turn, preventing evaluation cycles.
const maxLoopBacksPerTarget = 2

// Evaluator decides, after each agent step, how the pipeline proceeds.
type Evaluator struct {
	agents *config.AgentRegistry
	llm    llm.Client
}

// NewEvaluator creates an evaluator using the given model.
func NewEvaluator(agents *config.AgentRegistry, client llm.Client) *Evaluator {
	return &Evaluator{agents: agents, llm: client}
}

// evalState tracks per-turn safety bounds across evaluator invocations.
type evalState struct {
	loopBacks map[string]int // target agent → count this turn
}

func newEvalState() *evalState {
	return &evalState{loopBacks: make(map[string]int)}
}

// Evaluate returns the control-flow decision after one agent step. Any
// invalid or unavailable decision degrades to continue.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	state *evalState,
	report *models.AgentReport,
	remaining []string,
	completed []string,
	shared *agent.Shared,
) models.EvalDecision {
	text, err := e.llm.Complete(ctx, llm.Request{
		System:   evaluatorSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: e.renderSituation(report, remaining, shared)}},
		JSONOnly: true,
	})
	if err != nil {
		slog.Warn("Evaluator model call failed, continuing pipeline", "error", err)
		return models.EvalDecision{Action: models.EvalContinue, Reason: "evaluator unavailable"}
	}

	var decision models.EvalDecision
	if jsonErr := json.Unmarshal([]byte(text), &decision); jsonErr != nil {
		slog.Warn("Evaluator reply unparseable, continuing pipeline", "error", jsonErr)
		return models.EvalDecision{Action: models.EvalContinue, Reason: "unparseable evaluator reply"}
	}

	return e.validate(state, decision, remaining, completed)
}

// validate enforces the safety bounds; anything invalid degrades to
// continue and is logged.
func (e *Evaluator) validate(state *evalState, decision models.EvalDecision, remaining, completed []string) models.EvalDecision {
	degrade := func(why string) models.EvalDecision {
		slog.Warn("Invalid evaluator decision degraded to continue",
			"action", decision.Action, "target", decision.TargetAgent, "why", why)
		return models.EvalDecision{Action: models.EvalContinue, Reason: why}
	}

	switch decision.Action {
	case models.EvalContinue:
		return decision

	case models.EvalStop:
		return decision

	case models.EvalSkipNext:
		if len(remaining) == 0 {
			return degrade("skip_next with no remaining agents")
		}
		return decision

	case models.EvalLoopBack:
		if decision.TargetAgent == "" {
			return degrade("loop_back without target_agent")
		}
		if !slices.Contains(completed, decision.TargetAgent) {
			return degrade("loop_back target has not run yet")
		}
		if state.loopBacks[decision.TargetAgent] >= maxLoopBacksPerTarget {
			return degrade("loop_back limit reached for target")
		}
		state.loopBacks[decision.TargetAgent]++
		return decision

	case models.EvalAddAgent:
		if decision.TargetAgent == "" {
			return degrade("add_agent without target_agent")
		}
		if !e.agents.Has(decision.TargetAgent) {
			return degrade("add_agent target is not a known agent")
		}
		if slices.Contains(remaining, decision.TargetAgent) {
			return degrade("add_agent target already pending")
		}
		return decision

	default:
		return degrade("unknown action")
	}
}

const evaluatorSystemPrompt = `You supervise a pipeline of career-assistance agents. After each agent
finishes you decide how the pipeline proceeds.

Reply with exactly one JSON object:
{"action": "continue|skip_next|loop_back|stop|add_agent",
 "target_agent": "<required for loop_back and add_agent>",
 "reason": "one sentence"}

Use continue unless there is a concrete problem. Use loop_back only when an
earlier agent's output is contradicted by newer findings. Use stop when
further agents cannot improve the answer.`

func (e *Evaluator) renderSituation(report *models.AgentReport, remaining []string, shared *agent.Shared) string {
	var sb strings.Builder
	if report.Failed {
		fmt.Fprintf(&sb, "Agent %s FAILED (%s): %s\n", report.AgentName, report.ErrorKind, report.Rationale)
	} else {
		fmt.Fprintf(&sb, "Agent %s finished (confidence %.2f): %s\n",
			report.AgentName, report.Confidence, report.Output)
		if len(report.Fields) > 0 {
			if data, err := json.Marshal(report.Fields); err == nil {
				fmt.Fprintf(&sb, "Structured fields: %s\n", data)
			}
		}
	}

	fmt.Fprintf(&sb, "Remaining planned agents: [%s]\n", strings.Join(remaining, ", "))

	var prior []string
	for _, r := range shared.Reports() {
		if r.AgentName != report.AgentName {
			prior = append(prior, r.AgentName)
		}
	}
	fmt.Fprintf(&sb, "Earlier completed agents: [%s]\n", strings.Join(prior, ", "))
	return sb.String()
}
