package goal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/models"
	"github.com/kaziai/kazi/pkg/orchestrator"
)

// ErrPrecondition marks requests rejected before any execution: unknown
// goal, wrong owner, wrong status, or a goal already held by another
// executor.
var ErrPrecondition = errors.New("goal precondition failed")

// Store is the persistence contract for goals and steps.
type Store interface {
	CreateGoal(ctx context.Context, userID, title, description string, steps []models.PlannedStep) (*models.Goal, []models.Step, error)
	GetGoal(ctx context.Context, goalID string) (*models.Goal, []models.Step, error)
	UpdateGoalStatus(ctx context.Context, goalID string, status models.GoalStatus) error

	// Claim takes the goal's exclusive execution hold; false means another
	// holder has it. Release is a no-op for a holder that lost the claim.
	Claim(ctx context.Context, goalID, holder string) (bool, error)
	Release(ctx context.Context, goalID, holder string) error

	MarkStep(ctx context.Context, stepID string, status models.StepStatus, output, traceID string) error
	UpdateStepPlan(ctx context.Context, stepID, title, description, agentName string) error

	// InsertStep places a new step at the given ordinal, shifting later
	// steps up by one.
	InsertStep(ctx context.Context, goalID string, ordinal int, step models.PlannedStep) (*models.Step, error)
}

// StepRunner is the slice of the orchestrator the executor needs.
type StepRunner interface {
	RunStep(ctx context.Context, req orchestrator.StepRequest) *models.AgentReport
}

// Executor drives goal steps through the turn runtime, one at a time or
// autonomously. At most one executor holds a goal at any instant.
type Executor struct {
	cfg       *config.GoalConfig
	store     Store
	planner   *Planner
	runner    StepRunner
	publisher events.Publisher

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // goalID → autonomous-run cancel
}

// NewExecutor wires a goal executor.
func NewExecutor(cfg *config.GoalConfig, store Store, planner *Planner, runner StepRunner, publisher events.Publisher) *Executor {
	return &Executor{
		cfg:       cfg,
		store:     store,
		planner:   planner,
		runner:    runner,
		publisher: publisher,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// CreateGoal plans the objective and persists the goal with its steps.
func (e *Executor) CreateGoal(ctx context.Context, userID, objective string) (*models.Goal, []models.Step, error) {
	plan, err := e.planner.Plan(ctx, objective)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPrecondition, err)
	}

	goal, steps, err := e.store.CreateGoal(ctx, userID, plan.Title, objective, plan.Steps)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to persist goal: %w", err)
	}
	slog.Info("Goal created", "goal_id", goal.ID, "user_id", userID,
		"steps", len(steps), "clarify", plan.Clarify)
	return goal, steps, nil
}

// ExecuteStep runs the lowest-ordinal pending step of the goal.
func (e *Executor) ExecuteStep(ctx context.Context, userID, goalID string) (*models.Step, error) {
	goal, steps, err := e.loadRunnable(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}

	holder := "step/" + goalID
	held, err := e.store.Claim(ctx, goalID, holder)
	if err != nil {
		return nil, fmt.Errorf("failed to claim goal: %w", err)
	}
	if !held {
		return nil, fmt.Errorf("%w: goal is already being executed", ErrPrecondition)
	}
	defer func() {
		if err := e.store.Release(ctx, goalID, holder); err != nil {
			slog.Error("Failed to release goal claim", "goal_id", goalID, "error", err)
		}
	}()

	step := nextPending(steps)
	if step == nil {
		return nil, fmt.Errorf("%w: no pending steps", ErrPrecondition)
	}

	result := e.runStep(ctx, goal, steps, step, e.cfg.StepRetryBudget)

	if done, _ := e.refreshGoalStatus(ctx, goalID); done {
		e.publisher.Publish(goal.UserID, events.KindDone, events.DonePayload{GoalID: goalID})
	}
	return result, nil
}

// AutoExecute runs the goal's remaining steps in order until a terminal
// condition: completion, cancellation, or a step failing past its retry
// budget (which pauses the goal). Blocks until the run ends; callers run it
// on their own goroutine.
func (e *Executor) AutoExecute(ctx context.Context, userID, goalID string) error {
	goal, _, err := e.loadRunnable(ctx, userID, goalID)
	if err != nil {
		return err
	}

	holder := "auto/" + goalID
	held, err := e.store.Claim(ctx, goalID, holder)
	if err != nil {
		return fmt.Errorf("failed to claim goal: %w", err)
	}
	if !held {
		return fmt.Errorf("%w: goal is already being executed", ErrPrecondition)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.registerCancel(goalID, cancel)

	defer func() {
		e.unregisterCancel(goalID)
		cancel()
		if err := e.store.Release(context.WithoutCancel(ctx), goalID, holder); err != nil {
			slog.Error("Failed to release goal claim", "goal_id", goalID, "error", err)
		}
	}()

	for {
		if runCtx.Err() != nil {
			slog.Info("Autonomous goal run cancelled", "goal_id", goalID)
			e.pauseOnCancel(ctx, goal.UserID, goalID)
			return nil
		}

		// Reload each iteration: replans and step transitions change the list.
		_, steps, err := e.store.GetGoal(runCtx, goalID)
		if err != nil {
			return fmt.Errorf("failed to reload goal: %w", err)
		}

		step := nextPending(steps)
		if step == nil {
			if done, err := e.refreshGoalStatus(ctx, goalID); err == nil && done {
				e.publisher.Publish(goal.UserID, events.KindDone, events.DonePayload{GoalID: goalID})
			}
			return nil
		}

		result := e.runStep(runCtx, goal, steps, step, e.cfg.StepRetryBudget)
		if result.Status == models.StepStatusFailed {
			if runCtx.Err() != nil {
				e.pauseOnCancel(ctx, goal.UserID, goalID)
				return nil
			}
			if err := e.store.UpdateGoalStatus(ctx, goalID, models.GoalStatusPaused); err != nil {
				slog.Error("Failed to pause goal", "goal_id", goalID, "error", err)
			}
			e.publishError(goal.UserID, goalID, models.ErrKindInternal,
				fmt.Sprintf("step %d failed; goal paused", result.Ordinal))
			return nil
		}

		e.maybeReplan(runCtx, goal, goalID)
	}
}

// pauseOnCancel parks a cancelled autonomous run: the goal moves to paused
// so a later execute_step or auto_execute can resume it. The status write
// must outlive the cancelled run context.
func (e *Executor) pauseOnCancel(ctx context.Context, userID, goalID string) {
	if err := e.store.UpdateGoalStatus(context.WithoutCancel(ctx), goalID, models.GoalStatusPaused); err != nil {
		slog.Error("Failed to pause cancelled goal", "goal_id", goalID, "error", err)
	}
	e.publishError(userID, goalID, models.ErrKindCancelled, "goal run cancelled")
}

// CancelGoal raises the goal-scoped cancel token. Idempotent.
func (e *Executor) CancelGoal(goalID string) {
	e.mu.Lock()
	cancel, ok := e.cancels[goalID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// runStep executes one step with retries and publishes its lifecycle
// events. Returns the step with its terminal status and output set.
func (e *Executor) runStep(ctx context.Context, goal *models.Goal, all []models.Step, step *models.Step, retries int) *models.Step {
	e.publisher.Publish(goal.UserID, events.KindGoalStepStart, events.GoalStepStartPayload{
		GoalID: goal.ID, StepID: step.ID, Ordinal: step.Ordinal,
		Title: step.Title, Agent: step.AgentName,
	})

	if err := e.store.MarkStep(ctx, step.ID, models.StepStatusInProgress, "", ""); err != nil {
		slog.Error("Failed to mark step in progress", "step_id", step.ID, "error", err)
	}

	var report *models.AgentReport
	for attempt := 0; ; attempt++ {
		report = e.runner.RunStep(ctx, orchestrator.StepRequest{
			UserID:    goal.UserID,
			StepID:    step.ID,
			AgentName: step.AgentName,
			Brief:     stepBrief(goal, all, step),
		})
		if !report.Failed || report.ErrorKind == models.ErrKindCancelled || attempt >= retries {
			break
		}
		slog.Warn("Step attempt failed, retrying",
			"step_id", step.ID, "attempt", attempt+1, "error_kind", report.ErrorKind)
	}

	status := models.StepStatusCompleted
	output := report.Output
	if report.Failed {
		status = models.StepStatusFailed
		output = report.Rationale
	}

	if err := e.store.MarkStep(ctx, step.ID, status, output, report.TraceID); err != nil {
		slog.Error("Failed to mark step terminal", "step_id", step.ID, "error", err)
	}

	e.publisher.Publish(goal.UserID, events.KindGoalStepComplete, events.GoalStepCompletePayload{
		GoalID: goal.ID, StepID: step.ID, Ordinal: step.Ordinal,
		Status: status, Output: output,
	})

	step.Status = status
	step.Output = output
	step.TraceID = report.TraceID
	return step
}

// maybeReplan consults the planner after a completed step and applies the
// adjustment to the remaining plan.
func (e *Executor) maybeReplan(ctx context.Context, goal *models.Goal, goalID string) {
	_, steps, err := e.store.GetGoal(ctx, goalID)
	if err != nil {
		slog.Error("Failed to reload goal for replan check", "goal_id", goalID, "error", err)
		return
	}

	var completed, remaining []models.Step
	for _, s := range steps {
		switch s.Status {
		case models.StepStatusCompleted:
			completed = append(completed, s)
		case models.StepStatusPending:
			remaining = append(remaining, s)
		}
	}
	if len(remaining) == 0 {
		return
	}

	adj := e.planner.Adjust(ctx, goal, completed, remaining)
	if adj.Action == models.PlanContinue {
		return
	}

	next := remaining[0]
	switch adj.Action {
	case models.PlanSkipNext:
		if err := e.store.MarkStep(ctx, next.ID, models.StepStatusSkipped, "", ""); err != nil {
			slog.Error("Failed to skip step", "step_id", next.ID, "error", err)
			return
		}
	case models.PlanModifyStep:
		if err := e.store.UpdateStepPlan(ctx, next.ID, adj.NewTitle, adj.NewDescription, adj.AgentName); err != nil {
			slog.Error("Failed to modify step", "step_id", next.ID, "error", err)
			return
		}
	case models.PlanAddStep:
		if len(steps) >= e.cfg.MaxTotalSteps {
			slog.Warn("Replan would exceed step cap, ignoring add_step",
				"goal_id", goalID, "steps", len(steps))
			return
		}
		if _, err := e.store.InsertStep(ctx, goalID, next.Ordinal, models.PlannedStep{
			Title: adj.NewTitle, Description: adj.NewDescription, AgentName: adj.AgentName,
		}); err != nil {
			slog.Error("Failed to insert step", "goal_id", goalID, "error", err)
			return
		}
	}

	slog.Info("Plan adjusted mid-run", "goal_id", goalID, "action", adj.Action, "reason", adj.Reason)
	e.publisher.Publish(goal.UserID, events.KindGoalReplan, events.GoalReplanPayload{
		GoalID: goalID, Adjustment: adj.Action, Reason: adj.Reason,
	})
}

// loadRunnable fetches the goal and checks ownership and status.
func (e *Executor) loadRunnable(ctx context.Context, userID, goalID string) (*models.Goal, []models.Step, error) {
	goal, steps, err := e.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: goal not found", ErrPrecondition)
	}
	if goal.UserID != userID {
		return nil, nil, fmt.Errorf("%w: goal belongs to another user", ErrPrecondition)
	}
	switch goal.Status {
	case models.GoalStatusActive, models.GoalStatusSuggested:
		return goal, steps, nil
	default:
		return nil, nil, fmt.Errorf("%w: goal is %s", ErrPrecondition, goal.Status)
	}
}

// refreshGoalStatus marks the goal completed once every step is terminal
// and at least one completed. Returns whether the goal just completed.
func (e *Executor) refreshGoalStatus(ctx context.Context, goalID string) (bool, error) {
	_, steps, err := e.store.GetGoal(ctx, goalID)
	if err != nil {
		return false, err
	}

	anyCompleted := false
	for _, s := range steps {
		switch s.Status {
		case models.StepStatusPending, models.StepStatusInProgress:
			return false, nil
		case models.StepStatusCompleted:
			anyCompleted = true
		}
	}
	if !anyCompleted {
		return false, nil
	}

	if err := e.store.UpdateGoalStatus(ctx, goalID, models.GoalStatusCompleted); err != nil {
		return false, err
	}
	slog.Info("Goal completed", "goal_id", goalID)
	return true, nil
}

func (e *Executor) registerCancel(goalID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels[goalID] = cancel
}

func (e *Executor) unregisterCancel(goalID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancels, goalID)
}

func (e *Executor) publishError(userID, goalID string, kind models.ErrorKind, msg string) {
	e.publisher.Publish(userID, events.KindError, events.ErrorPayload{
		Kind: kind, Message: msg, GoalID: goalID,
	})
}

// nextPending returns the lowest-ordinal pending step, or nil.
func nextPending(steps []models.Step) *models.Step {
	for i := range steps {
		if steps[i].Status == models.StepStatusPending {
			return &steps[i]
		}
	}
	return nil
}

// stepBrief composes the agent's working brief: the step itself plus every
// prior step's captured output.
func stepBrief(goal *models.Goal, all []models.Step, step *models.Step) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\nCurrent step: %s\n", goal.Title, step.Title)
	if step.Description != "" {
		fmt.Fprintf(&sb, "%s\n", step.Description)
	}

	var prior []models.Step
	for _, s := range all {
		if s.Ordinal < step.Ordinal && s.Status == models.StepStatusCompleted && s.Output != "" {
			prior = append(prior, s)
		}
	}
	if len(prior) > 0 {
		sb.WriteString("\nResults from earlier steps:\n")
		for _, s := range prior {
			fmt.Fprintf(&sb, "Step %d (%s): %s\n", s.Ordinal, s.Title, s.Output)
		}
	}
	return sb.String()
}
