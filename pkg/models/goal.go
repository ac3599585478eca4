package models

import "time"

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalStatusSuggested GoalStatus = "suggested"
	GoalStatusActive    GoalStatus = "active"
	GoalStatusPaused    GoalStatus = "paused"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusAbandoned GoalStatus = "abandoned"
)

// StepStatus is the lifecycle state of one goal step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusSkipped    StepStatus = "skipped"
	StepStatusFailed     StepStatus = "failed"
)

// Goal is a long-horizon user objective decomposed into ordered steps.
type Goal struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      GoalStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Step is one ordinal unit of a goal's plan, assigned to a single agent.
type Step struct {
	ID          string     `json:"id"`
	GoalID      string     `json:"goal_id"`
	Ordinal     int        `json:"ordinal"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AgentName   string     `json:"agent_name"`
	Status      StepStatus `json:"status"`
	Output      string     `json:"output,omitempty"`
	TraceID     string     `json:"trace_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PlannedStep is a step produced by the planner before persistence.
type PlannedStep struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AgentName   string `json:"agent_name"`
}

// Plan is the planner's decomposition of an objective.
type Plan struct {
	Title string        `json:"title"`
	Steps []PlannedStep `json:"steps"`
	// Clarify is set when the objective was too vague to plan; the single
	// step surfaces the clarifying question to the user.
	Clarify bool `json:"clarify,omitempty"`
}

// PlanAdjustmentAction enumerates re-plan directives between steps.
type PlanAdjustmentAction string

const (
	PlanContinue   PlanAdjustmentAction = "continue"
	PlanModifyStep PlanAdjustmentAction = "modify_step"
	PlanAddStep    PlanAdjustmentAction = "add_step"
	PlanSkipNext   PlanAdjustmentAction = "skip_next"
)

// PlanAdjustment is the result of re-evaluating a plan after a step completes.
type PlanAdjustment struct {
	Action         PlanAdjustmentAction `json:"action"`
	Reason         string               `json:"reason"`
	NewTitle       string               `json:"new_title,omitempty"`
	NewDescription string               `json:"new_description,omitempty"`
	AgentName      string               `json:"agent_name,omitempty"`
}
