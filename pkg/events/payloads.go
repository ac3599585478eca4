package events

import "github.com/kaziai/kazi/pkg/models"

// ConversationIDPayload opens a turn stream: tells the client which
// conversation (possibly lazily created) the turn belongs to.
type ConversationIDPayload struct {
	ConversationID string `json:"conversation_id"`
	TurnID         string `json:"turn_id"`
}

// RoutingPayload announces the router's decision for a turn.
type RoutingPayload struct {
	Intent     string   `json:"intent"`
	Agents     []string `json:"agents"`
	Confidence float64  `json:"confidence"`
	Direct     bool     `json:"direct,omitempty"`
}

// AgentStatusPayload marks an agent execution starting or terminating.
// Message carries the failure rationale on terminal frames.
type AgentStatusPayload struct {
	Agent   string `json:"agent"`
	Status  string `json:"status"` // running, complete, failed, cancelled
	Message string `json:"message,omitempty"`
}

// AgentReasoningPayload streams one reason/act/observe round.
type AgentReasoningPayload struct {
	Agent        string `json:"agent"`
	Round        int    `json:"round"`
	Thought      string `json:"thought"`
	Tool         string `json:"tool,omitempty"`
	ResultDigest string `json:"result_digest,omitempty"`
}

// EvaluatorPayload carries the between-step decision.
type EvaluatorPayload struct {
	Action string `json:"action"` // continue, skip_next, loop_back, stop, add_agent
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// NegotiationPositionSummary is one agent's stance within a debate round.
type NegotiationPositionSummary struct {
	Agent      string  `json:"agent"`
	Stance     string  `json:"stance"` // maintain, refine, concede, challenge
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// NegotiationRoundPayload streams one completed debate round.
type NegotiationRoundPayload struct {
	Round     int                          `json:"round"`
	Positions []NegotiationPositionSummary `json:"positions"`
}

// NegotiationResultPayload closes a debate.
type NegotiationResultPayload struct {
	Consensus  bool     `json:"consensus"`
	Position   string   `json:"position,omitempty"`
	Confidence float64  `json:"confidence"`
	Dissent    []string `json:"dissent,omitempty"` // agents that did not converge
}

// ToolStatusPayload tracks one tool invocation.
type ToolStatusPayload struct {
	Agent     string           `json:"agent"`
	Tool      string           `json:"tool"`
	Status    string           `json:"status"` // started, completed, failed
	LatencyMs int64            `json:"latency_ms,omitempty"`
	ErrorKind models.ErrorKind `json:"error_kind,omitempty"`
}

// ContentPayload is one fragment of the assistant's streamed reply.
type ContentPayload struct {
	Delta string `json:"delta"`
}

// TraceIDsPayload lists the traces recorded during a turn, for feedback.
type TraceIDsPayload struct {
	IDs []string `json:"ids"`
}

// DonePayload terminates a successful turn or goal stream.
type DonePayload struct {
	TurnID string `json:"turn_id,omitempty"`
	GoalID string `json:"goal_id,omitempty"`
}

// GoalStepStartPayload marks a goal step beginning execution.
type GoalStepStartPayload struct {
	GoalID  string `json:"goal_id"`
	StepID  string `json:"step_id"`
	Ordinal int    `json:"ordinal"`
	Title   string `json:"title"`
	Agent   string `json:"agent"`
}

// GoalStepCompletePayload marks a goal step reaching a terminal status.
type GoalStepCompletePayload struct {
	GoalID  string            `json:"goal_id"`
	StepID  string            `json:"step_id"`
	Ordinal int               `json:"ordinal"`
	Status  models.StepStatus `json:"status"`
	Output  string            `json:"output,omitempty"`
}

// GoalReplanPayload streams a mid-run plan adjustment.
type GoalReplanPayload struct {
	GoalID     string                      `json:"goal_id"`
	Adjustment models.PlanAdjustmentAction `json:"adjustment"`
	Reason     string                      `json:"reason"`
}

// NotificationPayload pushes a freshly written notification.
type NotificationPayload struct {
	ID               string `json:"id"`
	NotificationType string `json:"notification_type"`
	Title            string `json:"title"`
	Body             string `json:"body,omitempty"`
}

// TaskUpdatePayload tracks a background task run.
type TaskUpdatePayload struct {
	TaskID   string            `json:"task_id"`
	TaskType string            `json:"task_type"`
	Status   models.TaskStatus `json:"status"`
	Summary  string            `json:"summary,omitempty"`
}

// PongPayload answers a client ping.
type PongPayload struct{}

// ErrorPayload terminates a stream abnormally.
type ErrorPayload struct {
	Kind    models.ErrorKind `json:"kind"`
	Message string           `json:"message,omitempty"`
	TurnID  string           `json:"turn_id,omitempty"`
	GoalID  string           `json:"goal_id,omitempty"`
}
