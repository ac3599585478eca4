// Package models contains request/response models and business domain types.
package models

// ErrorKind classifies failures crossing component boundaries.
// These are data, not Go errors: they travel in result envelopes and
// error events so callers can react without string matching.
type ErrorKind string

const (
	ErrKindInvalidInput          ErrorKind = "invalid_input"
	ErrKindUnauthorized          ErrorKind = "unauthorized"
	ErrKindNoSuchTool            ErrorKind = "no_such_tool"
	ErrKindInvalidArgs           ErrorKind = "invalid_args"
	ErrKindToolTimeout           ErrorKind = "tool_timeout"
	ErrKindToolFailed            ErrorKind = "tool_failed"
	ErrKindLLMUnavailable        ErrorKind = "llm_unavailable"
	ErrKindAgentParseFailed      ErrorKind = "agent_parse_failed"
	ErrKindCancelled             ErrorKind = "cancelled"
	ErrKindTurnBudgetExceeded    ErrorKind = "turn_budget_exceeded"
	ErrKindGoalPrecondition      ErrorKind = "goal_precondition_failed"
	ErrKindSubscriberBackpressure ErrorKind = "subscriber_backpressure"
	ErrKindInternal              ErrorKind = "internal"
)
