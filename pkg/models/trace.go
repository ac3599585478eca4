package models

import "time"

// TraceStatus is the terminal status of one agent execution.
type TraceStatus string

const (
	TraceStatusCompleted TraceStatus = "completed"
	TraceStatusFailed    TraceStatus = "failed"
	TraceStatusCancelled TraceStatus = "cancelled"
	TraceStatusTimedOut  TraceStatus = "timed_out"
)

// FeedbackRating is a user rating attached to a trace after the fact.
type FeedbackRating string

const (
	FeedbackPositive FeedbackRating = "positive"
	FeedbackNegative FeedbackRating = "negative"
)

// Trace is the durable, append-only record of one agent execution.
// Entries are never mutated once written; feedback may be set once
// after termination.
type Trace struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	TurnID       string         `json:"turn_id,omitempty"`
	StepID       string         `json:"step_id,omitempty"`
	AgentName    string         `json:"agent_name"`
	InputsDigest string         `json:"inputs_digest"`
	Entries      []TraceEntry   `json:"entries"`
	Status       TraceStatus    `json:"status"`
	LatencyMs    int64          `json:"latency_ms"`
	Feedback     FeedbackRating `json:"feedback,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TraceEntry is one (thought, tool, result) row of an agent's reasoning.
type TraceEntry struct {
	Seq          int    `json:"seq"`
	Thought      string `json:"thought"`
	ToolName     string `json:"tool_name,omitempty"`
	ResultDigest string `json:"result_digest,omitempty"`
}

// CreateTraceRequest contains fields for opening a trace record.
type CreateTraceRequest struct {
	UserID       string `json:"user_id"`
	TurnID       string `json:"turn_id,omitempty"`
	StepID       string `json:"step_id,omitempty"`
	AgentName    string `json:"agent_name"`
	InputsDigest string `json:"inputs_digest"`
}
