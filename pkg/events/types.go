// Package events provides the per-user push fabric: typed event payloads,
// bounded per-subscription queues, and fan-out to live transports.
//
// Every event crossing the fabric is wrapped in an Envelope:
//
//	{"type": "<kind>", "seq": <n>, ...kind-specific fields}
//
// Consumers identify events solely by type; unknown types must be ignored
// so new kinds can ship without breaking old clients. The sequence number
// is per-subscription, starts at 1, and increases by exactly 1 per
// delivered event.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds emitted by the core.
const (
	KindConversationID    = "conversation_id"
	KindRouting           = "routing"
	KindAgentStatus       = "agent_status"
	KindAgentReasoning    = "agent_reasoning"
	KindEvaluator         = "evaluator"
	KindNegotiationRound  = "negotiation_round"
	KindNegotiationResult = "negotiation_result"
	KindToolStatus        = "tool_status"
	KindContent           = "content"
	KindTraceIDs          = "trace_ids"
	KindDone              = "done"
	KindGoalStepStart     = "goal_step_start"
	KindGoalStepComplete  = "goal_step_complete"
	KindGoalReplan        = "goal_replan"
	KindNotification      = "notification"
	KindTaskUpdate        = "task_update"
	KindPong              = "pong"
	KindError             = "error"
)

// Agent status values (used in AgentStatusPayload.Status).
const (
	AgentStatusRunning   = "running"
	AgentStatusComplete  = "complete"
	AgentStatusFailed    = "failed"
	AgentStatusCancelled = "cancelled"
)

// Tool status values (used in ToolStatusPayload.Status).
const (
	ToolStatusStarted   = "started"
	ToolStatusCompleted = "completed"
	ToolStatusFailed    = "failed"
)

// Envelope is one event as delivered to a subscription. It marshals flat:
// the payload's fields sit next to type and seq rather than nested.
type Envelope struct {
	Type      string
	Seq       int64
	Payload   any
	Timestamp time.Time
}

// MarshalJSON flattens the payload into the envelope object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	flat := map[string]any{
		"type": e.Type,
		"seq":  e.Seq,
		"ts":   e.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%s payload is not an object: %w", e.Type, err)
		}
		for k, v := range fields {
			// type, seq, and ts belong to the envelope.
			if k == "type" || k == "seq" || k == "ts" {
				continue
			}
			flat[k] = v
		}
	}

	return json.Marshal(flat)
}

// ClientMessage is the JSON structure for client → server WebSocket frames.
type ClientMessage struct {
	Type  string `json:"type"`            // "auth", "ping"
	Token string `json:"token,omitempty"` // auth proof for "auth"
}
