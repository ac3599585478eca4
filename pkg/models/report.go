package models

// AgentReport is the structured output of one agent execution.
// Consumed by the evaluator, the negotiator, and downstream agents.
type AgentReport struct {
	AgentName  string         `json:"agent_name"`
	Output     string         `json:"output"`
	Confidence float64        `json:"confidence"` // [0,1]
	Rationale  string         `json:"rationale"`
	Fields     map[string]any `json:"fields,omitempty"` // role-specific tracked fields
	TraceID    string         `json:"trace_id,omitempty"`
	Failed     bool           `json:"failed,omitempty"`
	ErrorKind  ErrorKind      `json:"error_kind,omitempty"`
}

// RoutingDecision is the router's classification of a user message.
type RoutingDecision struct {
	Intent     string         `json:"intent"`
	Agents     []string       `json:"agents"`
	Confidence float64        `json:"confidence"`
	Direct     bool           `json:"direct_response"`
	Extracted  map[string]any `json:"extracted_context,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// EvalAction enumerates the evaluator's control-flow directives.
type EvalAction string

const (
	EvalContinue EvalAction = "continue"
	EvalSkipNext EvalAction = "skip_next"
	EvalLoopBack EvalAction = "loop_back"
	EvalStop     EvalAction = "stop"
	EvalAddAgent EvalAction = "add_agent"
)

// EvalDecision is emitted after each agent step to steer the pipeline.
type EvalDecision struct {
	Action      EvalAction `json:"action"`
	Reason      string     `json:"reason,omitempty"`
	TargetAgent string     `json:"target_agent,omitempty"` // loop_back / add_agent
}

// NegotiationStance enumerates per-round debate responses.
type NegotiationStance string

const (
	StanceMaintain  NegotiationStance = "maintain"
	StanceRefine    NegotiationStance = "refine"
	StanceConcede   NegotiationStance = "concede"
	StanceChallenge NegotiationStance = "challenge"
)

// NegotiationPosition is one agent's stance within a negotiation round.
type NegotiationPosition struct {
	AgentName  string            `json:"agent"`
	Stance     NegotiationStance `json:"stance"`
	Position   string            `json:"position"`
	Evidence   string            `json:"evidence,omitempty"`
	Confidence float64           `json:"confidence"`
	Fields     map[string]any    `json:"fields,omitempty"`
}

// ConsensusResult is the outcome of a negotiation session.
type ConsensusResult struct {
	Reached     bool     `json:"consensus_reached"`
	Position    string   `json:"position"`
	Confidence  float64  `json:"confidence"`
	Dissenting  []string `json:"dissenting_views,omitempty"`
	RoundsTaken int      `json:"rounds_taken"`
}
