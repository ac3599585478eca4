package agent

import (
	"encoding/json"
	"strings"
)

// parsedReply is the decoded form of one model message: either a tool call
// or a final answer.
type parsedReply struct {
	// Tool call
	Thought string         `json:"thought"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args"`

	// Final answer
	Output     string         `json:"output"`
	Confidence *float64       `json:"confidence"`
	Rationale  string         `json:"rationale"`
	Fields     map[string]any `json:"fields"`
}

func (p *parsedReply) isToolCall() bool    { return p.Tool != "" }
func (p *parsedReply) isFinalAnswer() bool { return p.Output != "" }

// parseReply extracts and decodes the first JSON object in the model's
// text. Models often wrap JSON in code fences or prose; both are handled.
func parseReply(text string) (*parsedReply, bool) {
	raw, ok := extractJSONObject(text)
	if !ok {
		return nil, false
	}

	var reply parsedReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, false
	}
	if !reply.isToolCall() && !reply.isFinalAnswer() {
		return nil, false
	}
	return &reply, true
}

// extractJSONObject returns the first balanced {...} block, skipping
// braces inside string literals.
func extractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// clampConfidence bounds a reported confidence to [0,1]; a missing value
// defaults to 0.5.
func clampConfidence(c *float64) float64 {
	if c == nil {
		return 0.5
	}
	switch {
	case *c < 0:
		return 0
	case *c > 1:
		return 1
	default:
		return *c
	}
}
