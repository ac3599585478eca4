package llm

import (
	"context"
	"sync"
)

// ScriptedClient replays a fixed sequence of responses. Used by tests across
// the orchestrator, planner, and agent packages.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []string
	index     int

	// Err, when set, is returned by every call instead of a response.
	Err error

	// Requests records every request received, in order.
	Requests []Request
}

// NewScriptedClient creates a fake that returns the given responses in order.
// Calls past the end repeat the last response.
func NewScriptedClient(responses ...string) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

func (s *ScriptedClient) next(req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.responses) == 0 {
		return "", nil
	}
	resp := s.responses[s.index]
	if s.index < len(s.responses)-1 {
		s.index++
	}
	return resp, nil
}

// Complete implements Client.
func (s *ScriptedClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.next(req)
}

// CompleteStream implements Client. The whole response is delivered as one
// delta.
func (s *ScriptedClient) CompleteStream(ctx context.Context, req Request, onDelta func(delta string) error) (string, error) {
	resp, err := s.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if onDelta != nil && resp != "" {
		if err := onDelta(resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// CallCount returns how many requests the fake has served.
func (s *ScriptedClient) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
