// Package llm provides clients for OpenAI-compatible chat completion APIs.
package llm

import (
	"context"
	"errors"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion request. JSONOnly asks the provider for a
// JSON-object response where the API supports it.
type Request struct {
	System      string
	Messages    []Message
	Temperature *float32
	MaxTokens   int
	JSONOnly    bool
}

// Client is a chat completion backend. Implementations must be safe for
// concurrent use.
type Client interface {
	// Complete returns the full assistant response.
	Complete(ctx context.Context, req Request) (string, error)

	// CompleteStream invokes onDelta for each content fragment as it
	// arrives and returns the accumulated response. A non-nil error from
	// onDelta aborts the stream.
	CompleteStream(ctx context.Context, req Request, onDelta func(delta string) error) (string, error)
}

// ErrUnavailable indicates the provider could not serve the request after
// retries (network failure, rate limiting, server errors).
var ErrUnavailable = errors.New("llm provider unavailable")
