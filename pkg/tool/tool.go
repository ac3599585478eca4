// Package tool provides the tool registry and invocation layer used by the
// agent runtime.
package tool

import (
	"context"

	"github.com/kaziai/kazi/pkg/models"
)

// Handler executes one tool call. Arguments arrive already validated against
// the tool's schema. Handlers must observe ctx at natural boundaries.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition declares one tool: its schema, side-effect class, and handler.
type Definition struct {
	// Name is the unique registry key.
	Name string

	// Description shown to the reasoning model.
	Description string

	// Schema is a JSON Schema document for the argument object.
	Schema string

	// ReadOnly declares the handler free of external effects. Only
	// read-only tools are retried after a timeout.
	ReadOnly bool

	Handler Handler
}

// Result is the uniform envelope returned by every invocation.
type Result struct {
	OK        bool             `json:"ok"`
	Data      any              `json:"data,omitempty"`
	ErrorKind models.ErrorKind `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	LatencyMs int64            `json:"latency_ms"`
}

// Failure builds a failed result with the given kind and message.
func Failure(kind models.ErrorKind, msg string) Result {
	return Result{OK: false, ErrorKind: kind, Error: msg}
}
