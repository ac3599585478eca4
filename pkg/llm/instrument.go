package llm

import (
	"context"

	"github.com/kaziai/kazi/pkg/metrics"
)

// instrumented wraps a Client and records per-provider request counters.
type instrumented struct {
	name  string
	inner Client
}

// Instrument wraps a client so its requests are counted under the given
// provider name.
func Instrument(name string, inner Client) Client {
	return &instrumented{name: name, inner: inner}
}

func (c *instrumented) Complete(ctx context.Context, req Request) (string, error) {
	out, err := c.inner.Complete(ctx, req)
	metrics.RecordLLMRequest(c.name, requestStatus(err))
	return out, err
}

func (c *instrumented) CompleteStream(ctx context.Context, req Request, onDelta func(delta string) error) (string, error) {
	out, err := c.inner.CompleteStream(ctx, req, onDelta)
	metrics.RecordLLMRequest(c.name, requestStatus(err))
	return out, err
}

func requestStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
