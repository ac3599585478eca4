package tool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaziai/kazi/pkg/models"
)

func echoTool(name string) Definition {
	return Definition{
		Name:        name,
		Description: "echoes its arguments",
		ReadOnly:    true,
		Schema: `{
			"type": "object",
			"properties": {"value": {"type": "string"}},
			"required": ["value"],
			"additionalProperties": false
		}`,
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args["value"], nil
		},
	}
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	err := r.Register(echoTool("echo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registered twice")
}

func TestRegistry_Register_InvalidSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Definition{
		Name:    "broken",
		Schema:  `{"type": ???}`,
		Handler: func(context.Context, map[string]any) (any, error) { return nil, nil },
	})
	require.Error(t, err)
}

func TestRegistry_Invoke_UnknownTool(t *testing.T) {
	r := NewRegistry()

	result := r.Invoke(context.Background(), "nope", nil)
	assert.False(t, result.OK)
	assert.Equal(t, models.ErrKindNoSuchTool, result.ErrorKind)
}

func TestRegistry_Invoke_InvalidArgs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	// Missing required "value"
	result := r.Invoke(context.Background(), "echo", map[string]any{})
	assert.False(t, result.OK)
	assert.Equal(t, models.ErrKindInvalidArgs, result.ErrorKind)

	// Wrong type
	result = r.Invoke(context.Background(), "echo", map[string]any{"value": 42})
	assert.False(t, result.OK)
	assert.Equal(t, models.ErrKindInvalidArgs, result.ErrorKind)
}

func TestRegistry_Invoke_Success(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	result := r.Invoke(context.Background(), "echo", map[string]any{"value": "hi"})
	require.True(t, result.OK)
	assert.Equal(t, "hi", result.Data)
	assert.Empty(t, result.ErrorKind)
}

func TestRegistry_Invoke_HandlerError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "fails",
		Handler: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("backend exploded")
		},
	}))

	result := r.Invoke(context.Background(), "fails", nil)
	assert.False(t, result.OK)
	assert.Equal(t, models.ErrKindToolFailed, result.ErrorKind)
	assert.Contains(t, result.Error, "backend exploded")
}

func TestRegistry_Invoke_HandlerPanic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "panics",
		Handler: func(context.Context, map[string]any) (any, error) {
			panic("boom")
		},
	}))

	result := r.Invoke(context.Background(), "panics", nil)
	assert.False(t, result.OK)
	assert.Equal(t, models.ErrKindToolFailed, result.ErrorKind)
	assert.Contains(t, result.Error, "panicked")
}

func TestRegistry_Invoke_Cancelled(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "slow",
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := r.Invoke(ctx, "slow", nil)
	assert.False(t, result.OK)
	assert.Equal(t, models.ErrKindCancelled, result.ErrorKind)
}

func TestRegistry_InvokeWithTimeout_RetriesReadOnlyOnce(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name:     "flaky",
		ReadOnly: true,
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return "recovered", nil
		},
	}))

	result := r.InvokeWithTimeout(context.Background(), "flaky", nil, 20*time.Millisecond)
	require.True(t, result.OK)
	assert.Equal(t, "recovered", result.Data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRegistry_InvokeWithTimeout_NoRetryForEffectfulTool(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name:     "mutator",
		ReadOnly: false,
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			calls.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	result := r.InvokeWithTimeout(context.Background(), "mutator", nil, 20*time.Millisecond)
	assert.False(t, result.OK)
	assert.Equal(t, models.ErrKindToolTimeout, result.ErrorKind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_RenderList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	rendered := r.RenderList([]string{"echo", "missing"})
	assert.Contains(t, rendered, "echo: echoes its arguments")
	assert.NotContains(t, rendered, "missing")
}
