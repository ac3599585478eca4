package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kaziai/kazi/pkg/metrics"
	"github.com/kaziai/kazi/pkg/models"
)

// Registry holds the name→(schema, handler) map. Read-only after process
// start; registration happens during startup only.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registered
}

type registered struct {
	def      Definition
	compiled *jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registered)}
}

// Register adds a tool. Duplicate registration and invalid schemas are
// startup errors.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %q registered twice", def.Name)
	}

	schema := def.Schema
	if schema == "" {
		schema = `{"type":"object"}`
	}
	compiler := jsonschema.NewCompiler()
	resource := def.Name + ".schema.json"
	if err := compiler.AddResource(resource, strings.NewReader(schema)); err != nil {
		return fmt.Errorf("tool %q schema: %w", def.Name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("tool %q schema: %w", def.Name, err)
	}

	r.tools[def.Name] = &registered{def: def, compiled: compiled}
	return nil
}

// MustRegister registers a tool and panics on error. For built-in tools
// wired at startup.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Has reports whether the named tool exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a tool's definition.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.tools[name]
	if !ok {
		return Definition{}, false
	}
	return reg.def, true
}

// RenderList renders the named tools as a prompt fragment. Unknown names
// are skipped.
func (r *Registry) RenderList(names []string) string {
	var sb strings.Builder
	for _, name := range names {
		def, ok := r.Get(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n  arguments schema: %s\n",
			def.Name, def.Description, def.Schema)
	}
	return sb.String()
}

// Invoke validates arguments and dispatches one tool call. Validation
// failures never reach the handler. Handler panics are contained and
// returned as tool_failed.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) Result {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return Failure(models.ErrKindNoSuchTool, fmt.Sprintf("unknown tool %q", name))
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := reg.compiled.Validate(normalizeArgs(args)); err != nil {
		return Failure(models.ErrKindInvalidArgs, err.Error())
	}

	start := time.Now()
	data, err := r.dispatch(ctx, reg.def, args)
	elapsed := time.Since(start)

	if err != nil {
		kind := classifyError(err)
		metrics.RecordToolInvocation(name, string(kind), elapsed.Seconds())
		result := Failure(kind, err.Error())
		result.LatencyMs = elapsed.Milliseconds()
		return result
	}
	metrics.RecordToolInvocation(name, "completed", elapsed.Seconds())
	return Result{OK: true, Data: data, LatencyMs: elapsed.Milliseconds()}
}

// InvokeWithTimeout bounds one invocation and retries once with identical
// arguments after a timeout, provided the tool is read-only.
func (r *Registry) InvokeWithTimeout(ctx context.Context, name string, args map[string]any, timeout time.Duration) Result {
	result := r.invokeBounded(ctx, name, args, timeout)
	if result.ErrorKind != models.ErrKindToolTimeout {
		return result
	}
	if ctx.Err() != nil {
		return result
	}

	def, ok := r.Get(name)
	if !ok || !def.ReadOnly {
		return result
	}

	slog.Warn("Tool timed out, retrying once", "tool", name, "timeout", timeout)
	return r.invokeBounded(ctx, name, args, timeout)
}

func (r *Registry) invokeBounded(ctx context.Context, name string, args map[string]any, timeout time.Duration) Result {
	if timeout <= 0 {
		return r.Invoke(ctx, name, args)
	}
	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := r.Invoke(bounded, name, args)

	// A deadline hit on the bounded context is a tool timeout unless the
	// parent was cancelled.
	if !result.OK && bounded.Err() != nil && ctx.Err() == nil {
		result.ErrorKind = models.ErrKindToolTimeout
	}
	return result
}

func (r *Registry) dispatch(ctx context.Context, def Definition, args map[string]any) (data any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %q panicked: %v", def.Name, rec)
		}
	}()
	return def.Handler(ctx, args)
}

func classifyError(err error) models.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrKindToolTimeout
	case errors.Is(err, context.Canceled):
		return models.ErrKindCancelled
	default:
		return models.ErrKindToolFailed
	}
}

// normalizeArgs converts Go-typed argument values into plain JSON types so
// schema validation sees the same shapes a JSON decode would produce.
func normalizeArgs(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeArgs(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeArgs(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
