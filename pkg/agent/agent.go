// Package agent executes a single specialized agent as a bounded
// reason/act/observe loop over the tool registry.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/models"
	"github.com/kaziai/kazi/pkg/tool"
)

// Execution carries everything one agent run needs. Built by the
// orchestrator (or goal executor) per agent invocation.
type Execution struct {
	UserID    string
	TurnID    string
	StepID    string
	AgentName string

	Config *config.AgentConfig
	LLM    llm.Client
	Tools  *tool.Registry

	Publisher events.Publisher
	Traces    TraceSink

	// MaxToolRounds and ToolTimeout are the resolved bounds (agent
	// override already applied over the orchestrator defaults).
	MaxToolRounds int
	ToolTimeout   time.Duration

	History     []models.Message
	Brief       string
	Attachments []models.Attachment
	Shared      *Shared
}

// Shared is the pipeline context passed between agents of one turn or goal
// run: every completed report plus extracted entities from routing.
type Shared struct {
	mu        sync.RWMutex
	reports   []models.AgentReport
	extracted map[string]any
}

// NewShared creates a pipeline context seeded with router-extracted
// entities (may be nil).
func NewShared(extracted map[string]any) *Shared {
	if extracted == nil {
		extracted = map[string]any{}
	}
	return &Shared{extracted: extracted}
}

// AddReport appends a completed agent report.
func (s *Shared) AddReport(report models.AgentReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
}

// Reports returns a snapshot of all reports so far.
func (s *Shared) Reports() []models.AgentReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AgentReport, len(s.reports))
	copy(out, s.reports)
	return out
}

// RemoveReportsFor drops all reports by the named agent. Used when the
// evaluator loops back to re-run an agent with corrective guidance.
func (s *Shared) RemoveReportsFor(agentName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.reports[:0]
	for _, r := range s.reports {
		if r.AgentName != agentName {
			kept = append(kept, r)
		}
	}
	s.reports = kept
}

// Extracted returns the router-extracted entities.
func (s *Shared) Extracted() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.extracted))
	for k, v := range s.extracted {
		out[k] = v
	}
	return out
}

// FailureRatio returns the fraction of reports marked failed.
func (s *Shared) FailureRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.reports) == 0 {
		return 0
	}
	failed := 0
	for _, r := range s.reports {
		if r.Failed {
			failed++
		}
	}
	return float64(failed) / float64(len(s.reports))
}

// TraceSink persists the durable record of one agent execution. Entries
// are append-only.
type TraceSink interface {
	Create(ctx context.Context, req models.CreateTraceRequest) (string, error)
	AppendEntry(ctx context.Context, traceID string, entry models.TraceEntry) error
	Finish(ctx context.Context, traceID string, status models.TraceStatus, latencyMs int64) error
}

// NopTraceSink discards traces. Test helper.
type NopTraceSink struct{}

func (NopTraceSink) Create(context.Context, models.CreateTraceRequest) (string, error) {
	return "", nil
}
func (NopTraceSink) AppendEntry(context.Context, string, models.TraceEntry) error { return nil }
func (NopTraceSink) Finish(context.Context, string, models.TraceStatus, int64) error {
	return nil
}

// Digest returns a short stable hash of the given strings, used for trace
// inputs and tool-result digests.
func Digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
