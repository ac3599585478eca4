package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kaziai/kazi/pkg/database"
	"github.com/kaziai/kazi/pkg/models"
)

// TraceService manages the append-only execution traces. Entries are never
// mutated once written; feedback is recorded at most once per trace.
type TraceService struct {
	db *sql.DB
}

// NewTraceService creates a new TraceService.
func NewTraceService(client *database.Client) *TraceService {
	return &TraceService{db: client.DB()}
}

// Create opens a trace record and returns its id.
func (s *TraceService) Create(ctx context.Context, req models.CreateTraceRequest) (string, error) {
	if req.UserID == "" {
		return "", NewValidationError("user_id", "required")
	}
	if req.AgentName == "" {
		return "", NewValidationError("agent_name", "required")
	}

	traceID := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (id, user_id, turn_id, step_id, agent_name, inputs_digest)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		traceID, req.UserID, req.TurnID, req.StepID, req.AgentName, req.InputsDigest,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create trace: %w", err)
	}
	return traceID, nil
}

// AppendEntry appends one reasoning row to the trace's entry list.
func (s *TraceService) AppendEntry(ctx context.Context, traceID string, entry models.TraceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE traces SET entries = entries || $2::jsonb WHERE id = $1`,
		traceID, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to append trace entry: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: trace %s", ErrNotFound, traceID)
	}
	return nil
}

// Finish records the trace's terminal status and latency.
func (s *TraceService) Finish(ctx context.Context, traceID string, status models.TraceStatus, latencyMs int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE traces SET status = $2, latency_ms = $3 WHERE id = $1`,
		traceID, string(status), latencyMs,
	)
	if err != nil {
		return fmt.Errorf("failed to finish trace: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: trace %s", ErrNotFound, traceID)
	}
	return nil
}

// Get retrieves a trace owned by the user.
func (s *TraceService) Get(ctx context.Context, userID, traceID string) (*models.Trace, error) {
	trace := &models.Trace{}
	var entries []byte
	var feedback sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, turn_id, step_id, agent_name, inputs_digest,
		        entries, status, latency_ms, feedback, created_at
		 FROM traces WHERE id = $1 AND user_id = $2`,
		traceID, userID,
	).Scan(&trace.ID, &trace.UserID, &trace.TurnID, &trace.StepID,
		&trace.AgentName, &trace.InputsDigest, &entries, &trace.Status,
		&trace.LatencyMs, &feedback, &trace.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trace: %w", err)
	}

	if err := json.Unmarshal(entries, &trace.Entries); err != nil {
		return nil, fmt.Errorf("failed to decode trace entries: %w", err)
	}
	if feedback.Valid {
		trace.Feedback = models.FeedbackRating(feedback.String)
	}
	return trace, nil
}

// SetFeedback records the user's rating on a trace. First write wins:
// repeat submissions are accepted but do not overwrite.
func (s *TraceService) SetFeedback(ctx context.Context, userID, traceID string, rating models.FeedbackRating) error {
	switch rating {
	case models.FeedbackPositive, models.FeedbackNegative:
	default:
		return NewValidationError("rating", "must be positive or negative")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE traces SET feedback = $3
		 WHERE id = $1 AND user_id = $2 AND feedback IS NULL`,
		traceID, userID, string(rating),
	)
	if err != nil {
		return fmt.Errorf("failed to set feedback: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		// Either the trace doesn't exist or feedback is already recorded.
		if _, err := s.Get(ctx, userID, traceID); err != nil {
			return err
		}
		slog.Debug("Feedback already recorded, keeping first", "trace_id", traceID)
	}
	return nil
}
