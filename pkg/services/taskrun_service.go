package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kaziai/kazi/pkg/database"
	"github.com/kaziai/kazi/pkg/models"
)

// TaskRunService records background task executions.
type TaskRunService struct {
	db *sql.DB
}

// NewTaskRunService creates a new TaskRunService.
func NewTaskRunService(client *database.Client) *TaskRunService {
	return &TaskRunService{db: client.DB()}
}

// Create records a new pending task run.
func (s *TaskRunService) Create(ctx context.Context, req models.CreateTaskRunRequest) (*models.TaskRun, error) {
	if req.UserID == "" {
		return nil, NewValidationError("user_id", "required")
	}
	if req.Type == "" {
		return nil, NewValidationError("type", "required")
	}

	cfg := req.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task config: %w", err)
	}

	run := &models.TaskRun{
		ID: uuid.New().String(), UserID: req.UserID,
		Type: req.Type, Config: cfg, Status: models.TaskStatusPending,
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO task_runs (id, user_id, type, config, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		run.ID, req.UserID, req.Type, string(data), string(run.Status),
	).Scan(&run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create task run: %w", err)
	}
	return run, nil
}

// Start marks a task run as running.
func (s *TaskRunService) Start(ctx context.Context, runID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE task_runs SET status = 'running', started_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to start task run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pending task run %s", ErrNotFound, runID)
	}
	return nil
}

// Finish records a task run's terminal status and summary.
func (s *TaskRunService) Finish(ctx context.Context, runID string, status models.TaskStatus, summary string) error {
	switch status {
	case models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusCancelled:
	default:
		return NewValidationError("status", "must be terminal")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE task_runs SET status = $2, summary = $3, completed_at = now()
		 WHERE id = $1`,
		runID, string(status), summary,
	)
	if err != nil {
		return fmt.Errorf("failed to finish task run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: task run %s", ErrNotFound, runID)
	}
	return nil
}

// List returns the user's task runs, newest first.
func (s *TaskRunService) List(ctx context.Context, userID string, limit int) ([]models.TaskRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, config, status, summary, created_at, started_at, completed_at
		 FROM task_runs WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list task runs: %w", err)
	}
	defer rows.Close()

	var out []models.TaskRun
	for rows.Next() {
		var run models.TaskRun
		var cfg []byte
		var started, completed sql.NullTime
		if err := rows.Scan(&run.ID, &run.UserID, &run.Type, &cfg, &run.Status,
			&run.Summary, &run.CreatedAt, &started, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		if err := json.Unmarshal(cfg, &run.Config); err != nil {
			return nil, fmt.Errorf("failed to decode task config: %w", err)
		}
		if started.Valid {
			t := started.Time
			run.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time
			run.CompletedAt = &t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// PurgeOld deletes terminal task runs created before the cutoff.
func (s *TaskRunService) PurgeOld(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM task_runs
		 WHERE status IN ('completed', 'failed', 'cancelled') AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge task runs: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
