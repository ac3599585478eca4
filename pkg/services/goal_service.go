package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kaziai/kazi/pkg/database"
	"github.com/kaziai/kazi/pkg/models"
)

// GoalService manages goals and their ordered steps, including the
// exclusive execution claim.
type GoalService struct {
	db *sql.DB
}

// NewGoalService creates a new GoalService.
func NewGoalService(client *database.Client) *GoalService {
	return &GoalService{db: client.DB()}
}

// CreateGoal persists a goal and its planned steps in one transaction.
func (s *GoalService) CreateGoal(ctx context.Context, userID, title, description string, planned []models.PlannedStep) (*models.Goal, []models.Step, error) {
	if userID == "" {
		return nil, nil, NewValidationError("user_id", "required")
	}
	if title == "" {
		return nil, nil, NewValidationError("title", "required")
	}
	if len(planned) == 0 {
		return nil, nil, NewValidationError("steps", "at least one step required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	goal := &models.Goal{
		ID: uuid.New().String(), UserID: userID,
		Title: title, Description: description,
		Status: models.GoalStatusActive,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO goals (id, user_id, title, description, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		goal.ID, userID, title, description, string(goal.Status),
	).Scan(&goal.CreatedAt, &goal.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create goal: %w", err)
	}

	steps := make([]models.Step, len(planned))
	for i, p := range planned {
		step := models.Step{
			ID: uuid.New().String(), GoalID: goal.ID, Ordinal: i + 1,
			Title: p.Title, Description: p.Description,
			AgentName: p.AgentName, Status: models.StepStatusPending,
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO goal_steps (id, goal_id, ordinal, title, description, agent_name, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING created_at`,
			step.ID, goal.ID, step.Ordinal, p.Title, p.Description, p.AgentName, string(step.Status),
		).Scan(&step.CreatedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create step %d: %w", i+1, err)
		}
		steps[i] = step
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit goal: %w", err)
	}
	return goal, steps, nil
}

// GetGoal retrieves a goal with its steps in ordinal order.
func (s *GoalService) GetGoal(ctx context.Context, goalID string) (*models.Goal, []models.Step, error) {
	goal := &models.Goal{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, status, created_at, updated_at
		 FROM goals WHERE id = $1`,
		goalID,
	).Scan(&goal.ID, &goal.UserID, &goal.Title, &goal.Description,
		&goal.Status, &goal.CreatedAt, &goal.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get goal: %w", err)
	}

	steps, err := s.steps(ctx, goalID)
	if err != nil {
		return nil, nil, err
	}
	return goal, steps, nil
}

func (s *GoalService) steps(ctx context.Context, goalID string) ([]models.Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, goal_id, ordinal, title, description, agent_name, status,
		        output, trace_id, created_at, completed_at
		 FROM goal_steps WHERE goal_id = $1 ORDER BY ordinal`,
		goalID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	var out []models.Step
	for rows.Next() {
		var step models.Step
		var traceID sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&step.ID, &step.GoalID, &step.Ordinal, &step.Title,
			&step.Description, &step.AgentName, &step.Status, &step.Output,
			&traceID, &step.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if traceID.Valid {
			step.TraceID = traceID.String
		}
		if completedAt.Valid {
			t := completedAt.Time
			step.CompletedAt = &t
		}
		out = append(out, step)
	}
	return out, rows.Err()
}

// ListGoals returns the user's goals, newest first.
func (s *GoalService) ListGoals(ctx context.Context, userID string) ([]models.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, status, created_at, updated_at
		 FROM goals WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var out []models.Goal
	for rows.Next() {
		var g models.Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &g.Description,
			&g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpdateGoalStatus sets the goal's lifecycle status. A completed goal is
// terminal and refuses further transitions.
func (s *GoalService) UpdateGoalStatus(ctx context.Context, goalID string, status models.GoalStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE goals SET status = $2, updated_at = now()
		 WHERE id = $1 AND status <> $3`,
		goalID, string(status), string(models.GoalStatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to update goal status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: goal %s (or goal already completed)", ErrNotFound, goalID)
	}
	return nil
}

// Claim takes the goal's exclusive execution hold. The guard in the WHERE
// clause makes concurrent claims race safely: only one wins.
func (s *GoalService) Claim(ctx context.Context, goalID, holder string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE goals SET claimed_by = $2, claimed_at = now()
		 WHERE id = $1 AND (claimed_by IS NULL OR claimed_by = $2)`,
		goalID, holder,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim goal: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// Release drops the goal's execution hold if this holder still owns it.
func (s *GoalService) Release(ctx context.Context, goalID, holder string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE goals SET claimed_by = NULL, claimed_at = NULL
		 WHERE id = $1 AND claimed_by = $2`,
		goalID, holder,
	)
	if err != nil {
		return fmt.Errorf("failed to release goal: %w", err)
	}
	return nil
}

// MarkStep transitions a step's status and records its output and trace.
// Terminal transitions stamp completed_at.
func (s *GoalService) MarkStep(ctx context.Context, stepID string, status models.StepStatus, output, traceID string) error {
	var traceArg any
	if traceID != "" {
		traceArg = traceID
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE goal_steps SET
		   status = $2,
		   output = CASE WHEN $3 <> '' THEN $3 ELSE output END,
		   trace_id = COALESCE($4, trace_id),
		   completed_at = CASE WHEN $2 IN ('completed', 'skipped', 'failed') THEN now() ELSE completed_at END
		 WHERE id = $1`,
		stepID, string(status), output, traceArg,
	)
	if err != nil {
		return fmt.Errorf("failed to mark step: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: step %s", ErrNotFound, stepID)
	}
	return nil
}

// UpdateStepPlan rewrites a pending step's plan fields.
func (s *GoalService) UpdateStepPlan(ctx context.Context, stepID, title, description, agentName string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE goal_steps SET title = $2, description = $3, agent_name = $4
		 WHERE id = $1 AND status = 'pending'`,
		stepID, title, description, agentName,
	)
	if err != nil {
		return fmt.Errorf("failed to update step plan: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pending step %s", ErrNotFound, stepID)
	}
	return nil
}

// InsertStep places a new step at the given ordinal, shifting later steps
// up by one. Relies on the deferred uniqueness constraint so the shift and
// the insert commit together.
func (s *GoalService) InsertStep(ctx context.Context, goalID string, ordinal int, planned models.PlannedStep) (*models.Step, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE goal_steps SET ordinal = ordinal + 1
		 WHERE goal_id = $1 AND ordinal >= $2`,
		goalID, ordinal,
	); err != nil {
		return nil, fmt.Errorf("failed to shift steps: %w", err)
	}

	step := &models.Step{
		ID: uuid.New().String(), GoalID: goalID, Ordinal: ordinal,
		Title: planned.Title, Description: planned.Description,
		AgentName: planned.AgentName, Status: models.StepStatusPending,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO goal_steps (id, goal_id, ordinal, title, description, agent_name, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		step.ID, goalID, ordinal, planned.Title, planned.Description, planned.AgentName, string(step.Status),
	).Scan(&step.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit step insert: %w", err)
	}
	return step, nil
}

// FindStalled returns active goals whose last update is older than the
// cutoff, for the background monitor.
func (s *GoalService) FindStalled(ctx context.Context, cutoff time.Time) ([]models.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, status, created_at, updated_at
		 FROM goals WHERE status = 'active' AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find stalled goals: %w", err)
	}
	defer rows.Close()

	var out []models.Goal
	for rows.Next() {
		var g models.Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &g.Description,
			&g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
