package models

import "time"

// TaskStatus is the lifecycle state of a background task run.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Built-in background task types. The runner is pluggable; these three
// ship with the core.
const (
	TaskTypeJobMonitor      = "job_monitor"
	TaskTypeAppReminder     = "application_reminder"
	TaskTypeCompanyResearch = "company_research"
)

// TaskRun records one execution of a background task for a user.
type TaskRun struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Type        string         `json:"type"`
	Config      map[string]any `json:"config,omitempty"`
	Status      TaskStatus     `json:"status"`
	Summary     string         `json:"summary,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// CreateTaskRunRequest contains fields for recording a new task run.
type CreateTaskRunRequest struct {
	UserID string         `json:"user_id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}
