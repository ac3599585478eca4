// Package tasks runs the scheduled background monitors and on-demand
// research tasks, fanning results out as notifications and push events.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/models"
	"github.com/kaziai/kazi/pkg/tool"
)

// TaskRunStore records task run lifecycles.
type TaskRunStore interface {
	Create(ctx context.Context, req models.CreateTaskRunRequest) (*models.TaskRun, error)
	Start(ctx context.Context, runID string) error
	Finish(ctx context.Context, runID string, status models.TaskStatus, summary string) error
}

// NotificationStore writes user notifications.
type NotificationStore interface {
	Create(ctx context.Context, req models.CreateNotificationRequest) (*models.Notification, error)
}

// GoalFinder surfaces goals needing attention.
type GoalFinder interface {
	FindStalled(ctx context.Context, cutoff time.Time) ([]models.Goal, error)
}

// UserSource lists the users the periodic monitors cover.
type UserSource interface {
	ActiveUsers(ctx context.Context) ([]string, error)
}

// Runner owns the cron schedule and executes background tasks. Monitors
// never block each other; each run is recorded as a TaskRun.
type Runner struct {
	cfg           *config.TaskConfig
	cron          *cron.Cron
	tools         *tool.Registry
	taskRuns      TaskRunStore
	notifications NotificationStore
	goals         GoalFinder
	users         UserSource
	publisher     events.Publisher

	mu      sync.Mutex
	running map[string]runHandle // runID → in-flight run
}

// runHandle lets CancelTask reach an in-flight run's token without a store
// round trip, and carry the owner check.
type runHandle struct {
	userID string
	cancel context.CancelFunc
}

// NewRunner wires a task runner. Start must be called to begin scheduling.
func NewRunner(
	cfg *config.TaskConfig,
	tools *tool.Registry,
	taskRuns TaskRunStore,
	notifications NotificationStore,
	goals GoalFinder,
	users UserSource,
	publisher events.Publisher,
) *Runner {
	return &Runner{
		cfg:           cfg,
		cron:          cron.New(),
		tools:         tools,
		taskRuns:      taskRuns,
		notifications: notifications,
		goals:         goals,
		users:         users,
		publisher:     publisher,
		running:       make(map[string]runHandle),
	}
}

// CancelTask raises the cancel token of the user's in-flight task run. The
// run finishes as cancelled; notifications it already produced are kept.
// Returns false when no such run is in flight for this user.
func (r *Runner) CancelTask(userID, runID string) bool {
	r.mu.Lock()
	handle, ok := r.running[runID]
	r.mu.Unlock()
	if !ok || handle.userID != userID {
		return false
	}
	handle.cancel()
	return true
}

func (r *Runner) track(runID, userID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[runID] = runHandle{userID: userID, cancel: cancel}
}

func (r *Runner) untrack(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, runID)
}

// Start registers the schedules and begins running them.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(r.cfg.JobMonitorSchedule, func() {
		r.runJobMonitor(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule job monitor: %w", err)
	}

	if _, err := r.cron.AddFunc(r.cfg.AppReminderSchedule, func() {
		r.runStalledGoalCheck(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule reminder check: %w", err)
	}

	r.cron.Start()
	slog.Info("Background task runner started",
		"job_monitor", r.cfg.JobMonitorSchedule,
		"reminders", r.cfg.AppReminderSchedule)
	return nil
}

// Stop halts scheduling and waits for in-flight jobs.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	slog.Info("Background task runner stopped")
}

// runJobMonitor scans the job market for every active user and notifies on
// matches.
func (r *Runner) runJobMonitor(ctx context.Context) {
	users, err := r.users.ActiveUsers(ctx)
	if err != nil {
		slog.Error("Job monitor failed to list users", "error", err)
		return
	}

	for _, userID := range users {
		if err := r.monitorUser(ctx, userID); err != nil {
			slog.Error("Job monitor failed for user", "user_id", userID, "error", err)
		}
	}
}

func (r *Runner) monitorUser(ctx context.Context, userID string) error {
	run, err := r.taskRuns.Create(ctx, models.CreateTaskRunRequest{
		UserID: userID, Type: models.TaskTypeJobMonitor,
	})
	if err != nil {
		return err
	}
	r.publishUpdate(userID, run.ID, models.TaskTypeJobMonitor, models.TaskStatusRunning, "")

	if err := r.taskRuns.Start(ctx, run.ID); err != nil {
		slog.Error("Failed to start task run", "run_id", run.ID, "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.track(run.ID, userID, cancel)
	defer func() {
		r.untrack(run.ID)
		cancel()
	}()

	result := r.tools.Invoke(runCtx, "search_jobs", map[string]any{
		"keywords":    []any{"engineer"},
		"max_results": float64(5),
	})
	if runCtx.Err() != nil {
		r.finish(context.WithoutCancel(ctx), userID, run.ID, models.TaskTypeJobMonitor,
			models.TaskStatusCancelled, "job scan cancelled")
		return nil
	}
	if !result.OK {
		summary := fmt.Sprintf("job search failed: %s", result.Error)
		r.finish(ctx, userID, run.ID, models.TaskTypeJobMonitor, models.TaskStatusFailed, summary)
		return nil
	}

	count := matchCount(result.Data)
	summary := fmt.Sprintf("%d matching roles found", count)
	if count > 0 {
		notif, err := r.notifications.Create(ctx, models.CreateNotificationRequest{
			UserID: userID,
			Type:   models.TaskTypeJobMonitor,
			Title:  fmt.Sprintf("%d new roles match your profile", count),
			Body:   "Open the job feed to review the latest matches.",
		})
		if err != nil {
			slog.Error("Failed to write job monitor notification", "user_id", userID, "error", err)
		} else {
			r.publishNotification(userID, notif)
		}
	}

	r.finish(ctx, userID, run.ID, models.TaskTypeJobMonitor, models.TaskStatusCompleted, summary)
	return nil
}

// runStalledGoalCheck notifies owners of goals with no recent progress.
func (r *Runner) runStalledGoalCheck(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.StalledGoalThreshold)
	stalled, err := r.goals.FindStalled(ctx, cutoff)
	if err != nil {
		slog.Error("Stalled goal check failed", "error", err)
		return
	}

	for _, goal := range stalled {
		notif, err := r.notifications.Create(ctx, models.CreateNotificationRequest{
			UserID:  goal.UserID,
			Type:    models.TaskTypeAppReminder,
			Title:   fmt.Sprintf("Your goal %q hasn't moved lately", goal.Title),
			Body:    "Run the next step or adjust the plan to keep it on track.",
			Payload: map[string]any{"goal_id": goal.ID},
		})
		if err != nil {
			slog.Error("Failed to write stalled goal notification",
				"goal_id", goal.ID, "error", err)
			continue
		}
		r.publishNotification(goal.UserID, notif)
	}

	if len(stalled) > 0 {
		slog.Info("Stalled goal reminders sent", "count", len(stalled))
	}
}

// RunCompanyResearch executes the on-demand company research task.
func (r *Runner) RunCompanyResearch(ctx context.Context, userID, company string) (*models.TaskRun, error) {
	if company == "" {
		return nil, fmt.Errorf("company must be non-empty")
	}

	run, err := r.taskRuns.Create(ctx, models.CreateTaskRunRequest{
		UserID: userID, Type: models.TaskTypeCompanyResearch,
		Config: map[string]any{"company": company},
	})
	if err != nil {
		return nil, err
	}
	r.publishUpdate(userID, run.ID, models.TaskTypeCompanyResearch, models.TaskStatusRunning, "")

	if err := r.taskRuns.Start(ctx, run.ID); err != nil {
		slog.Error("Failed to start task run", "run_id", run.ID, "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.track(run.ID, userID, cancel)
	defer func() {
		r.untrack(run.ID)
		cancel()
	}()

	result := r.tools.Invoke(runCtx, "research_company", map[string]any{"name": company})
	if runCtx.Err() != nil {
		r.finish(context.WithoutCancel(ctx), userID, run.ID, models.TaskTypeCompanyResearch,
			models.TaskStatusCancelled, fmt.Sprintf("research on %s cancelled", company))
		return run, nil
	}
	if !result.OK {
		summary := fmt.Sprintf("research failed: %s", result.Error)
		r.finish(ctx, userID, run.ID, models.TaskTypeCompanyResearch, models.TaskStatusFailed, summary)
		return run, nil
	}

	summary := fmt.Sprintf("research on %s completed", company)
	notif, err := r.notifications.Create(ctx, models.CreateNotificationRequest{
		UserID:  userID,
		Type:    models.TaskTypeCompanyResearch,
		Title:   fmt.Sprintf("Research on %s is ready", company),
		Body:    "The company dossier has been refreshed.",
		Payload: map[string]any{"company": company, "task_id": run.ID},
	})
	if err != nil {
		slog.Error("Failed to write research notification", "user_id", userID, "error", err)
	} else {
		r.publishNotification(userID, notif)
	}

	r.finish(ctx, userID, run.ID, models.TaskTypeCompanyResearch, models.TaskStatusCompleted, summary)
	return run, nil
}

func (r *Runner) finish(ctx context.Context, userID, runID, taskType string, status models.TaskStatus, summary string) {
	if err := r.taskRuns.Finish(ctx, runID, status, summary); err != nil {
		slog.Error("Failed to finish task run", "run_id", runID, "error", err)
	}
	r.publishUpdate(userID, runID, taskType, status, summary)
}

func (r *Runner) publishUpdate(userID, runID, taskType string, status models.TaskStatus, summary string) {
	r.publisher.Publish(userID, events.KindTaskUpdate, events.TaskUpdatePayload{
		TaskID: runID, TaskType: taskType, Status: status, Summary: summary,
	})
}

func (r *Runner) publishNotification(userID string, notif *models.Notification) {
	r.publisher.Publish(userID, events.KindNotification, events.NotificationPayload{
		ID:               notif.ID,
		NotificationType: notif.Type,
		Title:            notif.Title,
		Body:             notif.Body,
	})
}

// matchCount extracts the result count from a search_jobs payload.
func matchCount(data any) int {
	m, ok := data.(map[string]any)
	if !ok {
		return 0
	}
	switch v := m["count"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
