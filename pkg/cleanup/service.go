// Package cleanup enforces data retention: old terminal task runs and
// read notifications are purged on a fixed interval.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/kaziai/kazi/pkg/config"
)

// TaskRunPurger removes terminal task runs older than a cutoff.
type TaskRunPurger interface {
	PurgeOld(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationPurger removes read notifications older than a cutoff.
type NotificationPurger interface {
	PurgeRead(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces retention policies. All operations are
// idempotent and safe to run from multiple replicas.
type Service struct {
	config        *config.RetentionConfig
	taskRuns      TaskRunPurger
	notifications NotificationPurger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, taskRuns TaskRunPurger, notifications NotificationPurger) *Service {
	return &Service{
		config:        cfg,
		taskRuns:      taskRuns,
		notifications: notifications,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"task_run_retention", s.config.TaskRunRetention,
		"notification_retention", s.config.NotificationRetention,
		"interval", s.config.SweepInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	now := time.Now()

	count, err := s.taskRuns.PurgeOld(ctx, now.Add(-s.config.TaskRunRetention))
	if err != nil {
		slog.Error("Retention: task run purge failed", "error", err)
	} else if count > 0 {
		slog.Info("Retention: purged old task runs", "count", count)
	}

	count, err = s.notifications.PurgeRead(ctx, now.Add(-s.config.NotificationRetention))
	if err != nil {
		slog.Error("Retention: notification purge failed", "error", err)
	} else if count > 0 {
		slog.Info("Retention: purged read notifications", "count", count)
	}
}
