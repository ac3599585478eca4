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

// NotificationService manages user notifications. The read flag is
// one-way: once read, never unread.
type NotificationService struct {
	db *sql.DB
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(client *database.Client) *NotificationService {
	return &NotificationService{db: client.DB()}
}

// Create writes a notification and returns it.
func (s *NotificationService) Create(ctx context.Context, req models.CreateNotificationRequest) (*models.Notification, error) {
	if req.UserID == "" {
		return nil, NewValidationError("user_id", "required")
	}
	if req.Type == "" {
		return nil, NewValidationError("type", "required")
	}
	if req.Title == "" {
		return nil, NewValidationError("title", "required")
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	notif := &models.Notification{
		ID: uuid.New().String(), UserID: req.UserID,
		Type: req.Type, Title: req.Title, Body: req.Body, Payload: payload,
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO notifications (id, user_id, type, title, body, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		notif.ID, req.UserID, req.Type, req.Title, req.Body, string(data),
	).Scan(&notif.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return notif, nil
}

// List returns the user's notifications, newest first. unreadOnly filters
// to unread.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, user_id, type, title, body, payload, read, created_at
	          FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var payload []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body,
			&payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode notification payload: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flips a notification to read. Idempotent.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		notificationID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: notification %s", ErrNotFound, notificationID)
	}
	return nil
}

// PurgeRead deletes read notifications created before the cutoff. Unread
// notifications are kept regardless of age.
func (s *NotificationService) PurgeRead(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE read = TRUE AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
