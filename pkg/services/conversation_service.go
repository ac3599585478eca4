package services

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/kaziai/kazi/pkg/database"
	"github.com/kaziai/kazi/pkg/models"
)

// ConversationService manages conversations and their ordered messages.
type ConversationService struct {
	db *sql.DB
}

// NewConversationService creates a new ConversationService.
func NewConversationService(client *database.Client) *ConversationService {
	return &ConversationService{db: client.DB()}
}

// Ensure returns the conversation, creating it when the id is empty or
// unknown. The second return reports whether a row was created.
func (s *ConversationService) Ensure(ctx context.Context, userID, conversationID string) (*models.Conversation, bool, error) {
	if userID == "" {
		return nil, false, NewValidationError("user_id", "required")
	}

	if conversationID != "" {
		conv, err := s.get(ctx, conversationID)
		if err == nil {
			if conv.UserID != userID {
				return nil, false, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
			}
			return conv, false, nil
		}
		if err != ErrNotFound && err != sql.ErrNoRows {
			return nil, false, err
		}
	}

	conv := &models.Conversation{ID: uuid.New().String(), UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO conversations (id, user_id) VALUES ($1, $2)
		 RETURNING created_at, updated_at`,
		conv.ID, userID,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, true, nil
}

func (s *ConversationService) get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations WHERE id = $1`,
		conversationID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// Get retrieves a conversation owned by the user.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotFound
	}
	return conv, nil
}

// List returns the user's conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations WHERE user_id = $1
		 ORDER BY updated_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendMessage writes the next-ordinal message of a conversation.
// Ordinals are allocated inside the insert so they stay gapless under the
// per-conversation lock.
func (s *ConversationService) AppendMessage(ctx context.Context, req models.AddMessageRequest) (*models.Message, error) {
	if req.ConversationID == "" {
		return nil, NewValidationError("conversation_id", "required")
	}
	if req.Role == "" {
		return nil, NewValidationError("role", "required")
	}
	if req.Content == "" {
		return nil, NewValidationError("content", "required")
	}

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Role:           req.Role,
		Content:        req.Content,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (id, conversation_id, ordinal, role, content)
		 SELECT $1, $2, COALESCE(MAX(ordinal), 0) + 1, $3, $4
		 FROM messages WHERE conversation_id = $2
		 RETURNING ordinal, created_at`,
		msg.ID, req.ConversationID, string(req.Role), req.Content,
	).Scan(&msg.Ordinal, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`,
		req.ConversationID,
	); err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}
	return msg, nil
}

// History returns the trailing messages of a conversation in ordinal order.
func (s *ConversationService) History(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, ordinal, role, content, created_at
		 FROM (
		   SELECT id, conversation_id, ordinal, role, content, created_at
		   FROM messages WHERE conversation_id = $1
		   ORDER BY ordinal DESC LIMIT $2
		 ) tail ORDER BY ordinal ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Ordinal, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = models.MessageRole(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ActiveUsers returns every user with at least one conversation. Used by
// the background monitors to scope their scans.
func (s *ConversationService) ActiveUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM conversations`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}

// Lock takes the conversation's advisory lock on a dedicated connection.
// The lock serializes turns against the same conversation across processes;
// release returns the connection to the pool.
func (s *ConversationService) Lock(ctx context.Context, conversationID string) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	key := advisoryKey(conversationID)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to take conversation lock: %w", err)
	}

	release := func() {
		// Unlock on the same connection the lock was taken on.
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		conn.Close()
	}
	return release, nil
}

// advisoryKey maps a conversation id onto the advisory-lock keyspace.
func advisoryKey(conversationID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(conversationID))
	return int64(h.Sum64())
}
