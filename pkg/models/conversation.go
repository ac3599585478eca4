package models

import "time"

// MessageRole identifies the author side of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Conversation is one chat thread owned by a user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one ordered entry within a conversation.
// Ordinals are strictly increasing per conversation.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Ordinal        int         `json:"ordinal"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"created_at"`
}

// AddMessageRequest contains fields for appending a message to a conversation.
type AddMessageRequest struct {
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
}

// Attachment is an optional file payload submitted with a turn.
type Attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}
