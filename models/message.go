package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageRole is the author role of a chat message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageCitations is the citation list attached to an assistant message
type MessageCitations []string

// Value implements driver.Valuer for JSONB
func (c MessageCitations) Value() (driver.Value, error) {
	if c == nil {
		return json.Marshal(MessageCitations{})
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB
func (c *MessageCitations) Scan(value interface{}) error {
	if value == nil {
		*c = make(MessageCitations, 0)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*c = make(MessageCitations, 0)
		return nil
	}
	if len(bytes) == 0 {
		*c = make(MessageCitations, 0)
		return nil
	}
	return json.Unmarshal(bytes, c)
}

// Message is one row of the append-only chat log. Citations are attached
// only to assistant rows, at generation time.
type Message struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Role      MessageRole      `json:"role"`
	Content   string           `json:"content"`
	Citations MessageCitations `json:"citations,omitempty"`
	ThreadID  *uuid.UUID       `json:"thread_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// ChatSession is an advisory analytics row written after each chat turn.
// Insert failures are logged, never surfaced.
type ChatSession struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	MessageCount int       `json:"message_count"`
	ModelUsed    string    `json:"model_used"`
	CreatedAt    time.Time `json:"created_at"`
}
