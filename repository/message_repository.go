package repository

import (
	"context"

	"github.com/EvidenceKeeper/evidence-aid-nsw/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository handles the append-only chat log and the advisory
// session-log table
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends one message row
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (
			user_id, role, content, citations, thread_id
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		msg.UserID,
		msg.Role,
		msg.Content,
		msg.Citations,
		msg.ThreadID,
	).Scan(&msg.ID, &msg.CreatedAt)

	return err
}

// ListRecentByUser returns the newest messages for a user, newest first.
// Callers reverse the window to reconstruct conversation order.
func (r *MessageRepository) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, user_id, role, content, citations, thread_id, created_at
		FROM messages
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.UserID,
			&msg.Role,
			&msg.Content,
			&msg.Citations,
			&msg.ThreadID,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// LogSession inserts one advisory analytics row for a completed chat turn
func (r *MessageRepository) LogSession(ctx context.Context, session *models.ChatSession) error {
	query := `
		INSERT INTO chat_sessions (
			user_id, message_count, model_used
		) VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		session.UserID,
		session.MessageCount,
		session.ModelUsed,
	).Scan(&session.ID, &session.CreatedAt)

	return err
}
