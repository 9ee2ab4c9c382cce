package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

type PostgresConversationRepo struct {
	db *sqlx.DB
}

func NewPostgresConversationRepo(db *sqlx.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

type conversationRow struct {
	ID                 string    `db:"id"`
	UserID             string    `db:"user_id"`
	ContactID          string    `db:"contact_id"`
	InstanceID         string    `db:"instance_id"`
	Status             string    `db:"status"`
	UnreadCount        int       `db:"unread_count"`
	LastMessageAt      time.Time `db:"last_message_at"`
	LastMessagePreview string    `db:"last_message_preview"`
	CreatedAt          time.Time `db:"created_at"`
}

func (r *PostgresConversationRepo) FindOpen(ctx context.Context, userID, contactID string) (model.Conversation, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, user_id, contact_id, instance_id, status, unread_count,
		       last_message_at, COALESCE(last_message_preview, '') AS last_message_preview, created_at
		FROM conversations
		WHERE user_id = $1 AND contact_id = $2 AND status <> 'archived'
		ORDER BY last_message_at DESC
		LIMIT 1
	`, userID, contactID)
	if err != nil {
		return model.Conversation{}, notFound(err)
	}
	return model.Conversation{
		ID:                 row.ID,
		UserID:             row.UserID,
		ContactID:          row.ContactID,
		InstanceID:         row.InstanceID,
		Status:             model.ConversationStatus(row.Status),
		UnreadCount:        row.UnreadCount,
		LastMessageAt:      row.LastMessageAt,
		LastMessagePreview: row.LastMessagePreview,
		CreatedAt:          row.CreatedAt,
	}, nil
}

func (r *PostgresConversationRepo) Create(ctx context.Context, c model.Conversation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, contact_id, instance_id, status, unread_count,
		                           last_message_at, last_message_preview, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.UserID, c.ContactID, c.InstanceID, string(c.Status), c.UnreadCount,
		c.LastMessageAt, c.LastMessagePreview, c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// Touch updates the rolling fields in one statement so concurrent deliveries
// never lose an unread increment.
func (r *PostgresConversationRepo) Touch(ctx context.Context, id string, t ConversationTouch) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET instance_id = $2,
		    unread_count = unread_count + $3,
		    last_message_at = $4,
		    last_message_preview = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, t.InstanceID, t.UnreadDelta, t.At, t.Preview)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
