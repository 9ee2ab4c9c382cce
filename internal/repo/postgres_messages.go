package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

type PostgresMessageRepo struct {
	db *sqlx.DB
}

func NewPostgresMessageRepo(db *sqlx.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

type messageRow struct {
	ID                string         `db:"id"`
	ConversationID    string         `db:"conversation_id"`
	Direction         string         `db:"direction"`
	Content           string         `db:"content"`
	Kind              string         `db:"message_type"`
	MediaURL          sql.NullString `db:"media_url"`
	ExternalMessageID string         `db:"whatsapp_message_id"`
	Status            string         `db:"status"`
	SentAt            time.Time      `db:"sent_at"`
	DeliveredAt       sql.NullTime   `db:"delivered_at"`
	ReadAt            sql.NullTime   `db:"read_at"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r *PostgresMessageRepo) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM messages WHERE whatsapp_message_id = $1)
	`, externalID)
	return exists, err
}

func (r *PostgresMessageRepo) GetByExternalID(ctx context.Context, externalID string) (model.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, conversation_id, direction, COALESCE(content, '') AS content, message_type,
		       media_url, whatsapp_message_id, status, sent_at, delivered_at, read_at, created_at
		FROM messages
		WHERE whatsapp_message_id = $1
		LIMIT 1
	`, externalID)
	if err != nil {
		return model.Message{}, notFound(err)
	}
	return model.Message{
		ID:                row.ID,
		ConversationID:    row.ConversationID,
		Direction:         model.Direction(row.Direction),
		Content:           row.Content,
		Kind:              model.Kind(row.Kind),
		MediaURL:          row.MediaURL.String,
		ExternalMessageID: row.ExternalMessageID,
		Status:            model.Status(row.Status),
		SentAt:            row.SentAt,
		DeliveredAt:       timePtr(row.DeliveredAt),
		ReadAt:            timePtr(row.ReadAt),
		CreatedAt:         row.CreatedAt,
	}, nil
}

// InsertIfAbsent relies on the unique index on whatsapp_message_id, so two
// concurrent deliveries of the same event still produce one row.
func (r *PostgresMessageRepo) InsertIfAbsent(ctx context.Context, m model.Message) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, direction, content, message_type, media_url,
		                      whatsapp_message_id, status, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (whatsapp_message_id) DO NOTHING
	`, m.ID, m.ConversationID, string(m.Direction), m.Content, string(m.Kind), nullString(m.MediaURL),
		m.ExternalMessageID, string(m.Status), m.SentAt, m.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresMessageRepo) UpdateStatus(ctx context.Context, externalID string, c StatusChange) (bool, error) {
	from := c.Status.Predecessors()
	if len(from) == 0 {
		return false, nil
	}
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	query, args, err := sqlx.In(`
		UPDATE messages
		SET status = ?,
		    delivered_at = COALESCE(?, delivered_at),
		    read_at = COALESCE(?, read_at)
		WHERE whatsapp_message_id = ? AND status IN (?)
	`, string(c.Status), nullTime(c.DeliveredAt), nullTime(c.ReadAt), externalID, allowed)
	if err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
