package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

type PostgresContactRepo struct {
	db *sqlx.DB
}

func NewPostgresContactRepo(db *sqlx.DB) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

type contactRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Phone     sql.NullString `db:"phone"`
	Label     sql.NullString `db:"lid"`
	Name      string         `db:"name"`
	Status    string         `db:"status"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (row contactRow) toModel() model.Contact {
	return model.Contact{
		ID:        row.ID,
		UserID:    row.UserID,
		Phone:     row.Phone.String,
		Label:     row.Label.String,
		Name:      row.Name,
		Status:    model.ContactStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

const contactColumns = `id, user_id, phone, lid, name, status, created_at, updated_at`

func (r *PostgresContactRepo) FindByPhones(ctx context.Context, userID string, phones ...string) (model.Contact, error) {
	if len(phones) == 0 {
		return model.Contact{}, ErrNotFound
	}

	query, args, err := sqlx.In(`
		SELECT `+contactColumns+`
		FROM contacts
		WHERE user_id = ? AND phone IN (?)
		ORDER BY created_at ASC
		LIMIT 1
	`, userID, phones)
	if err != nil {
		return model.Contact{}, err
	}

	var row contactRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), args...); err != nil {
		return model.Contact{}, notFound(err)
	}
	return row.toModel(), nil
}

func (r *PostgresContactRepo) FindByLabel(ctx context.Context, userID, label string) (model.Contact, error) {
	var row contactRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE user_id = $1 AND lid = $2
		LIMIT 1
	`, userID, label)
	if err != nil {
		return model.Contact{}, notFound(err)
	}
	return row.toModel(), nil
}

func (r *PostgresContactRepo) Create(ctx context.Context, c model.Contact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (id, user_id, phone, lid, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, c.ID, c.UserID, nullString(c.Phone), nullString(c.Label), c.Name, string(c.Status), c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PostgresContactRepo) UpdatePhone(ctx context.Context, id, phone string) error {
	return r.updateColumn(ctx, `UPDATE contacts SET phone = $2, updated_at = now() WHERE id = $1`, id, phone)
}

func (r *PostgresContactRepo) AttachLabel(ctx context.Context, id, label string) error {
	return r.updateColumn(ctx, `UPDATE contacts SET lid = $2, updated_at = now() WHERE id = $1`, id, label)
}

func (r *PostgresContactRepo) updateColumn(ctx context.Context, query, id, value string) error {
	res, err := r.db.ExecContext(ctx, query, id, value)
	if isUniqueViolation(err) {
		return ErrConflict
	}
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
