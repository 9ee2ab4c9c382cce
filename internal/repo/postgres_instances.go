package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

type PostgresInstanceRepo struct {
	db *sqlx.DB
}

func NewPostgresInstanceRepo(db *sqlx.DB) *PostgresInstanceRepo {
	return &PostgresInstanceRepo{db: db}
}

type instanceRow struct {
	ID     string         `db:"id"`
	UserID string         `db:"user_id"`
	Name   string         `db:"instance_name"`
	Phone  sql.NullString `db:"phone_number"`
	Status string         `db:"status"`
}

func (r *PostgresInstanceRepo) GetByName(ctx context.Context, name string) (model.Instance, error) {
	var row instanceRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, user_id, instance_name, phone_number, status
		FROM whatsapp_instances
		WHERE instance_name = $1
		LIMIT 1
	`, name)
	if err != nil {
		return model.Instance{}, notFound(err)
	}
	return model.Instance{
		ID:     row.ID,
		UserID: row.UserID,
		Name:   row.Name,
		Phone:  row.Phone.String,
		Status: model.ConnectionStatus(row.Status),
	}, nil
}

func (r *PostgresInstanceRepo) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE whatsapp_instances
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, string(status))
	return err
}
