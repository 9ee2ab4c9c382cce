package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

type PostgresWarmingRepo struct {
	db *sqlx.DB
}

func NewPostgresWarmingRepo(db *sqlx.DB) *PostgresWarmingRepo {
	return &PostgresWarmingRepo{db: db}
}

type scheduleRow struct {
	ID                    string       `db:"id"`
	UserID                string       `db:"user_id"`
	InstanceID            string       `db:"instance_id"`
	Status                string       `db:"status"`
	MessagesReceivedToday int          `db:"messages_received_today"`
	TotalMessagesReceived int          `db:"total_messages_received"`
	LastActivityAt        sql.NullTime `db:"last_activity_at"`
}

type pairRow struct {
	ID          string `db:"id"`
	UserID      string `db:"user_id"`
	InstanceAID string `db:"instance_a_id"`
	InstanceBID string `db:"instance_b_id"`
	Active      bool   `db:"is_active"`
}

func (r *PostgresWarmingRepo) ActiveScheduleForInstance(ctx context.Context, instanceID string) (model.WarmingSchedule, error) {
	var row scheduleRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, user_id, instance_id, status, messages_received_today,
		       total_messages_received, last_activity_at
		FROM warming_schedules
		WHERE instance_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`, instanceID)
	if err != nil {
		return model.WarmingSchedule{}, notFound(err)
	}
	return model.WarmingSchedule{
		ID:                    row.ID,
		UserID:                row.UserID,
		InstanceID:            row.InstanceID,
		Status:                model.WarmingStatus(row.Status),
		MessagesReceivedToday: row.MessagesReceivedToday,
		TotalMessagesReceived: row.TotalMessagesReceived,
		LastActivityAt:        timePtr(row.LastActivityAt),
	}, nil
}

func (r *PostgresWarmingRepo) IsWarmingContact(ctx context.Context, userID string, phones ...string) (bool, error) {
	if len(phones) == 0 {
		return false, nil
	}
	query, args, err := sqlx.In(`
		SELECT EXISTS (
			SELECT 1 FROM warming_contacts WHERE user_id = ? AND phone IN (?)
		)
	`, userID, phones)
	if err != nil {
		return false, err
	}
	var exists bool
	err = r.db.GetContext(ctx, &exists, r.db.Rebind(query), args...)
	return exists, err
}

func (r *PostgresWarmingRepo) ActivePairs(ctx context.Context, instanceID string) ([]model.WarmingPair, error) {
	var rows []pairRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, instance_a_id, instance_b_id, is_active
		FROM warming_pairs
		WHERE is_active AND (instance_a_id = $1 OR instance_b_id = $1)
	`, instanceID)
	if err != nil {
		return nil, err
	}
	out := make([]model.WarmingPair, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.WarmingPair{
			ID:          row.ID,
			UserID:      row.UserID,
			InstanceAID: row.InstanceAID,
			InstanceBID: row.InstanceBID,
			Active:      row.Active,
		})
	}
	return out, nil
}

func (r *PostgresWarmingRepo) HasSentActivity(ctx context.Context, scheduleID string, phones ...string) (bool, error) {
	if len(phones) == 0 {
		return false, nil
	}
	query, args, err := sqlx.In(`
		SELECT EXISTS (
			SELECT 1 FROM warming_activities
			WHERE schedule_id = ? AND activity_type = ? AND contact_phone IN (?)
		)
	`, scheduleID, string(model.ActivityMessageSent), phones)
	if err != nil {
		return false, err
	}
	var exists bool
	err = r.db.GetContext(ctx, &exists, r.db.Rebind(query), args...)
	return exists, err
}

func (r *PostgresWarmingRepo) IncrementReceived(ctx context.Context, scheduleID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE warming_schedules
		SET messages_received_today = messages_received_today + 1,
		    total_messages_received = total_messages_received + 1,
		    last_activity_at = $2
		WHERE id = $1
	`, scheduleID, at)
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

func (r *PostgresWarmingRepo) InsertActivity(ctx context.Context, a model.WarmingActivity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO warming_activities (id, schedule_id, activity_type, contact_phone, content, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.ScheduleID, string(a.Type), a.ContactPhone, a.Content, a.Success, a.CreatedAt)
	return err
}

func (r *PostgresWarmingRepo) ResetDailyCounters(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE warming_schedules
		SET messages_received_today = 0
		WHERE messages_received_today <> 0
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
