package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert hits a uniqueness constraint.
	ErrConflict = errors.New("record already exists")
)

type InstanceRepository interface {
	GetByName(ctx context.Context, name string) (model.Instance, error)
	UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error
}

type ContactRepository interface {
	// FindByPhones returns the oldest contact of userID whose phone is one of phones.
	FindByPhones(ctx context.Context, userID string, phones ...string) (model.Contact, error)
	FindByLabel(ctx context.Context, userID, label string) (model.Contact, error)
	Create(ctx context.Context, c model.Contact) error
	UpdatePhone(ctx context.Context, id, phone string) error
	AttachLabel(ctx context.Context, id, label string) error
}

// ConversationTouch is applied to an existing conversation for each new message.
type ConversationTouch struct {
	InstanceID  string
	UnreadDelta int
	At          time.Time
	Preview     string
}

type ConversationRepository interface {
	// FindOpen returns the most recent non-archived conversation for the pair.
	FindOpen(ctx context.Context, userID, contactID string) (model.Conversation, error)
	Create(ctx context.Context, c model.Conversation) error
	Touch(ctx context.Context, id string, t ConversationTouch) error
}

// StatusChange moves a message to Status. Nil timestamps leave the stored
// value untouched.
type StatusChange struct {
	Status      model.Status
	DeliveredAt *time.Time
	ReadAt      *time.Time
}

type MessageRepository interface {
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	GetByExternalID(ctx context.Context, externalID string) (model.Message, error)
	// InsertIfAbsent stores m unless a message with the same external id
	// exists. It reports whether a row was written.
	InsertIfAbsent(ctx context.Context, m model.Message) (bool, error)
	// UpdateStatus applies c only when the stored status may transition to
	// c.Status. It reports whether a row changed.
	UpdateStatus(ctx context.Context, externalID string, c StatusChange) (bool, error)
}

type WarmingRepository interface {
	ActiveScheduleForInstance(ctx context.Context, instanceID string) (model.WarmingSchedule, error)
	IsWarmingContact(ctx context.Context, userID string, phones ...string) (bool, error)
	ActivePairs(ctx context.Context, instanceID string) ([]model.WarmingPair, error)
	// HasSentActivity reports whether scheduleID logged a sent message to any of phones.
	HasSentActivity(ctx context.Context, scheduleID string, phones ...string) (bool, error)
	IncrementReceived(ctx context.Context, scheduleID string, at time.Time) error
	InsertActivity(ctx context.Context, a model.WarmingActivity) error
	ResetDailyCounters(ctx context.Context) (int64, error)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
