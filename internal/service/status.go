package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LeventeLantos/messaging-ingest/internal/gateway"
	"github.com/LeventeLantos/messaging-ingest/internal/model"
	"github.com/LeventeLantos/messaging-ingest/internal/repo"
)

var statusTokens = map[string]model.Status{
	"ERROR":        model.Failed,
	"FAILED":       model.Failed,
	"PENDING":      model.Pending,
	"SERVER_ACK":   model.Sent,
	"SENT":         model.Sent,
	"DELIVERY_ACK": model.Delivered,
	"DELIVERED":    model.Delivered,
	"READ":         model.Read,
	"PLAYED":       model.Read,
}

// MapStatus translates a gateway status token. Unknown tokens report false.
func MapStatus(token string) (model.Status, bool) {
	s, ok := statusTokens[strings.ToUpper(strings.TrimSpace(token))]
	return s, ok
}

type StatusResult struct {
	Applied int
	Ignored int
}

// StatusMapper applies delivery notifications. Updates only move a message
// forward; regressions, unknown tokens and unknown messages are no-ops.
type StatusMapper struct {
	messages repo.MessageRepository
	log      *slog.Logger
}

func NewStatusMapper(messages repo.MessageRepository, log *slog.Logger) *StatusMapper {
	return &StatusMapper{messages: messages, log: componentLogger(log, "status")}
}

// Apply processes each update independently. Store failures are joined into
// the returned error so the delivery is retried; updates that already landed
// are skipped on the retry because they are no longer forward transitions.
func (m *StatusMapper) Apply(ctx context.Context, updates []gateway.StatusUpdate) (StatusResult, error) {
	var (
		res  StatusResult
		errs []error
	)
	for _, u := range updates {
		applied, err := m.apply(ctx, u)
		if err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", u.MessageID, err))
			m.log.Error("status update failed", slog.String("message_id", u.MessageID), slog.Any("err", err))
		}
		if applied {
			res.Applied++
		} else {
			res.Ignored++
		}
	}
	return res, errors.Join(errs...)
}

func (m *StatusMapper) apply(ctx context.Context, u gateway.StatusUpdate) (bool, error) {
	if u.MessageID == "" {
		m.log.Info("status update without message id", slog.String("status", u.Status))
		return false, nil
	}
	status, ok := MapStatus(u.Status)
	if !ok {
		m.log.Info("unrecognized status token", slog.String("message_id", u.MessageID), slog.String("status", u.Status))
		return false, nil
	}

	now := time.Now().UTC()
	change := repo.StatusChange{Status: status}
	switch status {
	case model.Delivered:
		change.DeliveredAt = &now
	case model.Read:
		change.ReadAt = &now
	}

	changed, err := m.messages.UpdateStatus(ctx, u.MessageID, change)
	if err != nil {
		return false, err
	}
	if !changed {
		m.log.Debug("status update skipped",
			slog.String("message_id", u.MessageID),
			slog.String("status", string(status)),
			slog.String("reason", "unknown message or not a forward transition"),
		)
	}
	return changed, nil
}
