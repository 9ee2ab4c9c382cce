package service

import (
	"context"
	"log/slog"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

// MessagePersisted is emitted once for every newly written message.
type MessagePersisted struct {
	Instance       model.Instance
	Contact        model.Contact
	ConversationID string
	Message        model.Message
}

// PersistedConsumer reacts to written messages. Its errors are logged by the
// ingestor and never change the outcome of the write.
type PersistedConsumer interface {
	Name() string
	Consume(ctx context.Context, ev MessagePersisted) error
}

func componentLogger(log *slog.Logger, name string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With(slog.String("component", name))
}
