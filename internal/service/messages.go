package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
	"github.com/LeventeLantos/messaging-ingest/internal/repo"
)

type NewMessage struct {
	ConversationID    string
	Direction         model.Direction
	Kind              model.Kind
	Content           string
	MediaURL          string
	ExternalMessageID string
	SentAt            time.Time
}

type MessageWriter struct {
	messages repo.MessageRepository
}

func NewMessageWriter(messages repo.MessageRepository) *MessageWriter {
	return &MessageWriter{messages: messages}
}

// Exists reports whether a message with externalID was already stored.
func (w *MessageWriter) Exists(ctx context.Context, externalID string) (bool, error) {
	ok, err := w.messages.ExistsByExternalID(ctx, externalID)
	if err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	return ok, nil
}

// Write stores nm unless its external id is already present. The returned
// bool is false for redeliveries.
func (w *MessageWriter) Write(ctx context.Context, nm NewMessage) (model.Message, bool, error) {
	exists, err := w.Exists(ctx, nm.ExternalMessageID)
	if err != nil {
		return model.Message{}, false, err
	}
	if exists {
		return model.Message{}, false, nil
	}

	now := time.Now().UTC()
	sentAt := nm.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}
	status := model.Received
	if nm.Direction == model.Outbound {
		status = model.Sent
	}

	m := model.Message{
		ID:                uuid.NewString(),
		ConversationID:    nm.ConversationID,
		Direction:         nm.Direction,
		Content:           nm.Content,
		Kind:              nm.Kind,
		MediaURL:          nm.MediaURL,
		ExternalMessageID: nm.ExternalMessageID,
		Status:            status,
		SentAt:            sentAt,
		CreatedAt:         now,
	}
	created, err := w.messages.InsertIfAbsent(ctx, m)
	if err != nil {
		return model.Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	if !created {
		return model.Message{}, false, nil
	}
	return m, true, nil
}
