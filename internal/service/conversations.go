package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
	"github.com/LeventeLantos/messaging-ingest/internal/repo"
)

var placeholders = map[model.Kind]string{
	model.KindImage:    "📷 Image",
	model.KindAudio:    "🎵 Audio",
	model.KindVoice:    "🎤 Voice message",
	model.KindVideo:    "🎥 Video",
	model.KindDocument: "📄 Document",
	model.KindSticker:  "🏷️ Sticker",
}

// Preview renders the conversation list line for a message: the first max
// characters of its text, or a per-kind placeholder when there is none.
func Preview(kind model.Kind, text, fileName string, max int) string {
	text = strings.TrimSpace(norm.NFC.String(text))
	if text != "" {
		return truncateRunes(text, max)
	}
	label, ok := placeholders[kind]
	if !ok {
		return ""
	}
	if kind == model.KindDocument && fileName != "" {
		label += " " + fileName
	}
	return truncateRunes(label, max)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// ConversationManager keeps one open conversation per user and contact.
type ConversationManager struct {
	conversations repo.ConversationRepository
	previewMax    int
}

func NewConversationManager(conversations repo.ConversationRepository, previewMax int) *ConversationManager {
	return &ConversationManager{conversations: conversations, previewMax: previewMax}
}

func (m *ConversationManager) Preview(kind model.Kind, text, fileName string) string {
	return Preview(kind, text, fileName, m.previewMax)
}

// Record attaches a message to the contact's open conversation, creating it
// when needed, and returns the conversation id.
func (m *ConversationManager) Record(ctx context.Context, userID, contactID, instanceID string, dir model.Direction, preview string, at time.Time) (string, error) {
	unread := 0
	if dir == model.Inbound {
		unread = 1
	}

	conv, err := m.conversations.FindOpen(ctx, userID, contactID)
	switch {
	case err == nil:
		err = m.conversations.Touch(ctx, conv.ID, repo.ConversationTouch{
			InstanceID:  instanceID,
			UnreadDelta: unread,
			At:          at,
			Preview:     preview,
		})
		if err != nil {
			return "", fmt.Errorf("update conversation: %w", err)
		}
		return conv.ID, nil
	case !errors.Is(err, repo.ErrNotFound):
		return "", fmt.Errorf("find conversation: %w", err)
	}

	conv = model.Conversation{
		ID:                 uuid.NewString(),
		UserID:             userID,
		ContactID:          contactID,
		InstanceID:         instanceID,
		Status:             model.ConversationActive,
		UnreadCount:        unread,
		LastMessageAt:      at,
		LastMessagePreview: preview,
		CreatedAt:          at,
	}
	if err := m.conversations.Create(ctx, conv); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return conv.ID, nil
}
