package model

import "time"

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

type Conversation struct {
	ID                 string
	UserID             string
	ContactID          string
	InstanceID         string
	Status             ConversationStatus
	UnreadCount        int
	LastMessageAt      time.Time
	LastMessagePreview string
	CreatedAt          time.Time
}
