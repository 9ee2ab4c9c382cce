package model

import "time"

type Status string

const (
	Pending   Status = "pending"
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
	Failed    Status = "failed"
	Received  Status = "received"
)

// Rank orders statuses along the delivery progression. Failed has no rank of
// its own; see CanTransition.
func (s Status) Rank() int {
	switch s {
	case Pending:
		return 0
	case Sent, Received:
		return 1
	case Delivered:
		return 2
	case Read:
		return 3
	default:
		return -1
	}
}

// CanTransition reports whether a message currently in s may move to next.
// Updates never move backwards; failed is reachable from anything short of read.
func (s Status) CanTransition(next Status) bool {
	if next == Failed {
		return s != Read && s != Failed
	}
	if s == Failed {
		return false
	}
	return next.Rank() > s.Rank()
}

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindVoice    Kind = "voice"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindSticker  Kind = "sticker"
)

func (k Kind) IsMedia() bool {
	return k != KindText && k != ""
}

type Message struct {
	ID                string
	ConversationID    string
	Direction         Direction
	Content           string
	Kind              Kind
	MediaURL          string
	ExternalMessageID string
	Status            Status
	SentAt            time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	CreatedAt         time.Time
}

var allStatuses = []Status{Pending, Sent, Received, Delivered, Read, Failed}

// Predecessors lists the statuses a message may be in for s to apply.
func (s Status) Predecessors() []Status {
	var out []Status
	for _, from := range allStatuses {
		if from.CanTransition(s) {
			out = append(out, from)
		}
	}
	return out
}
