package cache

import (
	"context"
	"time"
)

// MessageCache remembers external message ids that were already persisted so
// gateway redeliveries can be acknowledged without touching the database.
type MessageCache interface {
	Seen(ctx context.Context, externalID string) (bool, error)
	MarkSeen(ctx context.Context, externalID, conversationID string, at time.Time) error
}

// NopCache is used when Redis is not configured; every id looks new.
type NopCache struct{}

func (NopCache) Seen(context.Context, string) (bool, error) { return false, nil }

func (NopCache) MarkSeen(context.Context, string, string, time.Time) error { return nil }
