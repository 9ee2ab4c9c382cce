package model

import "time"

type WarmingStatus string

const (
	WarmingActive WarmingStatus = "active"
	WarmingPaused WarmingStatus = "paused"
)

type WarmingSchedule struct {
	ID                    string
	UserID                string
	InstanceID            string
	Status                WarmingStatus
	MessagesReceivedToday int
	TotalMessagesReceived int
	LastActivityAt        *time.Time
}

type WarmingContact struct {
	ID     string
	UserID string
	Phone  string
}

type WarmingPair struct {
	ID          string
	UserID      string
	InstanceAID string
	InstanceBID string
	Active      bool
}

// Peer returns the other side of the pair, or "" when instanceID is not part of it.
func (p WarmingPair) Peer(instanceID string) string {
	switch instanceID {
	case p.InstanceAID:
		return p.InstanceBID
	case p.InstanceBID:
		return p.InstanceAID
	}
	return ""
}

type ActivityType string

const (
	ActivityMessageSent     ActivityType = "message_sent"
	ActivityMessageReceived ActivityType = "message_received"
)

type WarmingActivity struct {
	ID           string
	ScheduleID   string
	Type         ActivityType
	ContactPhone string
	Content      string
	Success      bool
	CreatedAt    time.Time
}
