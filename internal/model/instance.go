package model

type ConnectionStatus string

const (
	Connected    ConnectionStatus = "connected"
	Connecting   ConnectionStatus = "connecting"
	Disconnected ConnectionStatus = "disconnected"
)

// Instance is a connected messaging endpoint. Name is the identifier the
// gateway puts on every webhook.
type Instance struct {
	ID     string
	UserID string
	Name   string
	Phone  string
	Status ConnectionStatus
}
