// Package gateway models the webhook payloads posted by the messaging gateway.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed marks payloads that cannot be decoded at all.
var ErrMalformed = errors.New("malformed webhook payload")

type EventType string

const (
	EventUnknown          EventType = ""
	EventMessageUpsert    EventType = "messages.upsert"
	EventMessageUpdate    EventType = "messages.update"
	EventConnectionUpdate EventType = "connection.update"
)

// NormalizeEvent maps the gateway's event name onto a handler family. Case is
// ignored and "_" is accepted in place of ".". Outgoing-message echoes
// ("send.message") are handled as upserts.
func NormalizeEvent(raw string) EventType {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", ".")
	switch name {
	case "messages.upsert", "send.message":
		return EventMessageUpsert
	case "messages.update":
		return EventMessageUpdate
	case "connection.update":
		return EventConnectionUpdate
	default:
		return EventUnknown
	}
}

type Payload struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

func DecodePayload(r io.Reader) (Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	p.Instance = strings.TrimSpace(p.Instance)
	return p, nil
}

type connectionData struct {
	State string `json:"state"`
}

// ParseConnectionState returns the raw state token of a connection update.
func ParseConnectionState(data json.RawMessage) (string, error) {
	var cd connectionData
	if err := json.Unmarshal(data, &cd); err != nil {
		return "", fmt.Errorf("%w: connection data: %v", ErrMalformed, err)
	}
	return strings.ToLower(strings.TrimSpace(cd.State)), nil
}
