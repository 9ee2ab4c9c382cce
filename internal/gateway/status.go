package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StatusUpdate is one delivery notification. Status is the upper-cased token
// as sent by the gateway; numeric acks are translated to their names.
type StatusUpdate struct {
	MessageID string
	Status    string
}

var numericAcks = map[int]string{
	0: "ERROR",
	1: "PENDING",
	2: "SERVER_ACK",
	3: "DELIVERY_ACK",
	4: "READ",
	5: "PLAYED",
}

type statusToken string

func (s *statusToken) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		*s = statusToken(strings.ToUpper(strings.TrimSpace(raw)))
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("status %s: %w", b, err)
	}
	if name, ok := numericAcks[n]; ok {
		*s = statusToken(name)
		return nil
	}
	*s = statusToken(strconv.Itoa(n))
	return nil
}

type wireStatus struct {
	MessageID string `json:"messageId"`
	KeyID     string `json:"keyId"`
	Key       *struct {
		ID string `json:"id"`
	} `json:"key"`
	Status statusToken `json:"status"`
	Update *struct {
		Status statusToken `json:"status"`
	} `json:"update"`
}

func (w wireStatus) update() StatusUpdate {
	u := StatusUpdate{MessageID: w.MessageID, Status: string(w.Status)}
	if u.MessageID == "" {
		u.MessageID = w.KeyID
	}
	if u.MessageID == "" && w.Key != nil {
		u.MessageID = w.Key.ID
	}
	if u.Status == "" && w.Update != nil {
		u.Status = string(w.Update.Status)
	}
	return u
}

// ParseStatusUpdates decodes a single status object or an array of them.
func ParseStatusUpdates(data json.RawMessage) ([]StatusUpdate, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var wires []wireStatus
	if data[0] == '[' {
		if err := json.Unmarshal(data, &wires); err != nil {
			return nil, fmt.Errorf("%w: status data: %v", ErrMalformed, err)
		}
	} else {
		var single wireStatus
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("%w: status data: %v", ErrMalformed, err)
		}
		wires = []wireStatus{single}
	}

	out := make([]StatusUpdate, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.update())
	}
	return out, nil
}
