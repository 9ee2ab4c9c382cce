package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

// MessageKey addresses one message on the gateway. It is passed back verbatim
// when requesting the message's media.
type MessageKey struct {
	RemoteJID    string `json:"remoteJid"`
	RemoteJIDAlt string `json:"remoteJidAlt,omitempty"`
	SenderPN     string `json:"senderPn,omitempty"`
	FromMe       bool   `json:"fromMe"`
	ID           string `json:"id"`
	Participant  string `json:"participant,omitempty"`
}

// AltJID is the alternate address for the counterparty, if the gateway sent one.
func (k MessageKey) AltJID() string {
	if k.RemoteJIDAlt != "" {
		return k.RemoteJIDAlt
	}
	return k.SenderPN
}

// Content is the single variant a message carries. Text holds the body for
// text messages and the caption (or file name) for media.
type Content struct {
	Kind     model.Kind
	Text     string
	MediaURL string
	MimeType string
	FileName string
}

func (c Content) Empty() bool {
	return strings.TrimSpace(c.Text) == "" && !c.Kind.IsMedia()
}

// Envelope is one message of an upsert. Err is set when the entry could not
// be decoded; Key then holds whatever id was recoverable.
type Envelope struct {
	Key       MessageKey
	PushName  string
	Timestamp time.Time
	Content   Content
	Err       error
}

func (e Envelope) Direction() model.Direction {
	if e.Key.FromMe {
		return model.Outbound
	}
	return model.Inbound
}

type wireEnvelope struct {
	Key              MessageKey   `json:"key"`
	PushName         string       `json:"pushName"`
	Message          *wireMessage `json:"message"`
	MessageTimestamp epochSeconds `json:"messageTimestamp"`
}

type wireMessage struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ImageMessage               *wireMedia  `json:"imageMessage"`
	VideoMessage               *wireMedia  `json:"videoMessage"`
	AudioMessage               *wireMedia  `json:"audioMessage"`
	DocumentMessage            *wireMedia  `json:"documentMessage"`
	StickerMessage             *wireMedia  `json:"stickerMessage"`
	DocumentWithCaptionMessage *wrappedMsg `json:"documentWithCaptionMessage"`
	EphemeralMessage           *wrappedMsg `json:"ephemeralMessage"`
	ViewOnceMessage            *wrappedMsg `json:"viewOnceMessage"`
}

type wrappedMsg struct {
	Message *wireMessage `json:"message"`
}

type wireMedia struct {
	URL      string `json:"url"`
	Caption  string `json:"caption"`
	Mimetype string `json:"mimetype"`
	FileName string `json:"fileName"`
	PTT      bool   `json:"ptt"`
}

func (m *wireMessage) content() Content {
	if m == nil {
		return Content{Kind: model.KindText}
	}
	for _, w := range []*wrappedMsg{m.EphemeralMessage, m.ViewOnceMessage, m.DocumentWithCaptionMessage} {
		if w != nil && w.Message != nil {
			return w.Message.content()
		}
	}

	media := func(kind model.Kind, wm *wireMedia) Content {
		return Content{
			Kind:     kind,
			Text:     strings.TrimSpace(wm.Caption),
			MediaURL: wm.URL,
			MimeType: wm.Mimetype,
			FileName: wm.FileName,
		}
	}

	switch {
	case m.ImageMessage != nil:
		return media(model.KindImage, m.ImageMessage)
	case m.VideoMessage != nil:
		return media(model.KindVideo, m.VideoMessage)
	case m.AudioMessage != nil:
		if m.AudioMessage.PTT {
			return media(model.KindVoice, m.AudioMessage)
		}
		return media(model.KindAudio, m.AudioMessage)
	case m.DocumentMessage != nil:
		return media(model.KindDocument, m.DocumentMessage)
	case m.StickerMessage != nil:
		return media(model.KindSticker, m.StickerMessage)
	case m.Conversation != "":
		return Content{Kind: model.KindText, Text: m.Conversation}
	case m.ExtendedTextMessage != nil:
		return Content{Kind: model.KindText, Text: m.ExtendedTextMessage.Text}
	}
	return Content{Kind: model.KindText}
}

func (w wireEnvelope) envelope() Envelope {
	return Envelope{
		Key:       w.Key,
		PushName:  strings.TrimSpace(w.PushName),
		Timestamp: w.MessageTimestamp.Time(),
		Content:   w.Message.content(),
	}
}

// ParseUpsert decodes the data of a message upsert. The gateway sends either a
// single envelope, an array of envelopes, or {"messages": [...]}. Entries are
// decoded one by one: a broken entry comes back with Err set and does not
// affect its neighbours. Only data that is not an object or array is malformed.
func ParseUpsert(data json.RawMessage) ([]Envelope, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var entries []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: upsert data: %v", ErrMalformed, err)
		}
	case '{':
		var batch struct {
			Messages json.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("%w: upsert data: %v", ErrMalformed, err)
		}
		list := bytes.TrimSpace(batch.Messages)
		if len(list) == 0 || bytes.Equal(list, []byte("null")) {
			entries = []json.RawMessage{data}
			break
		}
		if err := json.Unmarshal(list, &entries); err != nil {
			return nil, fmt.Errorf("%w: upsert messages: %v", ErrMalformed, err)
		}
	default:
		return nil, fmt.Errorf("%w: upsert data is not an object", ErrMalformed)
	}

	out := make([]Envelope, 0, len(entries))
	for _, raw := range entries {
		out = append(out, decodeEnvelope(raw))
	}
	return out, nil
}

func decodeEnvelope(raw json.RawMessage) Envelope {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		var partial struct {
			Key struct {
				ID string `json:"id"`
			} `json:"key"`
		}
		_ = json.Unmarshal(raw, &partial)
		return Envelope{
			Key: MessageKey{ID: partial.Key.ID},
			Err: fmt.Errorf("%w: envelope: %v", ErrMalformed, err),
		}
	}
	return w.envelope()
}

// epochSeconds accepts the timestamp as a number, a numeric string, or the
// {low, high} pair some protobuf encoders emit for 64-bit values.
type epochSeconds int64

// An unreadable timestamp decodes as zero, which callers treat as "now".
func (e *epochSeconds) UnmarshalJSON(b []byte) error {
	*e = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			*e = epochSeconds(v)
		}
	case '{':
		var long struct {
			Low  uint32 `json:"low"`
			High int32  `json:"high"`
		}
		if err := json.Unmarshal(b, &long); err == nil {
			*e = epochSeconds(int64(long.High)<<32 | int64(long.Low))
		}
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err == nil {
			*e = epochSeconds(int64(f))
		}
	}
	return nil
}

func (e epochSeconds) Time() time.Time {
	if e <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(e), 0).UTC()
}
