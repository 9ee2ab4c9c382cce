package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"

	"github.com/LeventeLantos/messaging-ingest/internal/blob"
	"github.com/LeventeLantos/messaging-ingest/internal/client"
	"github.com/LeventeLantos/messaging-ingest/internal/gateway"
	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

type MediaFetcher interface {
	FetchMediaBase64(ctx context.Context, instance string, key gateway.MessageKey) (client.MediaPayload, error)
}

type kindDefault struct {
	ext  string
	mime string
}

var kindDefaults = map[model.Kind]kindDefault{
	model.KindImage:    {".jpg", "image/jpeg"},
	model.KindAudio:    {".ogg", "audio/ogg"},
	model.KindVoice:    {".ogg", "audio/ogg"},
	model.KindVideo:    {".mp4", "video/mp4"},
	model.KindDocument: {".pdf", "application/pdf"},
	model.KindSticker:  {".webp", "image/webp"},
}

// Preferred extensions for types where the system mime table is ambiguous.
var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"audio/ogg":       ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"audio/aac":       ".aac",
	"video/mp4":       ".mp4",
	"video/3gpp":      ".3gp",
	"application/pdf": ".pdf",
}

// MediaMaterializer copies media from the gateway into blob storage. It never
// fails: every problem degrades to the URL the envelope already carried.
type MediaMaterializer struct {
	fetcher  MediaFetcher
	store    blob.Store
	maxBytes int64
	group    singleflight.Group
	log      *slog.Logger
}

func NewMediaMaterializer(fetcher MediaFetcher, store blob.Store, maxBytes int64, log *slog.Logger) *MediaMaterializer {
	return &MediaMaterializer{
		fetcher:  fetcher,
		store:    store,
		maxBytes: maxBytes,
		log:      componentLogger(log, "media"),
	}
}

// Materialize returns the media reference to store with the message.
func (m *MediaMaterializer) Materialize(ctx context.Context, inst model.Instance, env gateway.Envelope) string {
	fallback := env.Content.MediaURL
	if !env.Content.Kind.IsMedia() {
		return fallback
	}

	// Redeliveries racing on the same message share one download.
	v, err, _ := m.group.Do(inst.ID+"/"+env.Key.ID, func() (any, error) {
		return m.materialize(ctx, inst, env)
	})
	if err != nil {
		m.log.Warn("media materialization degraded",
			slog.String("message_id", env.Key.ID),
			slog.String("kind", string(env.Content.Kind)),
			slog.Bool("has_fallback", fallback != ""),
			slog.Any("err", err),
		)
		return fallback
	}
	return v.(string)
}

func (m *MediaMaterializer) materialize(ctx context.Context, inst model.Instance, env gateway.Envelope) (string, error) {
	payload, err := m.fetcher.FetchMediaBase64(ctx, inst.Name, env.Key)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}

	data, inlineMime, err := decodeMedia(payload.Base64, m.maxBytes)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("gateway returned empty media")
	}

	contentType := firstNonEmpty(baseMime(payload.MimeType), inlineMime, baseMime(env.Content.MimeType))
	ext, contentType := pickExtension(env.Content.Kind, contentType, data)

	key := fmt.Sprintf("%s/%d_%s%s", inst.UserID, time.Now().UnixMilli(), safeName(env.Key.ID), ext)
	if err := m.store.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	return m.store.PublicURL(key), nil
}

// decodeMedia decodes standard base64, optionally wrapped in a data URL.
func decodeMedia(raw string, maxBytes int64) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	var inlineMime string
	if strings.HasPrefix(raw, "data:") {
		header, body, ok := strings.Cut(raw, ",")
		if !ok {
			return nil, "", fmt.Errorf("invalid data url")
		}
		inlineMime = baseMime(strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"))
		raw = body
	}

	enc := base64.StdEncoding
	if len(raw)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	data, err := blob.ReadAllWithLimit(base64.NewDecoder(enc, strings.NewReader(raw)), maxBytes)
	if err != nil {
		return nil, "", fmt.Errorf("decode media: %w", err)
	}
	return data, inlineMime, nil
}

// pickExtension resolves the file extension and upload content type from the
// reported mime type, then from the bytes, then from the message kind.
func pickExtension(kind model.Kind, contentType string, data []byte) (string, string) {
	if contentType != "" {
		if ext, ok := mimeExtensions[contentType]; ok {
			return ext, contentType
		}
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			return exts[0], contentType
		}
	}

	if detected := mimetype.Detect(data); detected.Extension() != "" {
		ct := contentType
		if ct == "" {
			ct = baseMime(detected.String())
		}
		return detected.Extension(), ct
	}

	def, ok := kindDefaults[kind]
	if !ok {
		return ".bin", firstNonEmpty(contentType, "application/octet-stream")
	}
	return def.ext, firstNonEmpty(contentType, def.mime)
}

func baseMime(v string) string {
	v, _, _ = strings.Cut(v, ";")
	return strings.ToLower(strings.TrimSpace(v))
}

func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
