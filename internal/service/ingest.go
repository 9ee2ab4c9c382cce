package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/LeventeLantos/messaging-ingest/internal/cache"
	"github.com/LeventeLantos/messaging-ingest/internal/gateway"
	"github.com/LeventeLantos/messaging-ingest/internal/identity"
	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

type BatchResult struct {
	Written    int `json:"written"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

type outcome int

const (
	outcomeWritten outcome = iota
	outcomeDuplicate
	outcomeSkipped
	outcomeFailed
)

// Ingestor turns upsert envelopes into contacts, conversations and messages.
type Ingestor struct {
	resolver      *identity.Resolver
	contacts      *ContactReconciler
	conversations *ConversationManager
	media         *MediaMaterializer
	writer        *MessageWriter
	cache         cache.MessageCache
	consumers     []PersistedConsumer
	log           *slog.Logger
}

// NewIngestor wires the pipeline. media may be nil, in which case messages
// keep the gateway's direct media URL. A nil cache disables the redelivery
// short-circuit.
func NewIngestor(
	resolver *identity.Resolver,
	contacts *ContactReconciler,
	conversations *ConversationManager,
	media *MediaMaterializer,
	writer *MessageWriter,
	c cache.MessageCache,
	log *slog.Logger,
) *Ingestor {
	if c == nil {
		c = cache.NopCache{}
	}
	return &Ingestor{
		resolver:      resolver,
		contacts:      contacts,
		conversations: conversations,
		media:         media,
		writer:        writer,
		cache:         c,
		log:           componentLogger(log, "ingest"),
	}
}

// Subscribe registers consumers of MessagePersisted, invoked in order.
func (in *Ingestor) Subscribe(consumers ...PersistedConsumer) *Ingestor {
	in.consumers = append(in.consumers, consumers...)
	return in
}

// ProcessBatch handles envelopes one after another. A failure only affects
// the envelope it happened on.
func (in *Ingestor) ProcessBatch(ctx context.Context, inst model.Instance, envs []gateway.Envelope) BatchResult {
	var res BatchResult
	for _, env := range envs {
		switch in.process(ctx, inst, env) {
		case outcomeWritten:
			res.Written++
		case outcomeDuplicate:
			res.Duplicates++
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Failed++
		}
	}
	return res
}

func (in *Ingestor) process(ctx context.Context, inst model.Instance, env gateway.Envelope) outcome {
	log := in.log.With(slog.String("instance", inst.Name), slog.String("message_id", env.Key.ID))

	if env.Err != nil {
		log.Info("message dropped", slog.String("reason", "malformed envelope"), slog.Any("err", env.Err))
		return outcomeSkipped
	}
	if env.Key.ID == "" {
		log.Info("message dropped", slog.String("reason", "missing message id"))
		return outcomeSkipped
	}
	if identity.IsGroupOrBroadcast(env.Key.RemoteJID) {
		log.Info("message dropped", slog.String("reason", "group or broadcast"))
		return outcomeSkipped
	}
	id, err := in.resolver.Resolve(env.Key.RemoteJID, env.Key.AltJID())
	if err != nil {
		log.Info("message dropped", slog.String("reason", "unaddressable"), slog.String("remote_jid", env.Key.RemoteJID))
		return outcomeSkipped
	}
	if env.Content.Empty() {
		log.Info("message dropped", slog.String("reason", "no content"))
		return outcomeSkipped
	}

	if dup, err := in.seen(ctx, env.Key.ID); err != nil {
		log.Error("message check failed", slog.Any("err", err))
		return outcomeFailed
	} else if dup {
		log.Debug("redelivery ignored")
		return outcomeDuplicate
	}

	mediaURL := env.Content.MediaURL
	if in.media != nil && env.Content.Kind.IsMedia() {
		mediaURL = in.media.Materialize(ctx, inst, env)
	}

	text := strings.TrimSpace(norm.NFC.String(env.Content.Text))
	if text == "" && mediaURL == "" {
		log.Info("message dropped", slog.String("reason", "no content or media"))
		return outcomeSkipped
	}

	dir := env.Direction()
	contact, err := in.contacts.Reconcile(ctx, inst.UserID, id, env.PushName, dir)
	if err != nil {
		log.Error("contact reconciliation failed", slog.Any("err", err))
		return outcomeFailed
	}

	preview := in.conversations.Preview(env.Content.Kind, text, env.Content.FileName)
	now := time.Now().UTC()
	convID, err := in.conversations.Record(ctx, inst.UserID, contact.ID, inst.ID, dir, preview, now)
	if err != nil {
		log.Error("conversation update failed", slog.String("contact_id", contact.ID), slog.Any("err", err))
		return outcomeFailed
	}

	content := text
	if content == "" {
		content = strings.TrimSpace(env.Content.FileName)
	}
	if content == "" {
		content = preview
	}
	msg, created, err := in.writer.Write(ctx, NewMessage{
		ConversationID:    convID,
		Direction:         dir,
		Kind:              env.Content.Kind,
		Content:           content,
		MediaURL:          mediaURL,
		ExternalMessageID: env.Key.ID,
		SentAt:            env.Timestamp,
	})
	if err != nil {
		log.Error("message write failed", slog.String("conversation_id", convID), slog.Any("err", err))
		return outcomeFailed
	}
	if !created {
		return outcomeDuplicate
	}

	if err := in.cache.MarkSeen(ctx, msg.ExternalMessageID, convID, now); err != nil {
		log.Warn("delivery cache update failed", slog.Any("err", err))
	}

	log.Info("message stored",
		slog.String("conversation_id", convID),
		slog.String("direction", string(dir)),
		slog.String("kind", string(msg.Kind)),
	)

	in.emit(ctx, MessagePersisted{
		Instance:       inst,
		Contact:        contact,
		ConversationID: convID,
		Message:        msg,
	})
	return outcomeWritten
}

// seen consults the delivery cache, then the message table. A cache error is
// not fatal.
func (in *Ingestor) seen(ctx context.Context, externalID string) (bool, error) {
	hit, err := in.cache.Seen(ctx, externalID)
	if err != nil && !errors.Is(err, context.Canceled) {
		in.log.Warn("delivery cache lookup failed", slog.Any("err", err))
	}
	if hit {
		return true, nil
	}
	return in.writer.Exists(ctx, externalID)
}

func (in *Ingestor) emit(ctx context.Context, ev MessagePersisted) {
	for _, c := range in.consumers {
		if err := c.Consume(ctx, ev); err != nil {
			in.log.Warn("message consumer failed",
				slog.String("consumer", c.Name()),
				slog.String("message_id", ev.Message.ExternalMessageID),
				slog.Any("err", err),
			)
		}
	}
}
