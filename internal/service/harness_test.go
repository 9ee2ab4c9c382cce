package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/messaging-ingest/internal/client"
	"github.com/LeventeLantos/messaging-ingest/internal/gateway"
	"github.com/LeventeLantos/messaging-ingest/internal/identity"
	"github.com/LeventeLantos/messaging-ingest/internal/model"
	"github.com/LeventeLantos/messaging-ingest/internal/repo/memrepo"
	"github.com/LeventeLantos/messaging-ingest/internal/service"
)

var testInstance = model.Instance{
	ID:     "inst-1",
	UserID: "user-1",
	Name:   "sales",
	Phone:  "5511900000000",
	Status: model.Connected,
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	payload client.MediaPayload
	err     error
}

func (f *fakeFetcher) FetchMediaBase64(_ context.Context, _ string, _ gateway.MessageKey) (client.MediaPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return client.MediaPayload{}, f.err
	}
	return f.payload, nil
}

type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBlob) Put(_ context.Context, key string, r io.Reader, contentType string) error {
	if b.err != nil {
		return b.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func (b *memBlob) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (b *memBlob) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	return out
}

type agentCall struct {
	trigger client.AgentTrigger
	ctxErr  error
}

type fakeAgent struct {
	mu    sync.Mutex
	calls []agentCall
	err   error
}

func (a *fakeAgent) Trigger(ctx context.Context, t client.AgentTrigger) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, agentCall{trigger: t, ctxErr: ctx.Err()})
	return a.err
}

func (a *fakeAgent) snapshot() []agentCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]agentCall(nil), a.calls...)
}

type fakeCache struct {
	mu     sync.Mutex
	seen   map[string]string
	err    error
	marked int
}

func newFakeCache() *fakeCache {
	return &fakeCache{seen: map[string]string{}}
}

func (c *fakeCache) Seen(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.seen[id]
	return ok, nil
}

func (c *fakeCache) MarkSeen(_ context.Context, id, conversationID string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.marked++
	c.seen[id] = conversationID
	return nil
}

type harness struct {
	store    *memrepo.Store
	router   *service.EventRouter
	fetcher  *fakeFetcher
	blobs    *memBlob
	agent    *fakeAgent
	notifier *service.Notifier
	cache    *fakeCache
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := discardLogger()
	store := memrepo.New()
	store.AddInstance(testInstance)

	h := &harness{
		store:   store,
		fetcher: &fakeFetcher{err: errors.New("media unavailable")},
		blobs:   newMemBlob(),
		agent:   &fakeAgent{},
		cache:   newFakeCache(),
	}
	h.notifier = service.NewNotifier(h.agent, time.Second, log)

	ingestor := service.NewIngestor(
		identity.NewResolver("55"),
		service.NewContactReconciler(store.Contacts, "55", log),
		service.NewConversationManager(store.Conversations, 100),
		service.NewMediaMaterializer(h.fetcher, h.blobs, 1<<20, log),
		service.NewMessageWriter(store.Messages),
		h.cache,
		log,
	).Subscribe(
		service.NewEngagementDetector(store.Warming, "55", log),
		h.notifier,
	)
	h.router = service.NewEventRouter(store.Instances, ingestor, service.NewStatusMapper(store.Messages, log), log)

	t.Cleanup(h.notifier.Wait)
	return h
}

func (h *harness) route(t *testing.T, event, data string) (service.Outcome, error) {
	t.Helper()
	return h.router.Route(context.Background(), gateway.Payload{
		Event:    event,
		Instance: testInstance.Name,
		Data:     json.RawMessage(data),
	})
}

func (h *harness) upsert(t *testing.T, data string) service.BatchResult {
	t.Helper()
	out, err := h.route(t, "messages.upsert", data)
	require.NoError(t, err)
	require.NotNil(t, out.Batch)
	return *out.Batch
}

func textEnvelope(id, remoteJID, text string, fromMe bool) string {
	return fmt.Sprintf(`{
		"key": {"remoteJid": %q, "fromMe": %t, "id": %q},
		"pushName": "Maria",
		"messageTimestamp": 1767225600,
		"message": {"conversation": %q}
	}`, remoteJID, fromMe, id, text)
}

func payload(event, instance, data string) gateway.Payload {
	return gateway.Payload{Event: event, Instance: instance, Data: json.RawMessage(data)}
}
