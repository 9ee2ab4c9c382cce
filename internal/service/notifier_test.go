package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_TriggersForInboundWrites(t *testing.T) {
	h := newHarness(t)

	h.upsert(t, textEnvelope("N1", "5511987654321@s.whatsapp.net", "preciso de ajuda", false))
	h.notifier.Wait()

	calls := h.agent.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "preciso de ajuda", calls[0].trigger.Message)
	assert.Equal(t, testInstance.Name, calls[0].trigger.InstanceName)
	assert.Equal(t, h.store.ConversationList()[0].ID, calls[0].trigger.ConversationID)
}

func TestNotifier_SkipsOutboundAndDuplicates(t *testing.T) {
	h := newHarness(t)

	h.upsert(t, textEnvelope("O1", "5511987654321@s.whatsapp.net", "hello", true))
	h.upsert(t, textEnvelope("N1", "5511987654321@s.whatsapp.net", "oi", false))
	h.upsert(t, textEnvelope("N1", "5511987654321@s.whatsapp.net", "oi", false))
	h.notifier.Wait()

	assert.Len(t, h.agent.snapshot(), 1)
}

func TestNotifier_FailureDoesNotAffectWrite(t *testing.T) {
	h := newHarness(t)
	h.agent.err = errors.New("agent down")

	res := h.upsert(t, textEnvelope("N1", "5511987654321@s.whatsapp.net", "oi", false))
	h.notifier.Wait()

	assert.Equal(t, 1, res.Written)
	assert.Len(t, h.store.MessageList(), 1)
	assert.Len(t, h.agent.snapshot(), 1)
}

func TestNotifier_OutlivesRequestContext(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := h.router.Route(ctx, payload("messages.upsert", testInstance.Name,
		textEnvelope("N1", "5511987654321@s.whatsapp.net", "oi", false)))
	cancel()
	require.NoError(t, err)
	h.notifier.Wait()

	calls := h.agent.snapshot()
	require.Len(t, calls, 1)
	assert.NoError(t, calls[0].ctxErr)
}
