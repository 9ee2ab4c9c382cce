package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/LeventeLantos/messaging-ingest/internal/client"
	"github.com/LeventeLantos/messaging-ingest/internal/model"
)

type AgentTrigger interface {
	Trigger(ctx context.Context, t client.AgentTrigger) error
}

// Notifier hands inbound messages to the auto-reply agent without blocking the
// webhook. Each call is detached from the request and bounded by timeout.
type Notifier struct {
	agent   AgentTrigger
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

func NewNotifier(agent AgentTrigger, timeout time.Duration, log *slog.Logger) *Notifier {
	return &Notifier{
		agent:   agent,
		timeout: timeout,
		log:     componentLogger(log, "notifier"),
	}
}

func (n *Notifier) Name() string { return "notifier" }

func (n *Notifier) Consume(ctx context.Context, ev MessagePersisted) error {
	if ev.Message.Direction != model.Inbound {
		return nil
	}

	trigger := client.AgentTrigger{
		ConversationID: ev.ConversationID,
		Message:        ev.Message.Content,
		InstanceName:   ev.Instance.Name,
	}
	detached := context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.log.Error("agent trigger panic", slog.Any("panic", r))
			}
		}()

		tctx, cancel := context.WithTimeout(detached, n.timeout)
		defer cancel()

		if err := n.agent.Trigger(tctx, trigger); err != nil {
			n.log.Warn("agent trigger failed",
				slog.String("conversation_id", trigger.ConversationID),
				slog.Any("err", err),
			)
			return
		}
		n.log.Debug("agent triggered", slog.String("conversation_id", trigger.ConversationID))
	}()
	return nil
}

// Wait blocks until every in-flight trigger has returned.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
