package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LeventeLantos/messaging-ingest/internal/gateway"
	"github.com/LeventeLantos/messaging-ingest/internal/model"
	"github.com/LeventeLantos/messaging-ingest/internal/repo"
)

var ErrInstanceNotFound = errors.New("instance not found")

// Outcome summarizes what one webhook delivery did.
type Outcome struct {
	Event    gateway.EventType `json:"event"`
	Batch    *BatchResult      `json:"batch,omitempty"`
	Statuses *StatusResult     `json:"statuses,omitempty"`
}

// ConnectionStatus maps a gateway connection state onto the stored instance
// status. Unknown states report false.
func ConnectionStatus(state string) (model.ConnectionStatus, bool) {
	switch state {
	case "open":
		return model.Connected, true
	case "connecting":
		return model.Connecting, true
	case "close", "closed", "refused":
		return model.Disconnected, true
	}
	return "", false
}

// EventRouter dispatches a decoded webhook payload to its handler.
type EventRouter struct {
	instances repo.InstanceRepository
	ingestor  *Ingestor
	statuses  *StatusMapper
	log       *slog.Logger
}

func NewEventRouter(instances repo.InstanceRepository, ingestor *Ingestor, statuses *StatusMapper, log *slog.Logger) *EventRouter {
	return &EventRouter{
		instances: instances,
		ingestor:  ingestor,
		statuses:  statuses,
		log:       componentLogger(log, "router"),
	}
}

func (r *EventRouter) Route(ctx context.Context, p gateway.Payload) (Outcome, error) {
	event := gateway.NormalizeEvent(p.Event)
	out := Outcome{Event: event}
	if event == gateway.EventUnknown {
		r.log.Info("event ignored", slog.String("event", p.Event), slog.String("instance", p.Instance))
		return out, nil
	}

	inst, err := r.instances.GetByName(ctx, p.Instance)
	if errors.Is(err, repo.ErrNotFound) {
		r.log.Warn("unknown instance", slog.String("instance", p.Instance), slog.String("event", p.Event))
		return out, ErrInstanceNotFound
	}
	if err != nil {
		return out, fmt.Errorf("load instance: %w", err)
	}

	switch event {
	case gateway.EventMessageUpsert:
		envs, err := gateway.ParseUpsert(p.Data)
		if err != nil {
			return out, err
		}
		res := r.ingestor.ProcessBatch(ctx, inst, envs)
		out.Batch = &res
		r.log.Info("upsert processed",
			slog.String("instance", inst.Name),
			slog.Int("written", res.Written),
			slog.Int("duplicates", res.Duplicates),
			slog.Int("skipped", res.Skipped),
			slog.Int("failed", res.Failed),
		)

	case gateway.EventMessageUpdate:
		updates, err := gateway.ParseStatusUpdates(p.Data)
		if err != nil {
			return out, err
		}
		res, err := r.statuses.Apply(ctx, updates)
		out.Statuses = &res
		if err != nil {
			return out, fmt.Errorf("apply status updates: %w", err)
		}

	case gateway.EventConnectionUpdate:
		state, err := gateway.ParseConnectionState(p.Data)
		if err != nil {
			return out, err
		}
		status, ok := ConnectionStatus(state)
		if !ok {
			r.log.Info("connection state ignored", slog.String("instance", inst.Name), slog.String("state", state))
			return out, nil
		}
		if err := r.instances.UpdateStatus(ctx, inst.ID, status); err != nil {
			return out, fmt.Errorf("update instance status: %w", err)
		}
		r.log.Info("instance status updated", slog.String("instance", inst.Name), slog.String("status", string(status)))
	}

	return out, nil
}
