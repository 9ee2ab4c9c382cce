package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/LeventeLantos/messaging-ingest/internal/gateway"
	"github.com/LeventeLantos/messaging-ingest/internal/scheduler"
	"github.com/LeventeLantos/messaging-ingest/internal/service"
)

// Webhook bodies can carry inline media, so the cap is generous.
const maxWebhookBody = 64 << 20

type EventRouter interface {
	Route(ctx context.Context, p gateway.Payload) (service.Outcome, error)
}

type Handler struct {
	router  EventRouter
	sched   *scheduler.Scheduler
	timeout time.Duration
	log     *slog.Logger
}

func NewHandler(router EventRouter, s *scheduler.Scheduler, timeout time.Duration, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		router:  router,
		sched:   s,
		timeout: timeout,
		log:     log.With(slog.String("component", "api")),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Webhook acknowledges one gateway delivery. The event may also be given as
// the last path segment; the body's event wins when both are present.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("webhook panic recovered", slog.Any("panic", rec))
			writeJSON(w, http.StatusInternalServerError, errorBody(fmt.Sprint(rec)))
		}
	}()

	p, err := gateway.DecodePayload(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.log.Info("webhook rejected", slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if p.Event == "" {
		p.Event = r.PathValue("event")
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	out, err := h.router.Route(ctx, p)
	switch {
	case err == nil:
		body := map[string]any{"success": true}
		if out.Batch != nil {
			body["batch"] = out.Batch
		}
		if out.Statuses != nil {
			body["statuses"] = out.Statuses
		}
		writeJSON(w, http.StatusOK, body)
	case errors.Is(err, service.ErrInstanceNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("Instance not found"))
	case errors.Is(err, gateway.ErrMalformed):
		h.log.Info("webhook data rejected", slog.String("event", p.Event), slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		h.log.Error("webhook failed", slog.String("event", p.Event), slog.String("instance", p.Instance), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	}
}

// Preflight answers CORS preflight requests with an empty body.
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.schedulerState())
}

// SchedulerRun executes the job immediately, whether or not the schedule runs.
func (h *Handler) SchedulerRun(w http.ResponseWriter, r *http.Request) {
	h.sched.RunNow(r.Context())
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) schedulerState() map[string]any {
	state := map[string]any{"running": h.sched.IsRunning()}
	if next := h.sched.NextRun(); !next.IsZero() {
		state["next_run"] = next.UTC().Format(time.RFC3339)
	}
	return state
}

func errorBody(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
