package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/messaging-ingest/internal/model"
	"github.com/LeventeLantos/messaging-ingest/internal/repo"
)

const activityPreviewMax = 100

// EngagementDetector counts inbound traffic from warming partners against the
// receiving instance's active warming schedule.
type EngagementDetector struct {
	warming     repo.WarmingRepository
	countryCode string
	log         *slog.Logger
}

func NewEngagementDetector(warming repo.WarmingRepository, countryCode string, log *slog.Logger) *EngagementDetector {
	return &EngagementDetector{
		warming:     warming,
		countryCode: countryCode,
		log:         componentLogger(log, "warming"),
	}
}

func (d *EngagementDetector) Name() string { return "warming" }

func (d *EngagementDetector) Consume(ctx context.Context, ev MessagePersisted) error {
	if ev.Message.Direction != model.Inbound || ev.Contact.Phone == "" {
		return nil
	}

	schedule, err := d.warming.ActiveScheduleForInstance(ctx, ev.Instance.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find warming schedule: %w", err)
	}

	phones := phoneVariants(ev.Contact.Phone, d.countryCode)
	warm, err := d.isWarmingTraffic(ctx, ev.Instance, phones)
	if err != nil {
		return err
	}
	if !warm {
		return nil
	}

	now := time.Now().UTC()
	if err := d.warming.IncrementReceived(ctx, schedule.ID, now); err != nil {
		return fmt.Errorf("increment warming counters: %w", err)
	}
	err = d.warming.InsertActivity(ctx, model.WarmingActivity{
		ID:           uuid.NewString(),
		ScheduleID:   schedule.ID,
		Type:         model.ActivityMessageReceived,
		ContactPhone: ev.Contact.Phone,
		Content:      truncateRunes(ev.Message.Content, activityPreviewMax),
		Success:      true,
		CreatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("insert warming activity: %w", err)
	}

	d.log.Info("warming message received",
		slog.String("schedule_id", schedule.ID),
		slog.String("phone", ev.Contact.Phone),
	)
	return nil
}

// isWarmingTraffic checks the owner's warming contacts, then the activity logs
// of paired instances for a message they sent to one of phones.
func (d *EngagementDetector) isWarmingTraffic(ctx context.Context, inst model.Instance, phones []string) (bool, error) {
	ok, err := d.warming.IsWarmingContact(ctx, inst.UserID, phones...)
	if err != nil {
		return false, fmt.Errorf("check warming contacts: %w", err)
	}
	if ok {
		return true, nil
	}

	pairs, err := d.warming.ActivePairs(ctx, inst.ID)
	if err != nil {
		return false, fmt.Errorf("list warming pairs: %w", err)
	}
	for _, p := range pairs {
		peer := p.Peer(inst.ID)
		if peer == "" {
			continue
		}
		peerSchedule, err := d.warming.ActiveScheduleForInstance(ctx, peer)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("find peer schedule: %w", err)
		}
		sent, err := d.warming.HasSentActivity(ctx, peerSchedule.ID, phones...)
		if err != nil {
			return false, fmt.Errorf("check peer activity: %w", err)
		}
		if sent {
			return true, nil
		}
	}
	return false, nil
}
