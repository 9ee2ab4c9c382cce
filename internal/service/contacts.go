package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/messaging-ingest/internal/identity"
	"github.com/LeventeLantos/messaging-ingest/internal/model"
	"github.com/LeventeLantos/messaging-ingest/internal/repo"
)

// ContactReconciler finds or creates the contact behind an identity and heals
// stale phone and label data on the way.
type ContactReconciler struct {
	contacts    repo.ContactRepository
	countryCode string
	log         *slog.Logger
}

func NewContactReconciler(contacts repo.ContactRepository, countryCode string, log *slog.Logger) *ContactReconciler {
	return &ContactReconciler{
		contacts:    contacts,
		countryCode: countryCode,
		log:         componentLogger(log, "contacts"),
	}
}

func (r *ContactReconciler) Reconcile(ctx context.Context, userID string, id identity.Identity, pushName string, dir model.Direction) (model.Contact, error) {
	c, err := r.lookup(ctx, userID, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.Contact{}, err
	}

	now := time.Now().UTC()
	c = model.Contact{
		ID:        uuid.NewString(),
		UserID:    userID,
		Phone:     id.Phone,
		Label:     id.Label,
		Name:      displayName(id, pushName, dir),
		Status:    model.ContactActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = r.contacts.Create(ctx, c)
	if errors.Is(err, repo.ErrConflict) {
		// Lost a creation race with a concurrent delivery.
		return r.lookup(ctx, userID, id)
	}
	if err != nil {
		return model.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	r.log.Info("contact created", slog.String("contact_id", c.ID), slog.String("phone", c.Phone), slog.String("label", c.Label))
	return c, nil
}

func (r *ContactReconciler) lookup(ctx context.Context, userID string, id identity.Identity) (model.Contact, error) {
	if id.Phone != "" {
		c, err := r.contacts.FindByPhones(ctx, userID, phoneVariants(id.Phone, r.countryCode)...)
		switch {
		case err == nil:
			if c.Phone != id.Phone {
				c = r.heal(ctx, c, "phone", id.Phone, r.contacts.UpdatePhone)
			}
			if c.Label == "" && id.Label != "" {
				c = r.heal(ctx, c, "label", id.Label, r.contacts.AttachLabel)
			}
			return c, nil
		case !errors.Is(err, repo.ErrNotFound):
			return model.Contact{}, fmt.Errorf("find contact by phone: %w", err)
		}
	}

	if id.Label != "" {
		c, err := r.contacts.FindByLabel(ctx, userID, id.Label)
		switch {
		case err == nil:
			if id.Phone != "" && c.Phone != id.Phone {
				c = r.heal(ctx, c, "phone", id.Phone, r.contacts.UpdatePhone)
			}
			return c, nil
		case !errors.Is(err, repo.ErrNotFound):
			return model.Contact{}, fmt.Errorf("find contact by label: %w", err)
		}
	}

	return model.Contact{}, repo.ErrNotFound
}

// heal rewrites one stored field. A failed rewrite keeps the stale value; the
// message is still attributed to the contact found.
func (r *ContactReconciler) heal(ctx context.Context, c model.Contact, field, value string, update func(context.Context, string, string) error) model.Contact {
	if err := update(ctx, c.ID, value); err != nil {
		r.log.Warn("contact update failed",
			slog.String("contact_id", c.ID),
			slog.String("field", field),
			slog.Any("err", err),
		)
		return c
	}
	r.log.Info("contact updated", slog.String("contact_id", c.ID), slog.String("field", field))
	switch field {
	case "phone":
		c.Phone = value
	case "label":
		c.Label = value
	}
	return c
}

// displayName trusts the push name only on inbound traffic; on outgoing echoes
// it names our own account.
func displayName(id identity.Identity, pushName string, dir model.Direction) string {
	if dir == model.Inbound && pushName != "" {
		return pushName
	}
	if id.Phone != "" {
		return id.Phone
	}
	return id.Label
}

// phoneVariants lists phone and, when it carries one, the same number without
// countryCode, for matching rows stored before normalization.
func phoneVariants(phone, countryCode string) []string {
	stripped := identity.StripCountryCode(phone, countryCode)
	if stripped == phone || stripped == "" {
		return []string{phone}
	}
	return []string{phone, stripped}
}
