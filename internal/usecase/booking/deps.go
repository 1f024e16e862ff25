package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/audit"
	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/metrics"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/notify"
	"github.com/TabarBaptiste/masseuse/internal/timezone"
)

// AuditRecorder is satisfied by *audit.Dispatcher.
type AuditRecorder interface {
	Dispatch(ev audit.Event)
}

// Notifier is satisfied by *notify.Dispatcher.
type Notifier interface {
	Notify(n notify.Notification)
}

// Deps are the collaborators shared by the lifecycle use cases. Holds,
// Audit, Notifier and Metrics may be nil.
type Deps struct {
	Repo     domain.Repository
	Holds    domain.HoldStore
	Clock    timezone.Clock
	Defaults domain.Policy
	Audit    AuditRecorder
	Notifier Notifier
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

func (d Deps) dispatch(ev audit.Event) {
	if d.Audit != nil {
		d.Audit.Dispatch(ev)
	}
}

func (d Deps) notify(kind notify.Kind, audience notify.Audience, b *models.Booking, msg string) {
	if d.Notifier == nil {
		return
	}
	d.Notifier.Notify(notify.Notification{
		Kind:      kind,
		Audience:  audience,
		BookingID: b.ID,
		UserID:    b.UserID,
		Date:      b.Date,
		StartTime: b.StartTime,
		Message:   msg,
	})
}

// loadPolicy resolves the site settings for one operation. A missing row
// falls back to the configured defaults.
func (d Deps) loadPolicy(ctx context.Context) (domain.Policy, error) {
	s, err := d.Repo.GetSiteSettings(ctx)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("load site settings: %w", err)
	}
	return domain.PolicyFrom(s, d.Defaults), nil
}

// releaseHold drops the checkout hold of a PENDING_PAYMENT row. Holds expire
// on their own, so a failure is only logged.
func (d Deps) releaseHold(ctx context.Context, log *zap.Logger, b *models.Booking) {
	if d.Holds == nil {
		return
	}
	h, err := domain.HoldFor(b)
	if err == nil {
		err = d.Holds.Release(ctx, h)
	}
	if err != nil {
		log.Warn("cannot release slot hold", zap.String("booking_id", b.ID), zap.Error(err))
	}
}
