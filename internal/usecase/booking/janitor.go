package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/audit"
	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/models"
)

const ReasonCheckoutAbandoned = "checkout_abandoned"

var errNoLongerStale = errors.New("booking is no longer awaiting payment")

// CleanupPendingPayment cancels PENDING_PAYMENT bookings whose deposit was
// never paid. It runs out of band, never from a webhook.
type CleanupPendingPayment struct {
	Deps
	maxAge time.Duration
	log    *zap.Logger
}

func NewCleanupPendingPayment(deps Deps, maxAge time.Duration) *CleanupPendingPayment {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &CleanupPendingPayment{
		Deps:   deps,
		maxAge: maxAge,
		log:    deps.Log.With(zap.String("usecase", "cleanup_pending_payment")),
	}
}

// Execute returns how many bookings were cancelled. A failure on one row is
// logged and does not stop the run.
func (uc *CleanupPendingPayment) Execute(ctx context.Context) (int, error) {
	now := uc.Clock.Now()

	stale, err := uc.Repo.ListStalePendingPayment(ctx, now.Add(-uc.maxAge))
	if err != nil {
		return 0, err
	}

	cancelled, skipped := 0, 0
	for i := range stale {
		id := stale[i].ID

		// The row is re-read under lock: a payment may have landed since
		// the scan.
		b, err := uc.Repo.UpdateBookingLocked(ctx, id, func(b *models.Booking) error {
			if b.IsDepositPaid || domain.StatusOf(b) != domain.StatusPendingPayment {
				return errNoLongerStale
			}
			return domain.Cancel(b, ReasonCheckoutAbandoned, now)
		})
		switch {
		case errors.Is(err, errNoLongerStale) || (err == nil && b == nil):
			skipped++
			uc.log.Info("stale booking changed since scan", zap.String("booking_id", id))
			continue
		case err != nil:
			uc.log.Error("cannot cancel stale booking", zap.String("booking_id", id), zap.Error(err))
			continue
		}

		cancelled++
		uc.releaseHold(ctx, uc.log, b)
		uc.dispatch(audit.Event{
			ActorID:  audit.ActorSystem,
			Action:   audit.ActionCheckoutAbandoned,
			Entity:   audit.EntityBooking,
			EntityID: b.ID,
		})
	}

	uc.log.Info("pending payment cleanup done",
		zap.Int("found", len(stale)),
		zap.Int("cancelled", cancelled),
		zap.Int("skipped", skipped),
	)
	return cancelled, nil
}
