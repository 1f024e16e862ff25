package booking

import (
	"context"

	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/audit"
	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/notify"
)

type CancelInput struct {
	Caller    domain.Caller
	BookingID string
	Reason    string
}

type CancelBooking struct {
	Deps
	log *zap.Logger
}

func NewCancelBooking(deps Deps) *CancelBooking {
	return &CancelBooking{
		Deps: deps,
		log:  deps.Log.With(zap.String("usecase", "cancel_booking")),
	}
}

func (uc *CancelBooking) Execute(ctx context.Context, in CancelInput) (*models.Booking, error) {
	loc := uc.Clock.Location()
	now := uc.Clock.Now().In(loc)

	// Privileged callers bypass the notice period.
	var policy *domain.Policy
	if !in.Caller.Privileged() {
		p, err := uc.loadPolicy(ctx)
		if err != nil {
			return nil, err
		}
		policy = &p
	}

	// The checks run on the locked row so a concurrent payment or cancel
	// is seen before this one writes.
	var prev domain.Status
	b, err := uc.Repo.UpdateBookingLocked(ctx, in.BookingID, func(b *models.Booking) error {
		if err := domain.CanCancel(in.Caller, b); err != nil {
			return err
		}

		prev = domain.StatusOf(b)
		if !domain.CanTransition(prev, domain.StatusCancelled) {
			return httperr.PolicyViolation("invalid_state", "booking is already %s", b.Status)
		}

		if policy != nil {
			start, err := domain.StartsAt(b, loc)
			if err != nil {
				return err
			}
			if err := policy.CheckCancellationDeadline(start, now); err != nil {
				return err
			}
		}

		return domain.Cancel(b, in.Reason, now)
	})
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, httperr.NotFoundErr("booking_not_found", "booking %s does not exist", in.BookingID)
	}

	if prev == domain.StatusPendingPayment {
		uc.releaseHold(ctx, uc.log, b)
	}

	uc.Metrics.IncBookingCancelled(in.Caller.Role.String())
	uc.log.Info("booking cancelled",
		zap.String("booking_id", b.ID),
		zap.String("caller", in.Caller.ID),
		zap.String("role", in.Caller.Role.String()),
		zap.String("reason", in.Reason),
	)
	uc.dispatch(audit.Event{
		ActorID:  in.Caller.ID,
		Action:   audit.ActionBookingCancelled,
		Entity:   audit.EntityBooking,
		EntityID: b.ID,
		Metadata: map[string]string{"reason": in.Reason, "role": in.Caller.Role.String()},
	})
	uc.notify(notify.KindBookingCancelled, notify.AudienceAdmin, b, "booking cancelled: "+in.Reason)

	return b, nil
}
