package booking

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/audit"
	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/notify"
)

const MaxNotesLength = 500

type UpdateInput struct {
	Caller    domain.Caller
	BookingID string
	Patch     domain.Patch
}

type UpdateBooking struct {
	Deps
	log *zap.Logger
}

func NewUpdateBooking(deps Deps) *UpdateBooking {
	return &UpdateBooking{
		Deps: deps,
		log:  deps.Log.With(zap.String("usecase", "update_booking")),
	}
}

func (uc *UpdateBooking) Execute(ctx context.Context, in UpdateInput) (*models.Booking, error) {
	if in.Patch.Empty() {
		return nil, httperr.Invalid("empty_patch", "nothing to update")
	}

	if in.Patch.Notes != nil {
		if n := utf8.RuneCountInString(*in.Patch.Notes); n > MaxNotesLength {
			return nil, httperr.Invalid("notes_too_long", "notes are limited to %d characters, got %d", MaxNotesLength, n)
		}
	}

	var prev domain.Status
	b, err := uc.Repo.UpdateBookingLocked(ctx, in.BookingID, func(b *models.Booking) error {
		if err := domain.CanUpdate(in.Caller, b, in.Patch); err != nil {
			return err
		}

		prev = domain.StatusOf(b)
		if !in.Caller.Privileged() && prev.Terminal() {
			return httperr.PolicyViolation("booking_closed", "booking is %s and can no longer be edited", prev)
		}

		// --------------------------------------------------
		// Status
		// --------------------------------------------------
		if in.Patch.Status != nil && *in.Patch.Status != prev {
			if err := uc.applyStatus(b, *in.Patch.Status); err != nil {
				return err
			}
		}

		// --------------------------------------------------
		// Notes
		// --------------------------------------------------
		if in.Patch.Notes != nil {
			b.Notes = *in.Patch.Notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, httperr.NotFoundErr("booking_not_found", "booking %s does not exist", in.BookingID)
	}

	next := domain.StatusOf(b)
	uc.log.Info("booking updated",
		zap.String("booking_id", b.ID),
		zap.String("caller", in.Caller.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	uc.dispatch(audit.Event{
		ActorID:  in.Caller.ID,
		Action:   audit.ActionBookingUpdated,
		Entity:   audit.EntityBooking,
		EntityID: b.ID,
		Metadata: map[string]string{"from": string(prev), "to": string(next)},
	})
	if next == domain.StatusConfirmed && prev != domain.StatusConfirmed {
		uc.notify(notify.KindBookingConfirmed, notify.AudienceClient, b, "your booking is confirmed")
	}

	return b, nil
}

func (uc *UpdateBooking) applyStatus(b *models.Booking, to domain.Status) error {
	if !to.Valid() {
		return httperr.Invalid("invalid_status", "unknown status %q", to)
	}
	if to == domain.StatusCancelled {
		return httperr.PolicyViolation("use_cancel", "bookings are cancelled through the cancel operation")
	}

	if to == domain.StatusCompleted || to == domain.StatusNoShow {
		loc := uc.Clock.Location()
		start, err := domain.StartsAt(b, loc)
		if err != nil {
			return err
		}
		if now := uc.Clock.Now().In(loc); now.Before(start) {
			return httperr.PolicyViolation(
				"booking_not_started",
				"%s can only be set once the booking has started, %s is still %s away",
				to, b.StartTime, start.Sub(now).Round(time.Minute),
			)
		}
	}

	return domain.Transition(b, to)
}
