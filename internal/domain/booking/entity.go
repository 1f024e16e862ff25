package booking

import (
	"time"

	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/models"
)

func StatusOf(b *models.Booking) Status {
	return Status(b.Status)
}

// Transition moves b to the next status if the table allows it.
func Transition(b *models.Booking, to Status) error {
	from := StatusOf(b)
	if !CanTransition(from, to) {
		return httperr.PolicyViolation("invalid_transition", "cannot move booking from %s to %s", from, to)
	}
	b.Status = string(to)
	return nil
}

func Cancel(b *models.Booking, reason string, now time.Time) error {
	if err := Transition(b, StatusCancelled); err != nil {
		return httperr.PolicyViolation("invalid_state", "booking is already %s", b.Status)
	}
	b.CancelReason = reason
	b.CancelledAt = &now
	return nil
}

// MarkDepositPaid records the provider references. It does not touch Status.
func MarkDepositPaid(b *models.Booking, sessionID, intentID string, now time.Time) {
	b.IsDepositPaid = true
	b.DepositPaidAt = &now
	if sessionID != "" {
		b.ExternalPaymentSessionID = &sessionID
	}
	if intentID != "" {
		b.ExternalPaymentIntentID = &intentID
	}
}

// IntervalOf returns the stored [start, end) of b.
func IntervalOf(b *models.Booking) (Interval, error) {
	return ParseInterval(b.StartTime, b.EndTime)
}

// StartsAt returns the booking start instant in loc.
func StartsAt(b *models.Booking, loc *time.Location) (time.Time, error) {
	date, err := ParseDate(b.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	start, err := ParseClock(b.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return At(date, start, loc), nil
}
