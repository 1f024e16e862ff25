package booking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/models"
)

// Policy is the site configuration the core works with. It is resolved once
// per operation and passed explicitly; a missing settings row falls back to
// the configured defaults.
type Policy struct {
	AdvanceMinDays            int
	AdvanceMaxDays            int // 0 means no upper bound
	CancellationDeadlineHours int
	DepositAmount             decimal.Decimal
}

// PermissivePolicy never rejects on timing and asks for no deposit.
func PermissivePolicy() Policy {
	return Policy{AdvanceMaxDays: 0, DepositAmount: decimal.Zero}
}

func PolicyFrom(s *models.SiteSettings, defaults Policy) Policy {
	if s == nil {
		return defaults
	}
	return Policy{
		AdvanceMinDays:            s.BookingAdvanceMinDays,
		AdvanceMaxDays:            s.BookingAdvanceMaxDays,
		CancellationDeadlineHours: s.CancellationDeadlineHours,
		DepositAmount:             s.DepositAmount,
	}
}

// CheckAdvance validates the booking date against the advance-notice window.
// today and date must both be expressed in the salon timezone.
func (p Policy) CheckAdvance(today, date time.Time) error {
	days := DaysBetween(today, date)

	if days < 0 {
		return httperr.PolicyViolation("date_in_past", "date %s is in the past", date.Format(DateLayout))
	}
	if days < p.AdvanceMinDays {
		return httperr.PolicyViolation(
			"advance_too_short",
			"bookings must be made at least %d day(s) in advance, %s is %d day(s) away",
			p.AdvanceMinDays, date.Format(DateLayout), days,
		)
	}
	if p.AdvanceMaxDays > 0 && days > p.AdvanceMaxDays {
		return httperr.PolicyViolation(
			"advance_too_long",
			"bookings can be made at most %d day(s) in advance, %s is %d day(s) away",
			p.AdvanceMaxDays, date.Format(DateLayout), days,
		)
	}
	return nil
}

// CheckCancellationDeadline applies to non-privileged callers only.
func (p Policy) CheckCancellationDeadline(start, now time.Time) error {
	hours := start.Sub(now).Hours()
	if hours < float64(p.CancellationDeadlineHours) || hours < 0 {
		return httperr.PolicyViolation(
			"cancellation_deadline",
			"cancellation requires %dh notice, booking starts in %.1fh",
			p.CancellationDeadlineHours, hours,
		)
	}
	return nil
}

func (p Policy) RequiresDeposit() bool {
	return p.DepositAmount.IsPositive()
}
