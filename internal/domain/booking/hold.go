package booking

import (
	"context"
	"time"

	"github.com/TabarBaptiste/masseuse/internal/models"
)

// Hold is a short-lived claim on an interval while a checkout is open.
type Hold struct {
	Token    string
	Date     string
	Interval Interval
}

// HoldStore keeps slot holds outside the relational store.
type HoldStore interface {
	Acquire(ctx context.Context, h Hold, ttl time.Duration) error
	Release(ctx context.Context, h Hold) error
	Active(ctx context.Context, date string) ([]Hold, error)
}

// HoldFor is the hold guarding b while its deposit checkout is open. It is
// keyed on the booking id.
func HoldFor(b *models.Booking) (Hold, error) {
	iv, err := IntervalOf(b)
	if err != nil {
		return Hold{}, err
	}
	return Hold{Token: b.ID, Date: b.Date, Interval: iv}, nil
}
