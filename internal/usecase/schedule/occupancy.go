package schedule

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
)

type BlockerKind string

const (
	BlockerBlockedSlot BlockerKind = "blocked_slot"
	BlockerBooking     BlockerKind = "booking"
	BlockerHold        BlockerKind = "hold"
)

// Blocker is one entity that removes an interval from availability.
type Blocker struct {
	Kind     BlockerKind
	Ref      string
	Interval domain.Interval
	Reason   string
}

func (b Blocker) Describe() string {
	switch b.Kind {
	case BlockerBlockedSlot:
		if b.Reason != "" {
			return fmt.Sprintf("blocked period %s (%s)", b.Interval, b.Reason)
		}
		return fmt.Sprintf("blocked period %s", b.Interval)
	case BlockerHold:
		return fmt.Sprintf("slot %s is held by an open checkout", b.Interval)
	default:
		return fmt.Sprintf("existing booking %s", b.Interval)
	}
}

// Occupancy is everything occupying one date.
type Occupancy struct {
	Date     string
	Blockers []Blocker
}

// Conflict returns the first blocker overlapping iv. Holds and bookings
// whose ref equals own are ignored so a checkout never collides with itself
// or with the row it pays for.
func (o Occupancy) Conflict(iv domain.Interval, own string) (Blocker, bool) {
	for _, b := range o.Blockers {
		if own != "" && b.Ref == own && (b.Kind == BlockerHold || b.Kind == BlockerBooking) {
			continue
		}
		if b.Interval.Overlaps(iv) {
			return b, true
		}
	}
	return Blocker{}, false
}

// OccupancyCollector gathers blocked periods, occupying bookings and, when a
// hold store is configured, open checkout holds for a date.
type OccupancyCollector struct {
	repo                   domain.Repository
	holds                  domain.HoldStore
	pendingPaymentOccupies bool
	log                    *zap.Logger
}

func NewOccupancyCollector(
	repo domain.Repository,
	holds domain.HoldStore,
	pendingPaymentOccupies bool,
	log *zap.Logger,
) *OccupancyCollector {
	return &OccupancyCollector{
		repo:                   repo,
		holds:                  holds,
		pendingPaymentOccupies: pendingPaymentOccupies,
		log:                    log.With(zap.String("component", "occupancy")),
	}
}

// WithRepo returns a collector reading through repo, typically a locked
// transaction.
func (c *OccupancyCollector) WithRepo(repo domain.Repository) *OccupancyCollector {
	cp := *c
	cp.repo = repo
	return &cp
}

func (c *OccupancyCollector) Collect(ctx context.Context, date string) (Occupancy, error) {
	occ := Occupancy{Date: date}

	blocked, err := c.repo.ListBlockedSlots(ctx, date)
	if err != nil {
		return occ, fmt.Errorf("list blocked slots: %w", err)
	}
	for _, b := range blocked {
		iv, err := domain.ParseInterval(b.StartTime, b.EndTime)
		if err != nil {
			c.log.Warn("skipping malformed blocked slot", zap.Uint("id", b.ID), zap.Error(err))
			continue
		}
		occ.Blockers = append(occ.Blockers, Blocker{
			Kind:     BlockerBlockedSlot,
			Ref:      fmt.Sprint(b.ID),
			Interval: iv,
			Reason:   b.Reason,
		})
	}

	bookings, err := c.repo.ListBookingsByDate(ctx, date, domain.OccupyingStatuses(c.pendingPaymentOccupies))
	if err != nil {
		return occ, fmt.Errorf("list bookings: %w", err)
	}
	for i := range bookings {
		iv, err := domain.IntervalOf(&bookings[i])
		if err != nil {
			c.log.Warn("skipping malformed booking", zap.String("id", bookings[i].ID), zap.Error(err))
			continue
		}
		occ.Blockers = append(occ.Blockers, Blocker{
			Kind:     BlockerBooking,
			Ref:      bookings[i].ID,
			Interval: iv,
		})
	}

	if c.holds != nil {
		holds, err := c.holds.Active(ctx, date)
		if err != nil {
			return occ, fmt.Errorf("list slot holds: %w", err)
		}
		for _, h := range holds {
			occ.Blockers = append(occ.Blockers, Blocker{
				Kind:     BlockerHold,
				Ref:      h.Token,
				Interval: h.Interval,
			})
		}
	}

	return occ, nil
}

func sortIntervals(in []domain.Interval) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].Start != in[j].Start {
			return in[i].Start < in[j].Start
		}
		return in[i].End < in[j].End
	})
}
