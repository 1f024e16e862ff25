package schedule

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/domain/booking/bookingtest"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/timezone"
)

const monday = "2026-10-19"

func iv(t *testing.T, s, e string) domain.Interval {
	t.Helper()
	i, err := domain.ParseInterval(s, e)
	require.NoError(t, err)
	return i
}

func bookingBlocker(t *testing.T, s, e string) Blocker {
	return Blocker{Kind: BlockerBooking, Ref: "b", Interval: iv(t, s, e)}
}

func TestGenerateSlotsScenario(t *testing.T) {
	windows := []domain.Interval{iv(t, "09:00", "18:00")}
	occ := Occupancy{Blockers: []Blocker{bookingBlocker(t, "10:00", "10:45")}}

	t.Run("quarter hour step", func(t *testing.T) {
		slots := GenerateSlots(windows, occ, 45, 15)

		for _, excluded := range []string{"09:30", "09:45", "10:00", "10:15", "10:30"} {
			assert.NotContains(t, slots, excluded)
		}
		for _, included := range []string{"09:00", "09:15", "10:45", "11:00"} {
			assert.Contains(t, slots, included)
		}
		assert.Equal(t, "17:15", slots[len(slots)-1])
	})

	t.Run("default half hour step", func(t *testing.T) {
		slots := GenerateSlots(windows, occ, 45, DefaultGranularity)

		assert.Equal(t, "09:00", slots[0])
		assert.NotContains(t, slots, "09:30")
		assert.NotContains(t, slots, "10:00")
		assert.NotContains(t, slots, "10:30")
		assert.Contains(t, slots, "11:00")
		assert.Equal(t, "17:00", slots[len(slots)-1])
	})
}

func TestGenerateSlotsBackToBack(t *testing.T) {
	windows := []domain.Interval{iv(t, "09:00", "12:00")}
	occ := Occupancy{Blockers: []Blocker{bookingBlocker(t, "10:00", "11:00")}}

	slots := GenerateSlots(windows, occ, 60, 30)
	assert.Equal(t, []string{"09:00", "11:00"}, slots)
}

func TestGenerateSlotsSplitShiftsAndBlocks(t *testing.T) {
	windows := []domain.Interval{iv(t, "14:00", "16:00"), iv(t, "09:00", "11:00")}
	occ := Occupancy{Blockers: []Blocker{
		{Kind: BlockerBlockedSlot, Interval: iv(t, "14:30", "15:00")},
	}}

	slots := GenerateSlots(windows, occ, 30, 30)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "14:00", "15:00", "15:30"}, slots)
}

func TestGenerateSlotsServiceLongerThanWindow(t *testing.T) {
	slots := GenerateSlots([]domain.Interval{iv(t, "09:00", "10:00")}, Occupancy{}, 90, 30)
	assert.Empty(t, slots)
}

// Every emitted start satisfies the membership definition, and every grid
// start satisfying it is emitted.
func TestGenerateSlotsMatchesDefinition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		windows := []domain.Interval{
			{Start: domain.Minute(8 * 60), End: domain.Minute(12 * 60)},
			{Start: domain.Minute(13 * 60), End: domain.Minute(19 * 60)},
		}
		var occ Occupancy
		for i := 0; i < rng.Intn(5); i++ {
			start := domain.Minute(8*60 + rng.Intn(10*60))
			occ.Blockers = append(occ.Blockers, Blocker{
				Kind:     BlockerKind([]string{"booking", "blocked_slot"}[rng.Intn(2)]),
				Interval: domain.Interval{Start: start, End: start + domain.Minute(15+rng.Intn(120))},
			})
		}
		duration := 15 + rng.Intn(100)

		got := map[string]bool{}
		for _, s := range GenerateSlots(windows, occ, duration, 30) {
			got[s] = true
		}

		for _, w := range windows {
			for s := w.Start; s < w.End; s += 30 {
				cand := domain.Interval{Start: s, End: s + domain.Minute(duration)}
				want := cand.End <= w.End
				for _, b := range occ.Blockers {
					if b.Interval.Overlaps(cand) {
						want = false
					}
				}
				assert.Equal(t, want, got[s.String()], "round %d start %s duration %d", round, s, duration)
			}
		}
	}
}

func newSlotsUseCase(repo *bookingtest.MemoryRepository, holds domain.HoldStore, now time.Time) *GetSlots {
	log := zap.NewNop()
	return NewGetSlots(
		repo,
		NewAvailabilityResolver(repo, log),
		NewOccupancyCollector(repo, holds, false, log),
		timezone.FixedClock{At: now},
		domain.PermissivePolicy(),
		30,
		log,
	)
}

func seededRepo() *bookingtest.MemoryRepository {
	repo := bookingtest.NewMemoryRepository()
	repo.AddService(models.Service{ID: 1, Name: "Deep tissue", DurationMin: 60, Price: decimal.NewFromInt(80), Active: true})
	repo.AddService(models.Service{ID: 2, Name: "Retired", DurationMin: 60, Active: false})
	repo.AddAvailability(1, "09:00", "12:00")
	return repo
}

func TestGetSlotsExecute(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	repo := seededRepo()
	repo.AddBlocked(monday, "09:00", "10:00", "training")
	repo.AddBooking(models.Booking{ID: "x", Date: monday, StartTime: "10:00", EndTime: "11:00", Status: string(domain.StatusConfirmed)})
	repo.AddBooking(models.Booking{ID: "y", Date: monday, StartTime: "11:00", EndTime: "12:00", Status: string(domain.StatusCancelled)})
	repo.AddBooking(models.Booking{ID: "z", Date: monday, StartTime: "11:00", EndTime: "12:00", Status: string(domain.StatusPendingPayment)})

	out, err := newSlotsUseCase(repo, nil, now).Execute(context.Background(), SlotsInput{ServiceID: 1, Date: monday})
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00"}, out.Slots)
}

func TestGetSlotsHonoursHolds(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	repo := seededRepo()
	holds := bookingtest.NewMemoryHolds()
	require.NoError(t, holds.Acquire(context.Background(), domain.Hold{Token: "t", Date: monday, Interval: iv(t, "09:00", "10:00")}, time.Minute))

	out, err := newSlotsUseCase(repo, holds, now).Execute(context.Background(), SlotsInput{ServiceID: 1, Date: monday})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30", "11:00"}, out.Slots)
}

func TestGetSlotsErrors(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	uc := newSlotsUseCase(seededRepo(), nil, now)
	ctx := context.Background()

	_, err := uc.Execute(ctx, SlotsInput{ServiceID: 99, Date: monday})
	assert.True(t, httperr.IsKind(err, httperr.KindNotFound))

	_, err = uc.Execute(ctx, SlotsInput{ServiceID: 2, Date: monday})
	assert.True(t, httperr.IsKind(err, httperr.KindPolicyViolation))

	_, err = uc.Execute(ctx, SlotsInput{ServiceID: 1, Date: "19/10/2026"})
	assert.True(t, httperr.IsKind(err, httperr.KindInvalid))
}

func TestGetSlotsClosedPastAndToday(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo()

	// Tuesday has no window.
	out, err := newSlotsUseCase(repo, nil, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)).
		Execute(ctx, SlotsInput{ServiceID: 1, Date: "2026-10-20"})
	require.NoError(t, err)
	assert.Empty(t, out.Slots)

	// Past date.
	out, err = newSlotsUseCase(repo, nil, time.Date(2026, 10, 25, 9, 0, 0, 0, time.UTC)).
		Execute(ctx, SlotsInput{ServiceID: 1, Date: monday})
	require.NoError(t, err)
	assert.Empty(t, out.Slots)

	// Same day: earlier starts are gone.
	out, err = newSlotsUseCase(repo, nil, time.Date(2026, 10, 19, 10, 10, 0, 0, time.UTC)).
		Execute(ctx, SlotsInput{ServiceID: 1, Date: monday})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:30", "11:00"}, out.Slots)
}

func TestGetSlotsAdvanceWindow(t *testing.T) {
	// monday is four days after now.
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		settings *models.SiteSettings
		want     []string
	}{
		{name: "no settings row", want: []string{"09:00", "09:30", "10:00", "10:30", "11:00"}},
		{name: "inside window", settings: &models.SiteSettings{BookingAdvanceMinDays: 4, BookingAdvanceMaxDays: 4}, want: []string{"09:00", "09:30", "10:00", "10:30", "11:00"}},
		{name: "too soon", settings: &models.SiteSettings{BookingAdvanceMinDays: 5}, want: []string{}},
		{name: "too far", settings: &models.SiteSettings{BookingAdvanceMaxDays: 3}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := seededRepo()
			repo.Settings = tt.settings

			out, err := newSlotsUseCase(repo, nil, now).Execute(context.Background(), SlotsInput{ServiceID: 1, Date: monday})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Slots)
		})
	}
}
