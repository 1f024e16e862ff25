package booking

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/audit"
	"github.com/TabarBaptiste/masseuse/internal/config"
	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/domain/booking/bookingtest"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/notify"
	"github.com/TabarBaptiste/masseuse/internal/payment"
	"github.com/TabarBaptiste/masseuse/internal/timezone"
	"github.com/TabarBaptiste/masseuse/internal/usecase/schedule"
)

const (
	today    = "2026-10-15" // Thursday
	tomorrow = "2026-10-16" // Friday
	friday   = 5
	thursday = 4
)

var (
	client = domain.Caller{ID: "user-1", Role: domain.RoleClient}
	other  = domain.Caller{ID: "user-2", Role: domain.RoleClient}
	admin  = domain.Caller{ID: "admin-1", Role: domain.RoleAdmin}
)

type recorder struct {
	mu            sync.Mutex
	events        []audit.Event
	notifications []notify.Notification
}

func (r *recorder) Dispatch(ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.notifications))
	for _, n := range r.notifications {
		out = append(out, n.Kind)
	}
	return out
}

type fixture struct {
	repo  *bookingtest.MemoryRepository
	holds *bookingtest.MemoryHolds
	rec   *recorder
	clock timezone.FixedClock
	deps  Deps
}

// newFixture opens the salon 09:00-18:00 on Thursday and Friday with one
// 60 minute service. The clock reads Thursday 08:00 in Paris.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	loc := timezone.Location("Europe/Paris")
	repo := bookingtest.NewMemoryRepository()
	repo.AddService(models.Service{ID: 1, Name: "Massage suédois", DurationMin: 60, Price: decimal.RequireFromString("80.00"), Active: true})
	repo.AddService(models.Service{ID: 2, Name: "Retired", DurationMin: 30, Active: false})
	repo.AddAvailability(thursday, "09:00", "18:00")
	repo.AddAvailability(friday, "09:00", "18:00")

	clock := timezone.FixedClock{At: time.Date(2026, 10, 15, 8, 0, 0, 0, loc)}
	repo.Now = clock.Now

	rec := &recorder{}
	holds := bookingtest.NewMemoryHolds()
	return &fixture{
		repo:  repo,
		holds: holds,
		rec:   rec,
		clock: clock,
		deps: Deps{
			Repo:     repo,
			Holds:    holds,
			Clock:    clock,
			Defaults: domain.PermissivePolicy(),
			Audit:    rec,
			Notifier: rec,
			Log:      zap.NewNop(),
		},
	}
}

func (f *fixture) setPolicy(minDays, maxDays, deadlineHours int, deposit string) {
	f.repo.Settings = &models.SiteSettings{
		ID:                        1,
		BookingAdvanceMinDays:     minDays,
		BookingAdvanceMaxDays:     maxDays,
		CancellationDeadlineHours: deadlineHours,
		DepositAmount:             decimal.RequireFromString(deposit),
	}
}

func (f *fixture) create(provider payment.Provider, opts CreateOptions) *CreateBooking {
	log := zap.NewNop()
	return NewCreateBooking(
		f.deps,
		schedule.NewAvailabilityResolver(f.repo, log),
		schedule.NewOccupancyCollector(f.repo, f.holds, false, log),
		provider,
		opts,
	)
}

func directOpts() CreateOptions {
	return CreateOptions{Mode: config.CreationDirect, RacePolicy: config.RaceSlotHold}
}

func deferredOpts(policy config.RacePolicy) CreateOptions {
	return CreateOptions{Mode: config.CreationDeferred, RacePolicy: policy, CheckoutTTL: 30 * time.Minute}
}

func (f *fixture) seed(id, date, start, end string, status domain.Status) models.Booking {
	b := models.Booking{
		ID:             id,
		UserID:         client.ID,
		ServiceID:      1,
		Date:           date,
		StartTime:      start,
		EndTime:        end,
		Status:         string(status),
		PriceAtBooking: decimal.RequireFromString("80.00"),
		CreatedAt:      f.clock.Now(),
	}
	f.repo.AddBooking(b)
	return b
}
