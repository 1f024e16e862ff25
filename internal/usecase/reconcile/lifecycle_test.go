package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/audit"
	"github.com/TabarBaptiste/masseuse/internal/config"
	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/domain/booking/bookingtest"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/notify"
	"github.com/TabarBaptiste/masseuse/internal/payment"
	ucbooking "github.com/TabarBaptiste/masseuse/internal/usecase/booking"
	"github.com/TabarBaptiste/masseuse/internal/usecase/schedule"
)

func legacyEvent(session, bookingID string) payment.CheckoutCompleted {
	return payment.CheckoutCompleted{
		SessionID:  session,
		IntentID:   "pi_" + session,
		AmountPaid: decimal.RequireFromString("20"),
		Metadata:   payment.Metadata{BookingID: bookingID, CheckoutRef: bookingID},
	}
}

// ======================================================
// DIRECT DEPOSIT, SAME SLOT
// ======================================================

func TestDirectDepositSameSlot(t *testing.T) {
	tests := []struct {
		name      string
		withHolds bool
	}{
		{name: "with slot holds", withHolds: true},
		{name: "without slot holds", withHolds: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.repo.AddAvailability(int(time.Friday), "09:00", "18:00")
			f.repo.Settings = &models.SiteSettings{ID: 1, DepositAmount: decimal.RequireFromString("20")}
			ctx := context.Background()
			log := zap.NewNop()

			var holds domain.HoldStore
			if tt.withHolds {
				holds = f.holds
			}
			create := ucbooking.NewCreateBooking(
				ucbooking.Deps{Repo: f.repo, Holds: holds, Clock: f.clock, Defaults: domain.PermissivePolicy(), Log: log},
				schedule.NewAvailabilityResolver(f.repo, log),
				schedule.NewOccupancyCollector(f.repo, holds, false, log),
				f.provider,
				ucbooking.CreateOptions{Mode: config.CreationDirect, RacePolicy: config.RaceSlotHold},
			)
			uc := f.uc(true)

			var created []*ucbooking.CreateOutput
			for _, user := range []string{"alice", "bob"} {
				out, err := create.Execute(ctx, ucbooking.CreateInput{
					Caller:    domain.Caller{ID: user, Role: domain.RoleClient},
					ServiceID: 1,
					Date:      date,
					StartTime: "10:00",
				})
				if err != nil {
					require.True(t, httperr.IsKind(err, httperr.KindSlotUnavailable), "got %v", err)
					continue
				}
				created = append(created, out)
			}

			var outcomes []Outcome
			for _, out := range created {
				o, err := f.deliver(t, uc, legacyEvent(out.Checkout.ID, out.Booking.ID))
				require.NoError(t, err)
				outcomes = append(outcomes, o)
			}

			pending := 0
			for _, out := range created {
				b, _ := f.repo.Snapshot(out.Booking.ID)
				if b.Status == string(domain.StatusPending) {
					pending++
				}
			}
			silent := pending > 1 && f.rec.count(audit.ActionDeferredOverlap) == 0
			assert.False(t, silent, "two PENDING bookings share a slot and nobody was told")

			if tt.withHolds {
				assert.Len(t, created, 1)
				assert.Equal(t, []Outcome{OutcomeApplied}, outcomes)
				assert.Equal(t, 0, f.holds.Len())
				return
			}

			assert.Equal(t, []Outcome{OutcomeApplied, OutcomeAppliedOverlap}, outcomes)
			assert.Equal(t, 1, f.rec.count(audit.ActionDeferredOverlap))
			require.NotEmpty(t, f.rec.notifications)
			last := f.rec.notifications[len(f.rec.notifications)-1]
			assert.Equal(t, notify.KindPaymentAnomaly, last.Kind)
			assert.Equal(t, notify.AudienceAdmin, last.Audience)
		})
	}
}

func TestLegacyCompletionIgnoresOwnRow(t *testing.T) {
	f := newFixture(t)
	f.occupies = true
	f.repo.AddBooking(models.Booking{
		ID: "b-1", UserID: "user-1", ServiceID: 1, Date: date,
		StartTime: "10:00", EndTime: "11:00", Status: string(domain.StatusPendingPayment),
	})
	require.NoError(t, f.holds.Acquire(context.Background(), domain.Hold{Token: "b-1", Date: date, Interval: interval(t, "10:00", "11:00")}, time.Hour))

	out, err := f.deliver(t, f.uc(true), legacyEvent("cs_1", "b-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, 0, f.rec.count(audit.ActionDeferredOverlap))
}

// ======================================================
// WEBHOOK VS LIFECYCLE WRITES
// ======================================================

// hookRepo fires hook once, at the point where a lifecycle use case has
// read but not yet written.
type hookRepo struct {
	*bookingtest.MemoryRepository
	once sync.Once
	hook func()
}

func (r *hookRepo) fire() { r.once.Do(r.hook) }

func (r *hookRepo) ListStalePendingPayment(ctx context.Context, createdBefore time.Time) ([]models.Booking, error) {
	rows, err := r.MemoryRepository.ListStalePendingPayment(ctx, createdBefore)
	r.fire()
	return rows, err
}

func (r *hookRepo) GetSiteSettings(ctx context.Context) (*models.SiteSettings, error) {
	s, err := r.MemoryRepository.GetSiteSettings(ctx)
	r.fire()
	return s, err
}

func TestWebhookDuringLifecycleWrite(t *testing.T) {
	tests := []struct {
		name   string
		run    func(t *testing.T, deps ucbooking.Deps) error
		status domain.Status
	}{
		{
			name: "janitor",
			run: func(t *testing.T, deps ucbooking.Deps) error {
				n, err := ucbooking.NewCleanupPendingPayment(deps, time.Hour).Execute(context.Background())
				if err == nil && n != 0 {
					t.Errorf("janitor cancelled %d booking(s)", n)
				}
				return err
			},
			status: domain.StatusPending,
		},
		{
			name: "client cancel",
			run: func(t *testing.T, deps ucbooking.Deps) error {
				_, err := ucbooking.NewCancelBooking(deps).Execute(context.Background(), ucbooking.CancelInput{
					Caller:    domain.Caller{ID: "user-1", Role: domain.RoleClient},
					BookingID: "b-1",
					Reason:    "changed my mind",
				})
				return err
			},
			status: domain.StatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.repo.AddBooking(models.Booking{
				ID: "b-1", UserID: "user-1", ServiceID: 1, Date: date,
				StartTime: "10:00", EndTime: "11:00", Status: string(domain.StatusPendingPayment),
				CreatedAt: f.clock.Now().Add(-2 * time.Hour),
			})
			uc := f.uc(true)
			ev := legacyEvent("cs_1", "b-1")

			var hookOutcome Outcome
			repo := &hookRepo{MemoryRepository: f.repo}
			repo.hook = func() {
				out, err := f.deliver(t, uc, ev)
				require.NoError(t, err)
				hookOutcome = out
			}

			require.NoError(t, tt.run(t, ucbooking.Deps{
				Repo:     repo,
				Holds:    f.holds,
				Clock:    f.clock,
				Defaults: domain.PermissivePolicy(),
				Log:      zap.NewNop(),
			}))
			assert.Equal(t, OutcomeApplied, hookOutcome)

			assertPaid := func() {
				b, _ := f.repo.Snapshot("b-1")
				assert.Equal(t, string(tt.status), b.Status)
				assert.True(t, b.IsDepositPaid)
				assert.NotNil(t, b.DepositPaidAt)
				require.NotNil(t, b.ExternalPaymentSessionID)
				assert.Equal(t, "cs_1", *b.ExternalPaymentSessionID)
			}
			assertPaid()

			out, err := f.deliver(t, uc, ev)
			require.NoError(t, err)
			assert.Equal(t, OutcomeDuplicate, out)
			assertPaid()
			assert.Equal(t, 1, f.rec.count(audit.ActionPaymentReceived))
		})
	}
}
