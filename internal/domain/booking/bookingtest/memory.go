// Package bookingtest provides in-memory fakes of the booking storage ports
// for use-case and handler tests.
package bookingtest

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/models"
)

type MemoryRepository struct {
	mu sync.Mutex

	Services     map[uint]models.Service
	Settings     *models.SiteSettings
	Availability []models.WeeklyAvailability
	Blocked      []models.BlockedSlot
	Bookings     map[string]models.Booking

	// Now stamps CreatedAt on insert when set.
	Now func() time.Time

	// FailCreate makes the next CreateBooking return this error.
	FailCreate error

	dateLocks sync.Map
	Creates   int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		Services: map[uint]models.Service{},
		Bookings: map[string]models.Booking{},
	}
}

func (r *MemoryRepository) AddService(s models.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Services[s.ID] = s
}

func (r *MemoryRepository) AddAvailability(day int, start, end string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Availability = append(r.Availability, models.WeeklyAvailability{
		ID:        uint(len(r.Availability) + 1),
		DayOfWeek: day,
		StartTime: start,
		EndTime:   end,
		Active:    true,
	})
}

func (r *MemoryRepository) AddBlocked(date, start, end, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Blocked = append(r.Blocked, models.BlockedSlot{
		ID:        uint(len(r.Blocked) + 1),
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Reason:    reason,
	})
}

func (r *MemoryRepository) AddBooking(b models.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Bookings[b.ID] = b
}

// Snapshot returns a copy of the stored booking.
func (r *MemoryRepository) Snapshot(id string) (models.Booking, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.Bookings[id]
	return b, ok
}

func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Bookings)
}

func (r *MemoryRepository) GetService(_ context.Context, id uint) (*models.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.Services[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) GetSiteSettings(context.Context) (*models.SiteSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Settings == nil {
		return nil, nil
	}
	s := *r.Settings
	return &s, nil
}

func (r *MemoryRepository) ListAvailability(_ context.Context, day int) ([]models.WeeklyAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WeeklyAvailability
	for _, a := range r.Availability {
		if a.DayOfWeek == day && a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListBlockedSlots(_ context.Context, date string) ([]models.BlockedSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BlockedSlot
	for _, b := range r.Blocked {
		if b.Date == date {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListBookingsByDate(_ context.Context, date string, statuses []domain.Status) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.Bookings {
		if b.Date == date && hasStatus(statuses, b.Status) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (r *MemoryRepository) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.Bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *MemoryRepository) FindBookingBySession(_ context.Context, sessionID string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.Bookings {
		if b.ExternalPaymentSessionID != nil && *b.ExternalPaymentSessionID == sessionID {
			out := b
			return &out, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) CreateBooking(_ context.Context, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailCreate; err != nil {
		r.FailCreate = nil
		return err
	}
	if _, exists := r.Bookings[b.ID]; exists {
		return httperr.Invalid("duplicate_id", "booking %s already exists", b.ID)
	}
	if b.ExternalPaymentSessionID != nil {
		for _, other := range r.Bookings {
			if other.ExternalPaymentSessionID != nil && *other.ExternalPaymentSessionID == *b.ExternalPaymentSessionID {
				return httperr.Invalid("duplicate_session", "session %s already used", *b.ExternalPaymentSessionID)
			}
		}
	}
	if r.Now != nil {
		b.CreatedAt = r.Now()
	}
	r.Bookings[b.ID] = *b
	r.Creates++
	return nil
}

// UpdateBookingLocked runs fn under the repository mutex, so it behaves
// like a row lock: no other write lands between the read and the store.
func (r *MemoryRepository) UpdateBookingLocked(_ context.Context, id string, fn func(b *models.Booking) error) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.Bookings[id]
	if !ok {
		return nil, nil
	}
	if err := fn(&b); err != nil {
		return nil, err
	}
	r.Bookings[id] = b
	out := b
	return &out, nil
}

func (r *MemoryRepository) ListStalePendingPayment(_ context.Context, createdBefore time.Time) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.Bookings {
		if b.Status == string(domain.StatusPendingPayment) && !b.IsDepositPaid && b.CreatedAt.Before(createdBefore) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

// WithDateLock serializes callers per date, like the advisory lock does.
func (r *MemoryRepository) WithDateLock(_ context.Context, date string, fn func(tx domain.Repository) error) error {
	v, _ := r.dateLocks.LoadOrStore(date, &sync.Mutex{})
	lock := v.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()
	return fn(r)
}

func (r *MemoryRepository) ListActiveAvailability(context.Context) ([]models.WeeklyAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WeeklyAvailability
	for _, a := range r.Availability {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListBookingsInRange(_ context.Context, from, to string, exclude []domain.Status) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.Bookings {
		if inRange(b.Date, from, to) && !hasStatus(exclude, b.Status) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (r *MemoryRepository) ListBlockedSlotsInRange(_ context.Context, from, to string) ([]models.BlockedSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BlockedSlot
	for _, b := range r.Blocked {
		if inRange(b.Date, from, to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func hasStatus(in []domain.Status, s string) bool {
	for _, x := range in {
		if string(x) == s {
			return true
		}
	}
	return false
}

func inRange(date, from, to string) bool {
	return (from == "" || date >= from) && (to == "" || date <= to)
}

func sortBookings(in []models.Booking) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].Date != in[j].Date {
			return in[i].Date < in[j].Date
		}
		if in[i].StartTime != in[j].StartTime {
			return in[i].StartTime < in[j].StartTime
		}
		return in[i].ID < in[j].ID
	})
}

var _ domain.Repository = (*MemoryRepository)(nil)
