package booking

import (
	"context"
	"time"

	"github.com/TabarBaptiste/masseuse/internal/models"
)

// Repository is the storage port of the booking core. Lookups of single rows
// return (nil, nil) when nothing matches.
type Repository interface {
	// -------- Catalog / settings --------
	GetService(ctx context.Context, id uint) (*models.Service, error)
	GetSiteSettings(ctx context.Context) (*models.SiteSettings, error)

	// -------- Availability / occupancy --------
	ListAvailability(ctx context.Context, dayOfWeek int) ([]models.WeeklyAvailability, error)
	ListBlockedSlots(ctx context.Context, date string) ([]models.BlockedSlot, error)
	ListBookingsByDate(ctx context.Context, date string, statuses []Status) ([]models.Booking, error)

	// -------- Bookings --------
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	FindBookingBySession(ctx context.Context, sessionID string) (*models.Booking, error)
	CreateBooking(ctx context.Context, b *models.Booking) error
	// UpdateBookingLocked loads the row under a write lock, hands it to fn
	// and stores the result. An error from fn aborts without writing. A
	// missing row yields (nil, nil) and fn is not called. fn must not call
	// back into the repository.
	UpdateBookingLocked(ctx context.Context, id string, fn func(b *models.Booking) error) (*models.Booking, error)
	ListStalePendingPayment(ctx context.Context, createdBefore time.Time) ([]models.Booking, error)

	// WithDateLock runs fn in a transaction that holds an exclusive lock on
	// date. Every insert that must not overlap goes through it.
	WithDateLock(ctx context.Context, date string, fn func(tx Repository) error) error

	// -------- Audit scans --------
	ListActiveAvailability(ctx context.Context) ([]models.WeeklyAvailability, error)
	ListBookingsInRange(ctx context.Context, from, to string, exclude []Status) ([]models.Booking, error)
	ListBlockedSlotsInRange(ctx context.Context, from, to string) ([]models.BlockedSlot, error)
}
