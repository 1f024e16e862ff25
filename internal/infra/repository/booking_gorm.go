package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/models"
)

type BookingGormRepository struct {
	db *gorm.DB
}

func NewBookingGormRepository(db *gorm.DB) *BookingGormRepository {
	return &BookingGormRepository{db: db}
}

func statusStrings(in []domain.Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

// first loads one row into dst and maps "no rows" to (false, nil).
func first(q *gorm.DB, dst any) (bool, error) {
	err := q.First(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --------------------------------------------------
// Catalog / settings
// --------------------------------------------------

func (r *BookingGormRepository) GetService(
	ctx context.Context,
	id uint,
) (*models.Service, error) {

	var svc models.Service
	found, err := first(r.db.WithContext(ctx).Where("id = ?", id), &svc)
	if err != nil || !found {
		return nil, err
	}
	return &svc, nil
}

func (r *BookingGormRepository) GetSiteSettings(
	ctx context.Context,
) (*models.SiteSettings, error) {

	var s models.SiteSettings
	found, err := first(r.db.WithContext(ctx).Order("id ASC"), &s)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

// --------------------------------------------------
// Availability / occupancy
// --------------------------------------------------

func (r *BookingGormRepository) ListAvailability(
	ctx context.Context,
	dayOfWeek int,
) ([]models.WeeklyAvailability, error) {

	var rows []models.WeeklyAvailability
	if err := r.db.WithContext(ctx).
		Where("day_of_week = ? AND active = true", dayOfWeek).
		Order("start_time ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingGormRepository) ListBlockedSlots(
	ctx context.Context,
	date string,
) ([]models.BlockedSlot, error) {

	var rows []models.BlockedSlot
	if err := r.db.WithContext(ctx).
		Where("date = ?", date).
		Order("start_time ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingGormRepository) ListBookingsByDate(
	ctx context.Context,
	date string,
	statuses []domain.Status,
) ([]models.Booking, error) {

	var rows []models.Booking
	if err := r.db.WithContext(ctx).
		Where("date = ? AND status IN ?", date, statusStrings(statuses)).
		Order("start_time ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// --------------------------------------------------
// Bookings
// --------------------------------------------------

func (r *BookingGormRepository) GetBooking(
	ctx context.Context,
	id string,
) (*models.Booking, error) {

	var b models.Booking
	found, err := first(r.db.WithContext(ctx).Where("id = ?", id), &b)
	if err != nil || !found {
		return nil, err
	}
	return &b, nil
}

func (r *BookingGormRepository) FindBookingBySession(
	ctx context.Context,
	sessionID string,
) (*models.Booking, error) {

	var b models.Booking
	found, err := first(r.db.WithContext(ctx).Where("external_payment_session_id = ?", sessionID), &b)
	if err != nil || !found {
		return nil, err
	}
	return &b, nil
}

func (r *BookingGormRepository) CreateBooking(
	ctx context.Context,
	b *models.Booking,
) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// UpdateBookingLocked reads the row FOR UPDATE so concurrent lifecycle
// writers (webhooks, cancels, the janitor) see each other's changes. Inside
// WithDateLock the transaction nests as a savepoint.
func (r *BookingGormRepository) UpdateBookingLocked(
	ctx context.Context,
	id string,
	fn func(b *models.Booking) error,
) (*models.Booking, error) {

	var out *models.Booking
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("id = ?", id)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var b models.Booking
		found, err := first(q, &b)
		if err != nil || !found {
			return err
		}
		if err := fn(&b); err != nil {
			return err
		}
		if err := tx.Save(&b).Error; err != nil {
			return err
		}
		out = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BookingGormRepository) ListStalePendingPayment(
	ctx context.Context,
	createdBefore time.Time,
) ([]models.Booking, error) {

	var rows []models.Booking
	if err := r.db.WithContext(ctx).
		Where(
			"status = ? AND is_deposit_paid = false AND created_at < ?",
			string(domain.StatusPendingPayment),
			createdBefore,
		).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// WithDateLock opens a transaction and takes a transaction-scoped advisory
// lock on the date, so concurrent writers for the same day queue up behind
// each other while other days proceed. SQLite already serializes writers.
func (r *BookingGormRepository) WithDateLock(
	ctx context.Context,
	date string,
	fn func(tx domain.Repository) error,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(
				"SELECT pg_advisory_xact_lock(hashtext(?))",
				"booking:"+date,
			).Error; err != nil {
				return err
			}
		}
		return fn(&BookingGormRepository{db: tx})
	})
}

// --------------------------------------------------
// Audit scans
// --------------------------------------------------

func (r *BookingGormRepository) ListActiveAvailability(
	ctx context.Context,
) ([]models.WeeklyAvailability, error) {

	var rows []models.WeeklyAvailability
	if err := r.db.WithContext(ctx).
		Where("active = true").
		Order("day_of_week ASC, start_time ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingGormRepository) ListBookingsInRange(
	ctx context.Context,
	from string,
	to string,
	exclude []domain.Status,
) ([]models.Booking, error) {

	q := dateRange(r.db.WithContext(ctx), from, to)
	if len(exclude) > 0 {
		q = q.Where("status NOT IN ?", statusStrings(exclude))
	}

	var rows []models.Booking
	if err := q.Order("date ASC, start_time ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingGormRepository) ListBlockedSlotsInRange(
	ctx context.Context,
	from string,
	to string,
) ([]models.BlockedSlot, error) {

	var rows []models.BlockedSlot
	if err := dateRange(r.db.WithContext(ctx), from, to).
		Order("date ASC, start_time ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// dateRange filters on the inclusive [from, to] range. Empty bounds are
// open. Zero-padded ISO dates compare correctly as strings.
func dateRange(q *gorm.DB, from, to string) *gorm.DB {
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}
	return q
}

// Compile-time check
var _ domain.Repository = (*BookingGormRepository)(nil)
