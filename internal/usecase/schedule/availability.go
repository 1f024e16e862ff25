package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
)

// AvailabilityResolver turns the recurring weekly configuration into the
// open windows of one calendar date.
type AvailabilityResolver struct {
	repo domain.Repository
	log  *zap.Logger
}

func NewAvailabilityResolver(repo domain.Repository, log *zap.Logger) *AvailabilityResolver {
	return &AvailabilityResolver{
		repo: repo,
		log:  log.With(zap.String("component", "availability")),
	}
}

// Resolve returns the active windows for date's weekday, ordered by start.
// A closed day yields an empty slice.
func (r *AvailabilityResolver) Resolve(ctx context.Context, date time.Time) ([]domain.Interval, error) {
	rows, err := r.repo.ListAvailability(ctx, domain.DayOfWeek(date))
	if err != nil {
		return nil, err
	}

	windows := make([]domain.Interval, 0, len(rows))
	for _, row := range rows {
		if !row.Active {
			continue
		}
		iv, err := domain.ParseInterval(row.StartTime, row.EndTime)
		if err != nil {
			r.log.Warn("skipping malformed availability row",
				zap.Uint("id", row.ID),
				zap.Error(err),
			)
			continue
		}
		windows = append(windows, iv)
	}

	sortIntervals(windows)
	return windows, nil
}

// Covers reports whether iv fits entirely inside one of windows.
func Covers(windows []domain.Interval, iv domain.Interval) bool {
	for _, w := range windows {
		if w.Contains(iv) {
			return true
		}
	}
	return false
}
