package schedule

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/timezone"
)

const DefaultGranularity = 30

// GenerateSlots walks every window in steps of granularity minutes and keeps
// each start S where [S, S+duration) fits the window and overlaps nothing in
// occ. The result is ordered and free of duplicates.
func GenerateSlots(
	windows []domain.Interval,
	occ Occupancy,
	duration int,
	granularity int,
) []string {
	if duration <= 0 {
		return []string{}
	}
	if granularity <= 0 {
		granularity = DefaultGranularity
	}

	seen := make(map[domain.Minute]bool)
	var starts []domain.Interval

	for _, w := range windows {
		for s := w.Start; s+domain.Minute(duration) <= w.End; s += domain.Minute(granularity) {
			candidate := domain.Interval{Start: s, End: s + domain.Minute(duration)}
			if _, busy := occ.Conflict(candidate, ""); busy {
				continue
			}
			if !seen[s] {
				seen[s] = true
				starts = append(starts, candidate)
			}
		}
	}

	sortIntervals(starts)

	out := make([]string, 0, len(starts))
	for _, c := range starts {
		out = append(out, c.Start.String())
	}
	return out
}

type SlotsInput struct {
	ServiceID uint
	Date      string
}

type SlotsOutput struct {
	Date      string   `json:"date"`
	ServiceID uint     `json:"serviceId"`
	Slots     []string `json:"slots"`
}

// GetSlots is the advisory read path. The booking write path re-derives
// occupancy on its own.
type GetSlots struct {
	repo        domain.Repository
	resolver    *AvailabilityResolver
	collector   *OccupancyCollector
	clock       timezone.Clock
	defaults    domain.Policy
	granularity int
	log         *zap.Logger
}

// NewGetSlots builds the advisory slot listing. defaults applies when no
// site settings row exists.
func NewGetSlots(
	repo domain.Repository,
	resolver *AvailabilityResolver,
	collector *OccupancyCollector,
	clock timezone.Clock,
	defaults domain.Policy,
	granularity int,
	log *zap.Logger,
) *GetSlots {
	return &GetSlots{
		repo:        repo,
		resolver:    resolver,
		collector:   collector,
		clock:       clock,
		defaults:    defaults,
		granularity: granularity,
		log:         log.With(zap.String("usecase", "get_slots")),
	}
}

func (uc *GetSlots) Execute(ctx context.Context, in SlotsInput) (*SlotsOutput, error) {
	out := &SlotsOutput{Date: in.Date, ServiceID: in.ServiceID, Slots: []string{}}

	svc, err := uc.repo.GetService(ctx, in.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, httperr.NotFoundErr("service_not_found", "service %d does not exist", in.ServiceID)
	}
	if !svc.Active {
		return nil, httperr.PolicyViolation("service_inactive", "service %q is not bookable", svc.Name)
	}

	loc := uc.clock.Location()
	date, err := domain.ParseDate(in.Date, loc)
	if err != nil {
		return nil, httperr.Invalid("invalid_date", "%s", err.Error())
	}

	now := uc.clock.Now().In(loc)
	days := domain.DaysBetween(now, date)
	if days < 0 {
		return out, nil
	}

	// Dates a create would reject for the advance window list nothing.
	settings, err := uc.repo.GetSiteSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load site settings: %w", err)
	}
	if domain.PolicyFrom(settings, uc.defaults).CheckAdvance(now, date) != nil {
		return out, nil
	}

	windows, err := uc.resolver.Resolve(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return out, nil
	}

	occ, err := uc.collector.Collect(ctx, in.Date)
	if err != nil {
		return nil, err
	}

	slots := GenerateSlots(windows, occ, svc.DurationMin, uc.granularity)

	if days == 0 {
		nowMin := domain.Minute(now.Hour()*60 + now.Minute())
		upcoming := slots[:0]
		for _, s := range slots {
			if m, err := domain.ParseClock(s); err == nil && m > nowMin {
				upcoming = append(upcoming, s)
			}
		}
		slots = upcoming
	}

	out.Slots = slots
	return out, nil
}
