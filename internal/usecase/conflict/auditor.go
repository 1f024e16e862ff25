package conflict

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/metrics"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/usecase/schedule"
)

type Type string

const (
	TypeBookingOverlap      Type = "BOOKING_OVERLAP"
	TypeBookingBlocked      Type = "BOOKING_BLOCKED"
	TypeOutsideAvailability Type = "OUTSIDE_AVAILABILITY"
	TypeBlockOverlap        Type = "BLOCK_OVERLAP"
)

var Types = []Type{TypeBookingOverlap, TypeBookingBlocked, TypeOutsideAvailability, TypeBlockOverlap}

type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

var Severities = []Severity{SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

func severityOf(t Type) Severity {
	switch t {
	case TypeBookingOverlap, TypeBookingBlocked:
		return SeverityHigh
	case TypeOutsideAvailability:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Conflict is one violated scheduling invariant. StartTime and EndTime are
// the overlapping portion, or the booking itself for OUTSIDE_AVAILABILITY.
type Conflict struct {
	Type           Type     `json:"type"`
	Severity       Severity `json:"severity"`
	Date           string   `json:"date"`
	StartTime      string   `json:"startTime"`
	EndTime        string   `json:"endTime"`
	Description    string   `json:"description"`
	BookingIDs     []string `json:"bookingIds,omitempty"`
	BlockedSlotIDs []uint   `json:"blockedSlotIds,omitempty"`
}

type Report struct {
	From      string     `json:"from,omitempty"`
	To        string     `json:"to,omitempty"`
	Total     int        `json:"total"`
	Conflicts []Conflict `json:"conflicts"`
}

type Summary struct {
	Total      int              `json:"total"`
	ByType     map[Type]int     `json:"byType"`
	BySeverity map[Severity]int `json:"bySeverity"`
}

// Summarize counts r by type and severity. Every known key is present.
func Summarize(r *Report) Summary {
	s := Summary{
		Total:      r.Total,
		ByType:     make(map[Type]int, len(Types)),
		BySeverity: make(map[Severity]int, len(Severities)),
	}
	for _, t := range Types {
		s.ByType[t] = 0
	}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
	}
	for _, c := range r.Conflicts {
		s.ByType[c.Type]++
		s.BySeverity[c.Severity]++
	}
	return s
}

type Range struct {
	From string
	To   string
}

// ======================================================
// USE CASE
// ======================================================

// AuditConflicts rescans bookings, blocked periods and weekly availability
// for anything the write path should have prevented. It only reads.
type AuditConflicts struct {
	repo    domain.Repository
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewAuditConflicts(repo domain.Repository, m *metrics.Metrics, log *zap.Logger) *AuditConflicts {
	return &AuditConflicts{
		repo:    repo,
		metrics: m,
		log:     log.With(zap.String("usecase", "audit_conflicts")),
	}
}

type booking struct {
	row models.Booking
	iv  domain.Interval
}

type block struct {
	row models.BlockedSlot
	iv  domain.Interval
}

func (uc *AuditConflicts) Execute(ctx context.Context, in Range) (*Report, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	rows, err := uc.repo.ListBookingsInRange(ctx, in.From, in.To, []domain.Status{domain.StatusCancelled})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	blockedRows, err := uc.repo.ListBlockedSlotsInRange(ctx, in.From, in.To)
	if err != nil {
		return nil, fmt.Errorf("list blocked slots: %w", err)
	}
	availability, err := uc.repo.ListActiveAvailability(ctx)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}

	bookings := uc.parseBookings(rows)
	blocks := uc.parseBlocks(blockedRows)

	var found []Conflict
	found = append(found, scanBookingOverlaps(bookings)...)
	found = append(found, scanBookingsBlocked(bookings, blocks)...)
	found = append(found, scanOutsideAvailability(bookings, uc.weeklyWindows(availability))...)
	found = append(found, scanBlockOverlaps(blocks)...)

	sortConflicts(found)
	if found == nil {
		found = []Conflict{}
	}

	report := &Report{From: in.From, To: in.To, Total: len(found), Conflicts: found}

	summary := Summarize(report)
	for t, n := range summary.ByType {
		uc.metrics.AddConflicts(string(t), n)
	}
	uc.log.Info("conflict audit done",
		zap.String("from", in.From),
		zap.String("to", in.To),
		zap.Int("bookings", len(bookings)),
		zap.Int("blocked_slots", len(blocks)),
		zap.Int("conflicts", report.Total),
	)

	return report, nil
}

func (r Range) validate() error {
	var from, to time.Time
	var err error
	if r.From != "" {
		if from, err = time.Parse(domain.DateLayout, r.From); err != nil {
			return httperr.Invalid("invalid_date", "from %q: want YYYY-MM-DD", r.From)
		}
	}
	if r.To != "" {
		if to, err = time.Parse(domain.DateLayout, r.To); err != nil {
			return httperr.Invalid("invalid_date", "to %q: want YYYY-MM-DD", r.To)
		}
	}
	if r.From != "" && r.To != "" && to.Before(from) {
		return httperr.Invalid("invalid_range", "from %s is after to %s", r.From, r.To)
	}
	return nil
}

// ======================================================
// PARSING
// ======================================================

func (uc *AuditConflicts) parseBookings(rows []models.Booking) []booking {
	out := make([]booking, 0, len(rows))
	for _, r := range rows {
		iv, err := domain.ParseInterval(r.StartTime, r.EndTime)
		if err != nil {
			uc.log.Warn("skipping malformed booking", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		out = append(out, booking{row: r, iv: iv})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].row.Date != out[j].row.Date {
			return out[i].row.Date < out[j].row.Date
		}
		return out[i].iv.Start < out[j].iv.Start
	})
	return out
}

func (uc *AuditConflicts) parseBlocks(rows []models.BlockedSlot) []block {
	out := make([]block, 0, len(rows))
	for _, r := range rows {
		iv, err := domain.ParseInterval(r.StartTime, r.EndTime)
		if err != nil {
			uc.log.Warn("skipping malformed blocked slot", zap.Uint("id", r.ID), zap.Error(err))
			continue
		}
		out = append(out, block{row: r, iv: iv})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].row.Date != out[j].row.Date {
			return out[i].row.Date < out[j].row.Date
		}
		return out[i].iv.Start < out[j].iv.Start
	})
	return out
}

func (uc *AuditConflicts) weeklyWindows(rows []models.WeeklyAvailability) map[int][]domain.Interval {
	out := make(map[int][]domain.Interval)
	for _, r := range rows {
		if !r.Active {
			continue
		}
		iv, err := domain.ParseInterval(r.StartTime, r.EndTime)
		if err != nil {
			uc.log.Warn("skipping malformed availability row", zap.Uint("id", r.ID), zap.Error(err))
			continue
		}
		out[r.DayOfWeek] = append(out[r.DayOfWeek], iv)
	}
	return out
}

// ======================================================
// SCANS
// ======================================================

func intersection(a, b domain.Interval) domain.Interval {
	iv := a
	if b.Start > iv.Start {
		iv.Start = b.Start
	}
	if b.End < iv.End {
		iv.End = b.End
	}
	return iv
}

func newConflict(t Type, date string, iv domain.Interval, desc string) Conflict {
	return Conflict{
		Type:        t,
		Severity:    severityOf(t),
		Date:        date,
		StartTime:   iv.Start.String(),
		EndTime:     iv.End.String(),
		Description: desc,
	}
}

// scanBookingOverlaps expects bookings sorted by date then start.
func scanBookingOverlaps(bookings []booking) []Conflict {
	var out []Conflict
	for i := range bookings {
		a := bookings[i]
		for j := i + 1; j < len(bookings); j++ {
			b := bookings[j]
			if b.row.Date != a.row.Date || b.iv.Start >= a.iv.End {
				break
			}
			c := newConflict(TypeBookingOverlap, a.row.Date, intersection(a.iv, b.iv), fmt.Sprintf(
				"booking %s (%s, %s) overlaps booking %s (%s, %s)",
				a.row.ID, a.iv, a.row.Status, b.row.ID, b.iv, b.row.Status,
			))
			c.BookingIDs = []string{a.row.ID, b.row.ID}
			out = append(out, c)
		}
	}
	return out
}

func scanBookingsBlocked(bookings []booking, blocks []block) []Conflict {
	byDate := make(map[string][]block)
	for _, b := range blocks {
		byDate[b.row.Date] = append(byDate[b.row.Date], b)
	}

	var out []Conflict
	for _, bk := range bookings {
		for _, bl := range byDate[bk.row.Date] {
			if !bk.iv.Overlaps(bl.iv) {
				continue
			}
			desc := fmt.Sprintf("booking %s (%s) overlaps blocked period %s", bk.row.ID, bk.iv, bl.iv)
			if bl.row.Reason != "" {
				desc += " (" + bl.row.Reason + ")"
			}
			c := newConflict(TypeBookingBlocked, bk.row.Date, intersection(bk.iv, bl.iv), desc)
			c.BookingIDs = []string{bk.row.ID}
			c.BlockedSlotIDs = []uint{bl.row.ID}
			out = append(out, c)
		}
	}
	return out
}

func scanOutsideAvailability(bookings []booking, windows map[int][]domain.Interval) []Conflict {
	var out []Conflict
	for _, bk := range bookings {
		d, err := time.Parse(domain.DateLayout, bk.row.Date)
		if err != nil {
			continue
		}
		day := domain.DayOfWeek(d)
		if schedule.Covers(windows[day], bk.iv) {
			continue
		}
		c := newConflict(TypeOutsideAvailability, bk.row.Date, bk.iv, fmt.Sprintf(
			"booking %s (%s) is outside opening hours for %s",
			bk.row.ID, bk.iv, time.Weekday(day),
		))
		c.BookingIDs = []string{bk.row.ID}
		out = append(out, c)
	}
	return out
}

// scanBlockOverlaps expects blocks sorted by date then start.
func scanBlockOverlaps(blocks []block) []Conflict {
	var out []Conflict
	for i := range blocks {
		a := blocks[i]
		for j := i + 1; j < len(blocks); j++ {
			b := blocks[j]
			if b.row.Date != a.row.Date || b.iv.Start >= a.iv.End {
				break
			}
			c := newConflict(TypeBlockOverlap, a.row.Date, intersection(a.iv, b.iv), fmt.Sprintf(
				"blocked period %s overlaps blocked period %s",
				a.iv, b.iv,
			))
			c.BlockedSlotIDs = []uint{a.row.ID, b.row.ID}
			out = append(out, c)
		}
	}
	return out
}

func sortConflicts(in []Conflict) {
	sort.SliceStable(in, func(i, j int) bool {
		if ri, rj := in[i].Severity.rank(), in[j].Severity.rank(); ri != rj {
			return ri < rj
		}
		if in[i].Date != in[j].Date {
			return in[i].Date < in[j].Date
		}
		return in[i].StartTime < in[j].StartTime
	})
}
