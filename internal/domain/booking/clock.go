package booking

import (
	"fmt"
	"time"
)

// Minute is a time of day expressed as minutes since midnight. All slot
// arithmetic happens on Minute; "HH:MM" strings only exist at the edges.
type Minute int

const (
	DayEnd     Minute = 24 * 60
	DateLayout        = "2006-01-02"
)

// ParseClock parses a zero-padded "HH:MM" string.
func ParseClock(s string) (Minute, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, okH := twoDigits(s[0:2])
	m, okM := twoDigits(s[3:5])
	if !okH || !okM || h > 23 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return Minute(h*60 + m), nil
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Interval is a half-open [Start, End) range within one day.
type Interval struct {
	Start Minute
	End   Minute
}

// ParseInterval parses a start/end pair and rejects empty or inverted ranges.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	if s >= e {
		return Interval{}, fmt.Errorf("invalid range %s-%s: start must be before end", start, end)
	}
	return Interval{Start: s, End: e}, nil
}

// Overlaps is strict: intervals that only touch at a boundary do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && i.End > o.Start
}

func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

// ParseDate parses a "YYYY-MM-DD" calendar date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// DayOfWeek maps a calendar date to the stored weekday number, which follows
// time.Weekday (0 = Sunday ... 6 = Saturday).
func DayOfWeek(date time.Time) int {
	return int(date.Weekday())
}

// DaysBetween counts calendar days from a to b, ignoring the time of day and
// DST shifts.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// At returns the instant of a date and time of day in loc.
func At(date time.Time, m Minute, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(m)/60, int(m)%60, 0, 0, loc)
}
