package timezone

import "time"

const DefaultTimezone = "Europe/Paris"

func IsValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

func Location(tz string) *time.Location {
	if IsValid(tz) {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}

	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clock gives the salon's current time. Operations read it once.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type SalonClock struct {
	loc *time.Location
}

func NewSalonClock(tz string) SalonClock {
	return SalonClock{loc: Location(tz)}
}

func (c SalonClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c SalonClock) Location() *time.Location {
	return c.loc
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time {
	return c.At
}

func (c FixedClock) Location() *time.Location {
	return c.At.Location()
}
