package timex

import "time"

// Clock is the time source injected into services.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Stamp normalizes t to the precision both stores keep: UTC, microseconds.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// DateLayout is the civil-date format used for energy budgets.
const DateLayout = "2006-01-02"

// DateIn returns the civil date of t in loc.
func DateIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}
