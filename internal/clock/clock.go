// Package clock provides an injectable clock plus the time-window arithmetic
// used by rate limiting and monthly quota accounting.
package clock

import (
	"fmt"
	"time"
)

// Clock supplies the current time. Production code uses System; tests inject
// a fake to make window expiry and period rollover deterministic.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fake is a manually advanced clock for tests.
type Fake struct {
	Current time.Time
}

func (f *Fake) Now() time.Time { return f.Current }

// Advance moves the fake clock forward.
func (f *Fake) Advance(d time.Duration) { f.Current = f.Current.Add(d) }

// Expired reports whether a fixed window that started at start has elapsed.
func Expired(start, now time.Time, window time.Duration) bool {
	return now.Sub(start) > window
}

// Remaining returns how long until a fixed window that started at start
// expires. Returns zero if the window has already elapsed.
func Remaining(start, now time.Time, window time.Duration) time.Duration {
	left := window - now.Sub(start)
	if left < 0 {
		return 0
	}
	return left
}

// PeriodKey returns the calendar-month key ("YYYY-MM") for t.
// Usage counters are bucketed by this key; there is no explicit reset — a new
// month simply produces a new key.
func PeriodKey(t time.Time) string {
	return t.Format("2006-01")
}

// CurrentPeriod returns the period key for the clock's current time.
func CurrentPeriod(c Clock) string {
	return PeriodKey(c.Now())
}

// PeriodBounds returns the half-open interval [start, end) covered by a
// period key, suitable for created_at range queries.
func PeriodBounds(key string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", key)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("clock: invalid period key %q: %w", key, err)
	}
	return start, start.AddDate(0, 1, 0), nil
}
