package clock

import (
	"testing"
	"time"
)

func TestExpired(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if Expired(start, start.Add(59*time.Second), time.Minute) {
		t.Error("window should not be expired at 59s")
	}
	if Expired(start, start.Add(time.Minute), time.Minute) {
		t.Error("window should not be expired at exactly 60s")
	}
	if !Expired(start, start.Add(61*time.Second), time.Minute) {
		t.Error("window should be expired at 61s")
	}
}

func TestRemaining(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if got := Remaining(start, start.Add(40*time.Second), time.Minute); got != 20*time.Second {
		t.Errorf("expected 20s remaining, got %v", got)
	}
	if got := Remaining(start, start.Add(2*time.Minute), time.Minute); got != 0 {
		t.Errorf("expected 0 remaining after expiry, got %v", got)
	}
}

func TestPeriodKey(t *testing.T) {
	if got := PeriodKey(time.Date(2026, 8, 27, 23, 59, 0, 0, time.UTC)); got != "2026-08" {
		t.Errorf("expected 2026-08, got %s", got)
	}
	if got := PeriodKey(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); got != "2026-01" {
		t.Errorf("expected 2026-01, got %s", got)
	}
}

func TestPeriodBounds(t *testing.T) {
	start, end, err := PeriodBounds("2026-12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start != time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("wrong start: %v", start)
	}
	// December rolls over into January of the next year.
	if end != time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("wrong end: %v", end)
	}

	if _, _, err := PeriodBounds("not-a-period"); err == nil {
		t.Error("expected error for malformed period key")
	}
}

func TestFakeClock(t *testing.T) {
	f := &Fake{Current: time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)}
	if CurrentPeriod(f) != "2026-08" {
		t.Errorf("expected 2026-08, got %s", CurrentPeriod(f))
	}
	f.Advance(2 * time.Hour)
	if CurrentPeriod(f) != "2026-09" {
		t.Errorf("expected rollover to 2026-09, got %s", CurrentPeriod(f))
	}
}
