package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/agendanf/agendanf/internal/clock"
)

func testConfig() Config {
	return Config{
		Limits: map[Category]Limit{
			CategoryDefault: {MaxRequests: 100, Window: time.Minute},
			CategoryAuth:    {MaxRequests: 5, Window: time.Minute},
			CategoryCreate:  {MaxRequests: 20, Window: time.Minute},
		},
		// No background sweeper in tests; Sweep is called explicitly.
	}
}

func newTestLimiter(opts ...Option) (*Limiter, *clock.Fake) {
	fake := &clock.Fake{Current: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)}
	opts = append(opts, WithClock(fake))
	return New(testConfig(), opts...), fake
}

func TestAllowExactBudget(t *testing.T) {
	l, _ := newTestLimiter()

	// Exactly MaxRequests calls succeed, the next one is denied.
	for i := 0; i < 20; i++ {
		if res := l.Allow("user-1", CategoryCreate); !res.Allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	res := l.Allow("user-1", CategoryCreate)
	if res.Allowed {
		t.Fatal("call 21 should be denied")
	}
	if !res.JustBlocked {
		t.Error("first denial should report JustBlocked")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Errorf("retry-after out of range: %v", res.RetryAfter)
	}
}

func TestBlockSignalFiresOncePerTransition(t *testing.T) {
	var calls int
	l, fake := newTestLimiter(WithOnBlocked(func(actor string, cat Category, retryAfter time.Duration) {
		calls++
	}))

	for i := 0; i < 8; i++ {
		l.Allow("u", CategoryAuth)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 block signal, got %d", calls)
	}

	// A new window blocks again: one more signal.
	fake.Advance(2 * time.Minute)
	for i := 0; i < 8; i++ {
		l.Allow("u", CategoryAuth)
	}
	if calls != 2 {
		t.Errorf("expected 2 block signals after second window, got %d", calls)
	}
}

func TestWindowReset(t *testing.T) {
	l, fake := newTestLimiter()

	for i := 0; i < 6; i++ {
		l.Allow("u", CategoryAuth)
	}
	if l.Allow("u", CategoryAuth).Allowed {
		t.Fatal("should be blocked within window")
	}

	fake.Advance(61 * time.Second)
	res := l.Allow("u", CategoryAuth)
	if !res.Allowed {
		t.Fatal("should be allowed after window expiry")
	}
	if res.Remaining != 4 {
		t.Errorf("fresh window should have 4 remaining, got %d", res.Remaining)
	}
}

func TestActorsAndCategoriesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 6; i++ {
		l.Allow("user-a", CategoryAuth)
	}
	if l.Allow("user-a", CategoryAuth).Allowed {
		t.Error("user-a auth should be blocked")
	}
	if !l.Allow("user-b", CategoryAuth).Allowed {
		t.Error("user-b auth should be unaffected")
	}
	if !l.Allow("user-a", CategoryCreate).Allowed {
		t.Error("user-a create should be unaffected")
	}
}

func TestUnknownCategoryFallsBackToDefault(t *testing.T) {
	l, _ := newTestLimiter()

	res := l.Allow("u", Category("exotic"))
	if !res.Allowed {
		t.Fatal("first call should be allowed")
	}
	if res.Remaining != 99 {
		t.Errorf("expected default budget of 100, got remaining %d", res.Remaining)
	}
}

func TestSweepDropsExpiredBuckets(t *testing.T) {
	l, fake := newTestLimiter()

	l.Allow("u1", CategoryAuth)
	l.Allow("u2", CategoryCreate)

	fake.Advance(2 * time.Minute)
	l.Sweep(fake.Now())

	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("expected all buckets swept, %d remain", n)
	}
}

func TestConcurrentAllowSameBucket(t *testing.T) {
	l, _ := newTestLimiter()

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared", CategoryCreate).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Budget is 20: exactly 20 of the 50 concurrent calls may pass.
	if allowed != 20 {
		t.Errorf("expected exactly 20 allowed, got %d", allowed)
	}
}
