// Package ratelimit provides per-actor, per-category request throttling for
// the AgendaNF API.
//
// Limits are fixed windows: each (actor, category) pair owns one bucket that
// counts calls since its window started. Buckets are in-process only; they do
// not survive a restart, which is acceptable for an abuse throttle.
package ratelimit

import (
	"sync"
	"time"

	"github.com/agendanf/agendanf/internal/clock"
)

// Category classifies an action for throttling purposes, independent of
// billing quotas.
type Category string

const (
	CategoryDefault Category = "default"
	CategoryAuth    Category = "auth"
	CategoryCreate  Category = "create"
	CategoryUpdate  Category = "update"
	CategoryDelete  Category = "delete"
)

// Limit is the budget for one category.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Config configures the limiter.
type Config struct {
	// Limits maps categories to their budgets. Unknown categories fall back
	// to CategoryDefault.
	Limits map[Category]Limit
	// SweepInterval is how often the background sweeper drops expired
	// buckets. Zero disables the background sweeper; Sweep can still be
	// called explicitly.
	SweepInterval time.Duration
}

// DefaultConfig returns the standard budgets.
func DefaultConfig() Config {
	return Config{
		Limits: map[Category]Limit{
			CategoryDefault: {MaxRequests: 100, Window: time.Minute},
			CategoryAuth:    {MaxRequests: 5, Window: time.Minute},
			CategoryCreate:  {MaxRequests: 20, Window: time.Minute},
			CategoryUpdate:  {MaxRequests: 30, Window: time.Minute},
			CategoryDelete:  {MaxRequests: 10, Window: time.Minute},
		},
		SweepInterval: time.Minute,
	}
}

// Result is the outcome of a single Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the current window resets. Only
	// meaningful when Allowed is false.
	RetryAfter time.Duration
	// JustBlocked is true only on the call that crossed the limit, so
	// callers can emit a "too many requests" signal once per block
	// transition instead of on every subsequent denial.
	JustBlocked bool
}

// BlockedFunc is notified once per block transition.
type BlockedFunc func(actor string, cat Category, retryAfter time.Duration)

type bucketKey struct {
	actor string
	cat   Category
}

type bucket struct {
	count       int
	windowStart time.Time
	blocked     bool
}

// Limiter tracks fixed-window buckets keyed by actor and category.
type Limiter struct {
	cfg       Config
	clk       clock.Clock
	onBlocked BlockedFunc

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	stop    chan struct{}
	stopped sync.Once
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a clock (tests).
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clk = c }
}

// WithOnBlocked registers a callback fired once per block transition.
func WithOnBlocked(fn BlockedFunc) Option {
	return func(l *Limiter) { l.onBlocked = fn }
}

// New creates a limiter. If cfg.SweepInterval is non-zero a background
// sweeper is started; call Stop to terminate it.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Limits == nil {
		cfg.Limits = DefaultConfig().Limits
	}
	l := &Limiter{
		cfg:     cfg,
		clk:     clock.System{},
		buckets: make(map[bucketKey]*bucket),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if cfg.SweepInterval > 0 {
		go l.sweeper()
	}
	return l
}

// limitFor resolves the budget for a category, falling back to default.
func (l *Limiter) limitFor(cat Category) Limit {
	if lim, ok := l.cfg.Limits[cat]; ok {
		return lim
	}
	return l.cfg.Limits[CategoryDefault]
}

// Allow records one call for (actor, cat) and reports whether it is within
// budget. It never fails: the limiter has no external I/O, and a missing
// bucket counts as zero usage.
func (l *Limiter) Allow(actor string, cat Category) Result {
	lim := l.limitFor(cat)
	now := l.clk.Now()
	key := bucketKey{actor: actor, cat: cat}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || clock.Expired(b.windowStart, now, lim.Window) {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		return Result{Allowed: true, Remaining: lim.MaxRequests - 1}
	}

	b.count++
	if b.count <= lim.MaxRequests {
		return Result{Allowed: true, Remaining: lim.MaxRequests - b.count}
	}

	retryAfter := clock.Remaining(b.windowStart, now, lim.Window)
	justBlocked := !b.blocked
	b.blocked = true

	if justBlocked && l.onBlocked != nil {
		l.onBlocked(actor, cat, retryAfter)
	}

	return Result{Allowed: false, RetryAfter: retryAfter, JustBlocked: justBlocked}
}

// Sweep drops buckets whose window has expired. Exposed so tests and
// deterministic callers can clean up without a background timer.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if clock.Expired(b.windowStart, now, l.limitFor(key.cat).Window) {
			delete(l.buckets, key)
		}
	}
}

// Stop terminates the background sweeper.
func (l *Limiter) Stop() {
	l.stopped.Do(func() { close(l.stop) })
}

func (l *Limiter) sweeper() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep(l.clk.Now())
		case <-l.stop:
			return
		}
	}
}
