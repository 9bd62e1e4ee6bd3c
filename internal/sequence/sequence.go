// Package sequence assigns tenant-scoped, monotonically increasing document
// codes for issued invoices.
//
// Codes are "NF" plus a zero-padded six-digit integer. Two concurrent
// issuance requests for the same tenant must never receive the same number;
// gaps are tolerable, duplicates are not.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/agendanf/agendanf/internal/clock"
	"github.com/agendanf/agendanf/internal/idgen"
	"github.com/agendanf/agendanf/internal/metrics"
	"github.com/agendanf/agendanf/internal/retry"
)

// ErrUnavailable is returned when the sequence store cannot complete the
// transaction even after retries. Issuance must fail with it: a code is never
// handed out without the invoice row persisting in the same operation.
var ErrUnavailable = errors.New("sequence: store unavailable")

// Store advances per-tenant sequences atomically.
type Store interface {
	// Next increments and returns the tenant's sequence number in a single
	// atomic operation.
	Next(ctx context.Context, tenantID string) (int64, error)
}

// FormatCode renders a sequence number as a document code, e.g. 41 ->
// "NF000041". Numbers beyond six digits simply widen.
func FormatCode(n int64) string {
	return fmt.Sprintf("NF%06d", n)
}

// Generator produces document codes, retrying transient store conflicts
// internally so callers only ever see success or ErrUnavailable.
type Generator struct {
	store       Store
	clk         clock.Clock
	maxAttempts int
	baseDelay   time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock injects a clock (tests and the fallback path).
func WithClock(c clock.Clock) Option {
	return func(g *Generator) { g.clk = c }
}

// WithMaxAttempts bounds internal conflict retries.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) { g.maxAttempts = n }
}

// NewGenerator creates a code generator over the given store.
func NewGenerator(store Store, opts ...Option) *Generator {
	g := &Generator{
		store:       store,
		clk:         clock.System{},
		maxAttempts: 3,
		baseDelay:   10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NextCode returns the tenant's next document code. Serialization conflicts
// are retried up to the configured bound; exhaustion or any other store
// failure surfaces as ErrUnavailable.
func (g *Generator) NextCode(ctx context.Context, tenantID string) (string, error) {
	var n int64
	err := retry.Do(ctx, g.maxAttempts, g.baseDelay, func() error {
		var nextErr error
		n, nextErr = g.store.Next(ctx, tenantID)
		if nextErr == nil {
			return nil
		}
		if IsConflict(nextErr) {
			metrics.SequenceRetriesTotal.Inc()
			return nextErr
		}
		return retry.Permanent(nextErr)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return FormatCode(n), nil
}

// FallbackCode derives a code from a high-resolution timestamp plus random
// suffix. Not sequential; used only when the primary path is unavailable and
// a collision-resistant code is still required.
func (g *Generator) FallbackCode() string {
	return fmt.Sprintf("NF%d%s", g.clk.Now().UnixMicro(), idgen.Hex(2))
}

// IsConflict reports whether a Postgres error is a retryable serialization
// failure or deadlock. Exported because invoice issuance runs the sequence
// advance inside its own transaction and needs the same retry decision.
func IsConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
