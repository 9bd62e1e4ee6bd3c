// Package quota enforces plan-based monthly resource limits.
//
// The enforcer's answer is advisory when used pre-flight (fast feedback for
// the UI) and authoritative when re-checked inside the write transaction by
// the resource stores. Usage is always an exact count of rows created in the
// current calendar month, never a cached estimate.
package quota

import (
	"context"
	"fmt"

	"github.com/agendanf/agendanf/internal/clock"
	"github.com/agendanf/agendanf/internal/metrics"
)

// Kind identifies a quota-limited resource.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindInvoice     Kind = "invoice"
)

// Unlimited marks a monthly limit with no cap.
const Unlimited = -1

// UsageStore reads authoritative usage counts from the data store.
type UsageStore interface {
	// CountInPeriod returns the number of resources of the given kind the
	// tenant created within the period ("YYYY-MM").
	CountInPeriod(ctx context.Context, tenantID string, kind Kind, period string) (int, error)
}

// LimitResolver resolves the tenant's active plan limit for a resource kind.
// Unlimited (-1) means no cap.
type LimitResolver interface {
	MonthlyLimit(ctx context.Context, tenantID string, kind Kind) (int, error)
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Usage   int    `json:"usage"`
	Limit   int    `json:"limit"`
	Kind    Kind   `json:"kind"`
	Period  string `json:"period"`
}

// ExceededError carries the usage/limit pair of a denied mutation. Terminal
// for the current billing period unless the tenant upgrades.
type ExceededError struct {
	Kind  Kind
	Usage int
	Limit int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota: %s limit reached (%d/%d)", e.Kind, e.Usage, e.Limit)
}

// Denial is delivered to the upgrade-prompt signal consumer.
type Denial struct {
	TenantID string
	Kind     Kind
	Usage    int
	Limit    int
}

// DeniedFunc consumes upgrade-prompt signals. The enforcer never renders UI;
// the presentation layer turns this into an upgrade call-to-action.
type DeniedFunc func(Denial)

// Enforcer combines plan limits with current usage to authorize tenant-scoped
// mutations.
type Enforcer struct {
	limits   LimitResolver
	usage    UsageStore
	clk      clock.Clock
	onDenied DeniedFunc
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithClock injects a clock (tests).
func WithClock(c clock.Clock) Option {
	return func(e *Enforcer) { e.clk = c }
}

// WithOnDenied registers the upgrade-prompt signal consumer.
func WithOnDenied(fn DeniedFunc) Option {
	return func(e *Enforcer) { e.onDenied = fn }
}

// NewEnforcer creates a quota enforcer.
func NewEnforcer(limits LimitResolver, usage UsageStore, opts ...Option) *Enforcer {
	e := &Enforcer{limits: limits, usage: usage, clk: clock.System{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CanCreate reports whether the tenant may create one more resource of the
// given kind in the current period. Store failures propagate: mutating
// callers must fail closed on error.
func (e *Enforcer) CanCreate(ctx context.Context, tenantID string, kind Kind) (Decision, error) {
	period := clock.CurrentPeriod(e.clk)

	limit, err := e.limits.MonthlyLimit(ctx, tenantID, kind)
	if err != nil {
		return Decision{}, fmt.Errorf("quota: resolve limit: %w", err)
	}

	usage, err := e.usage.CountInPeriod(ctx, tenantID, kind, period)
	if err != nil {
		return Decision{}, fmt.Errorf("quota: count usage: %w", err)
	}

	d := Decision{Usage: usage, Limit: limit, Kind: kind, Period: period}
	if limit == Unlimited || usage < limit {
		d.Allowed = true
		return d, nil
	}

	metrics.QuotaDenialsTotal.WithLabelValues(string(kind)).Inc()
	if e.onDenied != nil {
		e.onDenied(Denial{TenantID: tenantID, Kind: kind, Usage: usage, Limit: limit})
	}
	return d, nil
}
