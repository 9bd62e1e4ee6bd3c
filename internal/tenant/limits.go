package tenant

import (
	"context"
	"fmt"

	"github.com/agendanf/agendanf/internal/quota"
)

// Limits resolves quota limits from the tenant's active plan tier.
type Limits struct {
	store Store
}

// NewLimits creates a plan-backed limit resolver.
func NewLimits(store Store) *Limits {
	return &Limits{store: store}
}

// MonthlyLimit returns the tenant's plan cap for a resource kind. An unknown
// tenant, tier, or kind is an error: a mutation must never proceed on a
// guessed limit.
func (l *Limits) MonthlyLimit(ctx context.Context, tenantID string, kind quota.Kind) (int, error) {
	t, err := l.store.Get(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	cfg, err := PlanFor(t.Tier)
	if err != nil {
		return 0, err
	}
	switch kind {
	case quota.KindAppointment:
		return cfg.MonthlyAppointmentLimit, nil
	case quota.KindInvoice:
		return cfg.MonthlyInvoiceLimit, nil
	default:
		return 0, fmt.Errorf("tenant: no plan limit for kind %q", kind)
	}
}

var _ quota.LimitResolver = (*Limits)(nil)
