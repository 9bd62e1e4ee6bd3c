package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agendanf/agendanf/internal/idgen"
	"github.com/agendanf/agendanf/internal/logging"
	"github.com/agendanf/agendanf/internal/metrics"
	"github.com/agendanf/agendanf/internal/tenant"
)

// Service coordinates checkouts and subscription activation.
type Service struct {
	store   Store
	tenants tenant.Store
	gateway Gateway
}

// NewService creates a billing service.
func NewService(store Store, tenants tenant.Store, gateway Gateway) *Service {
	return &Service{store: store, tenants: tenants, gateway: gateway}
}

// StartCheckout creates a pending subscription and a hosted checkout for the
// requested tier. The subscription only becomes active when the provider's
// webhook confirms payment.
func (s *Service) StartCheckout(ctx context.Context, tenantID string, tier tenant.Tier, method PaymentMethod) (*Subscription, string, error) {
	plan, err := tenant.PlanFor(tier)
	if err != nil {
		return nil, "", err
	}
	if plan.MonthlyPriceCents == 0 {
		return nil, "", ErrFreeTier
	}

	if active, err := s.store.GetActive(ctx, tenantID); err == nil && active.Tier == tier {
		return nil, "", ErrAlreadySubscribed
	} else if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, "", fmt.Errorf("billing: check active subscription: %w", err)
	}

	now := time.Now()
	sub := &Subscription{
		ID:         idgen.WithPrefix("sub_"),
		TenantID:   tenantID,
		Tier:       tier,
		Status:     StatusPending,
		Method:     method,
		PriceCents: plan.MonthlyPriceCents,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	checkout, err := s.gateway.CreateCheckout(ctx, sub, plan)
	if err != nil {
		return nil, "", fmt.Errorf("billing: create checkout: %w", err)
	}
	sub.CheckoutID = checkout.ID

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, "", fmt.Errorf("billing: persist subscription: %w", err)
	}

	metrics.CheckoutsCreatedTotal.Inc()
	return sub, checkout.URL, nil
}

// ActivateCheckout marks the subscription behind a completed checkout as
// active and migrates the tenant to its tier. Redelivered webhooks are
// idempotent; a previously active subscription is superseded so only one
// stays active per tenant.
func (s *Service) ActivateCheckout(ctx context.Context, checkoutID string) error {
	sub, err := s.store.GetByCheckoutID(ctx, checkoutID)
	if err != nil {
		return err
	}
	if sub.Status == StatusActive {
		return nil
	}

	now := time.Now()
	if prev, err := s.store.GetActive(ctx, sub.TenantID); err == nil {
		prev.Status = StatusCanceled
		prev.CanceledAt = &now
		prev.UpdatedAt = now
		if err := s.store.Update(ctx, prev); err != nil {
			return fmt.Errorf("billing: supersede subscription: %w", err)
		}
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return fmt.Errorf("billing: check active subscription: %w", err)
	}

	sub.Status = StatusActive
	sub.ActivatedAt = &now
	sub.UpdatedAt = now
	if err := s.store.Update(ctx, sub); err != nil {
		return fmt.Errorf("billing: activate subscription: %w", err)
	}

	if err := s.tenants.SetTier(ctx, sub.TenantID, sub.Tier); err != nil {
		return fmt.Errorf("billing: migrate tenant tier: %w", err)
	}

	logging.L(ctx).Info("subscription activated",
		"tenant_id", sub.TenantID, "tier", sub.Tier, "subscription_id", sub.ID)
	return nil
}

// Cancel ends the tenant's active subscription and returns it to the free
// tier at once. Proration is out of scope.
func (s *Service) Cancel(ctx context.Context, tenantID string) (*Subscription, error) {
	sub, err := s.store.GetActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub.Status = StatusCanceled
	sub.CanceledAt = &now
	sub.UpdatedAt = now
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("billing: cancel subscription: %w", err)
	}
	if err := s.tenants.SetTier(ctx, tenantID, tenant.TierFree); err != nil {
		return nil, fmt.Errorf("billing: downgrade tenant tier: %w", err)
	}
	return sub, nil
}

// Active returns the tenant's active subscription.
func (s *Service) Active(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.store.GetActive(ctx, tenantID)
}
