// Package billing manages paid subscriptions. A tenant starts on the free
// tier; upgrading creates a pending subscription and a hosted checkout, and
// the payment provider's webhook activates it and migrates the tenant's plan.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/agendanf/agendanf/internal/tenant"
)

var (
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrAlreadySubscribed    = errors.New("billing: tenant already subscribed to this tier")
	ErrFreeTier             = errors.New("billing: free tier needs no subscription")
)

// Status is the subscription lifecycle state. Only one subscription per
// tenant may be active at a time.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
)

// PaymentMethod selects how the checkout collects payment.
type PaymentMethod string

const (
	MethodCard PaymentMethod = "card"
	MethodPix  PaymentMethod = "pix"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == MethodCard || m == MethodPix
}

// Subscription records a tenant's paid plan.
type Subscription struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"-"`
	Tier        tenant.Tier   `json:"tier"`
	Status      Status        `json:"status"`
	Method      PaymentMethod `json:"method"`
	CheckoutID  string        `json:"-"`
	PriceCents  int64         `json:"price_cents"`
	ActivatedAt *time.Time    `json:"activated_at,omitempty"`
	CanceledAt  *time.Time    `json:"canceled_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Checkout is a hosted payment page created by a Gateway.
type Checkout struct {
	ID  string
	URL string
}

// Gateway creates hosted checkouts with a payment provider.
type Gateway interface {
	CreateCheckout(ctx context.Context, sub *Subscription, plan tenant.PlanConfig) (*Checkout, error)
}

// Store persists subscriptions.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	GetActive(ctx context.Context, tenantID string) (*Subscription, error)
	GetByCheckoutID(ctx context.Context, checkoutID string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
}
