package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/agendanf/agendanf/internal/tenant"
)

// StripeGateway creates Stripe Checkout sessions for plan upgrades. The
// tenant ID travels as the session's client reference so the webhook can
// route the completion back to a subscription.
type StripeGateway struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewStripeGateway creates a gateway bound to a Stripe account.
func NewStripeGateway(secretKey, successURL, cancelURL string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, successURL: successURL, cancelURL: cancelURL}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, sub *Subscription, plan tenant.PlanConfig) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(sub.TenantID),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("brl"),
				UnitAmount: stripe.Int64(plan.MonthlyPriceCents),
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String("month"),
				},
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("AgendaNF " + plan.Name),
				},
			},
		}},
		PaymentMethodTypes: stripe.StringSlice(paymentMethodTypes(sub.Method)),
	}
	params.Context = ctx
	params.AddMetadata("subscription_id", sub.ID)
	params.AddMetadata("tier", string(sub.Tier))

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Checkout{ID: sess.ID, URL: sess.URL}, nil
}

func paymentMethodTypes(m PaymentMethod) []string {
	if m == MethodPix {
		return []string{"pix", "card"}
	}
	return []string{"card"}
}

var _ Gateway = (*StripeGateway)(nil)
