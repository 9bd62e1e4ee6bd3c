package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/agendanf/agendanf/internal/auth"
	"github.com/agendanf/agendanf/internal/logging"
	"github.com/agendanf/agendanf/internal/tenant"
)

// maxWebhookBody bounds webhook payloads; Stripe events are small.
const maxWebhookBody = 64 * 1024

// Handler provides HTTP endpoints for billing.
type Handler struct {
	svc           *Service
	webhookSecret string
}

// NewHandler creates a billing handler. webhookSecret verifies Stripe event
// signatures.
func NewHandler(svc *Service, webhookSecret string) *Handler {
	return &Handler{svc: svc, webhookSecret: webhookSecret}
}

// RegisterRoutes sets up billing routes. ready is a group requiring a ready
// session; public hosts the webhook, which Stripe calls unauthenticated and
// is verified by signature instead.
func (h *Handler) RegisterRoutes(ready, public gin.IRouter) {
	ready.POST("/billing/checkout", h.Checkout)
	ready.GET("/billing/subscription", h.Subscription)
	ready.DELETE("/billing/subscription", h.Cancel)
	public.POST("/webhooks/stripe", h.Webhook)
}

// Checkout handles POST /v1/billing/checkout
func (h *Handler) Checkout(c *gin.Context) {
	var req struct {
		Tier   tenant.Tier   `json:"tier" binding:"required"`
		Method PaymentMethod `json:"method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "tier required"})
		return
	}
	if req.Method == "" {
		req.Method = MethodCard
	}
	if !req.Method.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_method", "message": "method must be card or pix"})
		return
	}

	sub, url, err := h.svc.StartCheckout(c.Request.Context(), auth.GetTenantID(c), req.Tier, req.Method)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrUnknownTier):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_tier", "message": "tier does not exist"})
		case errors.Is(err, ErrFreeTier):
			c.JSON(http.StatusBadRequest, gin.H{"error": "free_tier", "message": "the free tier does not require checkout"})
		case errors.Is(err, ErrAlreadySubscribed):
			c.JSON(http.StatusConflict, gin.H{"error": "already_subscribed", "message": "this tier is already active"})
		default:
			logging.L(c.Request.Context()).Error("checkout failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to start checkout"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subscription": sub, "checkout_url": url})
}

// Subscription handles GET /v1/billing/subscription
func (h *Handler) Subscription(c *gin.Context) {
	sub, err := h.svc.Active(c.Request.Context(), auth.GetTenantID(c))
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no_subscription", "message": "no active subscription"})
			return
		}
		logging.L(c.Request.Context()).Error("subscription lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// Cancel handles DELETE /v1/billing/subscription
func (h *Handler) Cancel(c *gin.Context) {
	sub, err := h.svc.Cancel(c.Request.Context(), auth.GetTenantID(c))
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no_subscription", "message": "no active subscription"})
			return
		}
		logging.L(c.Request.Context()).Error("subscription cancel failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to cancel subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// Webhook handles POST /v1/webhooks/stripe. Unknown event types and events
// for checkouts this environment never created are acknowledged so Stripe
// stops redelivering them.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "could not read payload"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature", "message": "signature verification failed"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "malformed event data"})
			return
		}
		if err := h.svc.ActivateCheckout(ctx, sess.ID); err != nil {
			if errors.Is(err, ErrSubscriptionNotFound) {
				logging.L(ctx).Warn("webhook for unknown checkout", "checkout_id", sess.ID)
				break
			}
			logging.L(ctx).Error("subscription activation failed", "error", err, "checkout_id", sess.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "activation failed"})
			return
		}
	default:
		logging.L(ctx).Debug("ignoring webhook event", "type", event.Type)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
