package tenant

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agendanf/agendanf/internal/auth"
	"github.com/agendanf/agendanf/internal/idgen"
	"github.com/agendanf/agendanf/internal/logging"
	"github.com/agendanf/agendanf/internal/quota"
	"github.com/agendanf/agendanf/internal/validation"
)

var validSlug = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// Binder attaches a freshly created tenant to the onboarding user.
type Binder interface {
	BindTenant(ctx context.Context, userID, tenantID string) error
}

// Handler provides HTTP endpoints for onboarding and tenant management.
type Handler struct {
	store    Store
	binder   Binder
	enforcer *quota.Enforcer
}

// NewHandler creates a tenant handler.
func NewHandler(store Store, binder Binder, enforcer *quota.Enforcer) *Handler {
	return &Handler{store: store, binder: binder, enforcer: enforcer}
}

// RegisterRoutes sets up the tenant routes. Onboarding needs a session that
// is not yet ready, so it sits behind the session middleware only; everything
// under /tenants/me additionally requires a ready session.
func (h *Handler) RegisterRoutes(r gin.IRouter, session, ready gin.HandlerFunc) {
	r.GET("/v1/plans", h.ListPlans)

	grp := r.Group("/v1", session)
	grp.POST("/tenants", h.CreateTenant)

	me := grp.Group("/tenants/me", ready)
	me.GET("", h.GetTenant)
	me.PATCH("", h.UpdateTenant)
	me.GET("/usage", h.Usage)
}

// ListPlans handles GET /v1/plans — the public plan catalogue.
func (h *Handler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": AllPlans()})
}

// CreateTenant handles POST /v1/tenants — the onboarding step that creates
// the company and binds it to the signed-in user. New tenants always start
// on the free tier; upgrades go through billing.
func (h *Handler) CreateTenant(c *gin.Context) {
	if auth.GetTenantID(c) != "" {
		c.JSON(http.StatusConflict, gin.H{"error": "already_onboarded", "message": "user already has a tenant"})
		return
	}

	var req struct {
		Name    string `json:"name" binding:"required"`
		Slug    string `json:"slug" binding:"required"`
		CNPJ    string `json:"cnpj"`
		Segment string `json:"segment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name and slug required"})
		return
	}

	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if !validSlug.MatchString(req.Slug) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_slug",
			"message": "slug must be 3-64 lowercase alphanumeric/hyphens, start/end with alphanumeric",
		})
		return
	}
	if req.CNPJ != "" && !validation.IsValidCNPJ(req.CNPJ) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cnpj", "message": "invalid CNPJ"})
		return
	}

	now := time.Now()
	t := &Tenant{
		ID:        idgen.WithPrefix("ten_"),
		Name:      validation.SanitizeString(req.Name, 200),
		Slug:      req.Slug,
		CNPJ:      validation.NormalizeCNPJ(req.CNPJ),
		Segment:   validation.SanitizeString(req.Segment, 100),
		Tier:      TierFree,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.Create(c.Request.Context(), t); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug_taken", "message": "slug already in use"})
			return
		}
		logging.L(c.Request.Context()).Error("tenant creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create tenant"})
		return
	}

	if err := h.binder.BindTenant(c.Request.Context(), auth.GetUserID(c), t.ID); err != nil {
		if errors.Is(err, auth.ErrTenantBound) {
			c.JSON(http.StatusConflict, gin.H{"error": "already_onboarded", "message": "user already has a tenant"})
			return
		}
		logging.L(c.Request.Context()).Error("tenant binding failed", "tenant_id", t.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to bind tenant"})
		return
	}

	plan, _ := PlanFor(t.Tier)
	c.JSON(http.StatusCreated, gin.H{"tenant": t, "plan": plan})
}

// GetTenant handles GET /v1/tenants/me
func (h *Handler) GetTenant(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), auth.GetTenantID(c))
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load tenant"})
		return
	}

	plan, err := PlanFor(t.Tier)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "unknown plan tier"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t, "plan": plan})
}

// UpdateTenant handles PATCH /v1/tenants/me — profile fields only. Tier
// changes go through billing, never through this endpoint.
func (h *Handler) UpdateTenant(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), auth.GetTenantID(c))
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load tenant"})
		return
	}

	var req struct {
		Name    *string `json:"name"`
		CNPJ    *string `json:"cnpj"`
		Segment *string `json:"segment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	if req.Name != nil {
		t.Name = validation.SanitizeString(*req.Name, 200)
	}
	if req.CNPJ != nil {
		if *req.CNPJ != "" && !validation.IsValidCNPJ(*req.CNPJ) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cnpj", "message": "invalid CNPJ"})
			return
		}
		t.CNPJ = validation.NormalizeCNPJ(*req.CNPJ)
	}
	if req.Segment != nil {
		t.Segment = validation.SanitizeString(*req.Segment, 100)
	}
	t.UpdatedAt = time.Now()

	if err := h.store.Update(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to update tenant"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// Usage handles GET /v1/tenants/me/usage — current-month consumption against
// plan limits for each quota-governed resource.
func (h *Handler) Usage(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := auth.GetTenantID(c)

	appointments, err := h.enforcer.CanCreate(ctx, tenantID, quota.KindAppointment)
	if err != nil {
		logging.L(ctx).Error("usage check failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to compute usage"})
		return
	}
	invoices, err := h.enforcer.CanCreate(ctx, tenantID, quota.KindInvoice)
	if err != nil {
		logging.L(ctx).Error("usage check failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to compute usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"period":       appointments.Period,
		"appointments": appointments,
		"invoices":     invoices,
	})
}
