package invoices

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agendanf/agendanf/internal/auth"
	"github.com/agendanf/agendanf/internal/idgen"
	"github.com/agendanf/agendanf/internal/logging"
	"github.com/agendanf/agendanf/internal/pagination"
	"github.com/agendanf/agendanf/internal/quota"
	"github.com/agendanf/agendanf/internal/sequence"
	"github.com/agendanf/agendanf/internal/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler provides HTTP endpoints for invoices.
type Handler struct {
	svc   *Service
	store Store
}

// NewHandler creates an invoice handler.
func NewHandler(svc *Service, store Store) *Handler {
	return &Handler{svc: svc, store: store}
}

// RegisterRoutes sets up the invoice routes on a group that already requires
// a ready session.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/invoices", h.Issue)
	r.GET("/invoices", h.List)
	r.GET("/invoices/:id", h.Get)
	r.POST("/invoices/:id/cancel", h.Cancel)
}

// Issue handles POST /v1/invoices
func (h *Handler) Issue(c *gin.Context) {
	var req struct {
		ClientID      string `json:"client_id" binding:"required"`
		AppointmentID string `json:"appointment_id"`
		Description   string `json:"description" binding:"required"`
		AmountCents   int64  `json:"amount_cents" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "client_id, description, and a positive amount_cents required",
		})
		return
	}

	now := time.Now()
	inv := &Invoice{
		ID:            idgen.WithPrefix("inv_"),
		TenantID:      auth.GetTenantID(c),
		ClientID:      req.ClientID,
		AppointmentID: req.AppointmentID,
		Description:   validation.SanitizeString(req.Description, 500),
		AmountCents:   req.AmountCents,
		Status:        StatusIssued,
		IssuedAt:      now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.svc.Issue(c.Request.Context(), inv); err != nil {
		var exceeded *quota.ExceededError
		switch {
		case errors.As(err, &exceeded):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "limit_reached",
				"message": "monthly invoice limit reached, upgrade your plan to issue more",
				"kind":    exceeded.Kind,
				"usage":   exceeded.Usage,
				"limit":   exceeded.Limit,
			})
		case errors.Is(err, ErrUnknownClient):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_client", "message": "client not found in your account"})
		case errors.Is(err, sequence.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sequence_unavailable", "message": "could not assign an invoice code, try again"})
		default:
			logging.L(c.Request.Context()).Error("invoice issuance failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to issue invoice"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"invoice": inv})
}

// List handles GET /v1/invoices?limit=&cursor=
func (h *Handler) List(c *gin.Context) {
	limit := pageSize(c)
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": "malformed cursor"})
		return
	}

	items, err := h.store.List(c.Request.Context(), auth.GetTenantID(c), limit, cursor)
	if err != nil {
		logging.L(c.Request.Context()).Error("invoice list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list invoices"})
		return
	}

	items, next, hasMore := pagination.ComputePage(items, limit, func(inv *Invoice) (time.Time, string) {
		return inv.CreatedAt, inv.ID
	})
	c.JSON(http.StatusOK, gin.H{"invoices": items, "next_cursor": next, "has_more": hasMore})
}

// Get handles GET /v1/invoices/:id
func (h *Handler) Get(c *gin.Context) {
	inv, err := h.store.Get(c.Request.Context(), auth.GetTenantID(c), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}

// Cancel handles POST /v1/invoices/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	inv, err := h.store.Cancel(c.Request.Context(), auth.GetTenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrAlreadyCancelled) {
			c.JSON(http.StatusConflict, gin.H{"error": "already_cancelled", "message": "invoice is already cancelled"})
			return
		}
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}

func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, ErrInvoiceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "invoice not found"})
		return
	}
	logging.L(c.Request.Context()).Error("invoice store failure", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "storage failure"})
}

func pageSize(c *gin.Context) int {
	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit
}
