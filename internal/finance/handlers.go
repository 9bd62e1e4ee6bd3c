package finance

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agendanf/agendanf/internal/auth"
	"github.com/agendanf/agendanf/internal/clock"
	"github.com/agendanf/agendanf/internal/idgen"
	"github.com/agendanf/agendanf/internal/logging"
	"github.com/agendanf/agendanf/internal/validation"
)

// Handler provides HTTP endpoints for financial entries.
type Handler struct {
	store Store
}

// NewHandler creates a finance handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up the finance routes on a group that already requires
// a ready session.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/finance/entries", h.Create)
	r.GET("/finance/entries", h.List)
	r.DELETE("/finance/entries/:id", h.Delete)
	r.GET("/finance/summary", h.Summary)
}

// Create handles POST /v1/finance/entries
func (h *Handler) Create(c *gin.Context) {
	var req struct {
		Type        Type   `json:"type" binding:"required"`
		Category    string `json:"category"`
		Description string `json:"description" binding:"required"`
		AmountCents int64  `json:"amount_cents" binding:"required,min=1"`
		OccurredAt  string `json:"occurred_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "type, description, and a positive amount_cents required",
		})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_type", "message": "type must be income or expense"})
		return
	}

	now := time.Now()
	occurredAt := now
	if req.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "occurred_at must be RFC 3339"})
			return
		}
		occurredAt = t
	}

	e := &Entry{
		ID:          idgen.WithPrefix("fin_"),
		TenantID:    auth.GetTenantID(c),
		Type:        req.Type,
		Category:    validation.SanitizeString(req.Category, 100),
		Description: validation.SanitizeString(req.Description, 500),
		AmountCents: req.AmountCents,
		OccurredAt:  occurredAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.Create(c.Request.Context(), e); err != nil {
		logging.L(c.Request.Context()).Error("finance entry create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to record entry"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": e})
}

// List handles GET /v1/finance/entries?period=YYYY-MM
func (h *Handler) List(c *gin.Context) {
	period := c.DefaultQuery("period", clock.CurrentPeriod(clock.System{}))
	from, to, err := clock.PeriodBounds(period)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_period", "message": "period must be YYYY-MM"})
		return
	}

	entries, err := h.store.List(c.Request.Context(), auth.GetTenantID(c), from, to)
	if err != nil {
		logging.L(c.Request.Context()).Error("finance entry list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "period": period, "count": len(entries)})
}

// Delete handles DELETE /v1/finance/entries/:id
func (h *Handler) Delete(c *gin.Context) {
	err := h.store.Delete(c.Request.Context(), auth.GetTenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "entry not found"})
			return
		}
		logging.L(c.Request.Context()).Error("finance entry delete failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to delete entry"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Summary handles GET /v1/finance/summary?period=YYYY-MM
func (h *Handler) Summary(c *gin.Context) {
	period := c.DefaultQuery("period", clock.CurrentPeriod(clock.System{}))
	sum, err := h.store.Summarize(c.Request.Context(), auth.GetTenantID(c), period)
	if err != nil {
		if _, _, boundsErr := clock.PeriodBounds(period); boundsErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_period", "message": "period must be YYYY-MM"})
			return
		}
		logging.L(c.Request.Context()).Error("finance summary failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to summarize"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": sum})
}
