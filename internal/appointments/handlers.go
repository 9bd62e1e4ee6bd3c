package appointments

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agendanf/agendanf/internal/auth"
	"github.com/agendanf/agendanf/internal/idgen"
	"github.com/agendanf/agendanf/internal/logging"
	"github.com/agendanf/agendanf/internal/quota"
	"github.com/agendanf/agendanf/internal/validation"
)

// Handler provides HTTP endpoints for the schedule.
type Handler struct {
	svc   *Service
	store Store
}

// NewHandler creates an appointment handler.
func NewHandler(svc *Service, store Store) *Handler {
	return &Handler{svc: svc, store: store}
}

// RegisterRoutes sets up the appointment routes on a group that already
// requires a ready session.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/appointments", h.Create)
	r.GET("/appointments", h.List)
	r.GET("/appointments/:id", h.Get)
	r.PATCH("/appointments/:id", h.Update)
	r.DELETE("/appointments/:id", h.Delete)
}

// Create handles POST /v1/appointments
func (h *Handler) Create(c *gin.Context) {
	var req struct {
		ClientID        string    `json:"client_id" binding:"required"`
		Service         string    `json:"service" binding:"required"`
		StartsAt        time.Time `json:"starts_at" binding:"required"`
		DurationMinutes int       `json:"duration_minutes" binding:"omitempty,min=1"`
		PriceCents      int64     `json:"price_cents" binding:"omitempty,min=0"`
		Notes           string    `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "client_id, service, and starts_at required"})
		return
	}

	now := time.Now()
	a := &Appointment{
		ID:              idgen.WithPrefix("apt_"),
		TenantID:        auth.GetTenantID(c),
		ClientID:        req.ClientID,
		Service:         validation.SanitizeString(req.Service, 200),
		StartsAt:        req.StartsAt,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		Status:          StatusScheduled,
		Notes:           validation.SanitizeString(req.Notes, 1000),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.svc.Create(c.Request.Context(), a); err != nil {
		var exceeded *quota.ExceededError
		switch {
		case errors.As(err, &exceeded):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "limit_reached",
				"message": "monthly appointment limit reached, upgrade your plan to create more",
				"kind":    exceeded.Kind,
				"usage":   exceeded.Usage,
				"limit":   exceeded.Limit,
			})
		case errors.Is(err, ErrUnknownClient):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_client", "message": "client not found in your account"})
		default:
			logging.L(c.Request.Context()).Error("appointment creation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create appointment"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"appointment": a})
}

// List handles GET /v1/appointments?from=&to= — defaults to the current
// calendar month.
func (h *Handler) List(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_range", "message": "from/to must be RFC 3339 timestamps with from before to"})
		return
	}

	appts, err := h.store.List(c.Request.Context(), auth.GetTenantID(c), from, to)
	if err != nil {
		logging.L(c.Request.Context()).Error("appointment list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list appointments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": appts, "count": len(appts), "from": from, "to": to})
}

// Get handles GET /v1/appointments/:id
func (h *Handler) Get(c *gin.Context) {
	a, err := h.store.Get(c.Request.Context(), auth.GetTenantID(c), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointment": a})
}

// Update handles PATCH /v1/appointments/:id — reschedule, edit details, or
// move the status along its lifecycle.
func (h *Handler) Update(c *gin.Context) {
	tenantID := auth.GetTenantID(c)
	id := c.Param("id")

	var req struct {
		Status          *Status    `json:"status"`
		StartsAt        *time.Time `json:"starts_at"`
		Service         *string    `json:"service"`
		DurationMinutes *int       `json:"duration_minutes"`
		PriceCents      *int64     `json:"price_cents"`
		Notes           *string    `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	// Status changes go through the lifecycle check.
	if req.Status != nil {
		a, err := h.svc.UpdateStatus(c.Request.Context(), tenantID, id, *req.Status)
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "message": err.Error()})
				return
			}
			respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"appointment": a})
		return
	}

	a, err := h.store.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if req.StartsAt != nil {
		a.StartsAt = *req.StartsAt
	}
	if req.Service != nil {
		a.Service = validation.SanitizeString(*req.Service, 200)
	}
	if req.DurationMinutes != nil {
		a.DurationMinutes = *req.DurationMinutes
	}
	if req.PriceCents != nil {
		a.PriceCents = *req.PriceCents
	}
	if req.Notes != nil {
		a.Notes = validation.SanitizeString(*req.Notes, 1000)
	}
	a.UpdatedAt = time.Now()

	if err := h.store.Update(c.Request.Context(), a); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointment": a})
}

// Delete handles DELETE /v1/appointments/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), auth.GetTenantID(c), c.Param("id")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "appointment deleted"})
}

func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, ErrAppointmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "appointment not found"})
		return
	}
	logging.L(c.Request.Context()).Error("appointment store failure", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "storage failure"})
}

// dateRange parses the from/to query params, defaulting to the current
// calendar month.
func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, 0)

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("empty range")
	}
	return from, to, nil
}
