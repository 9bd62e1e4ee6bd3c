package clients

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
	"github.com/agendanf/agendanf/internal/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler provides HTTP endpoints for client management.
type Handler struct {
	store Store
}

// NewHandler creates a client handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up the client routes on a group that already requires a
// ready session.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/clients", h.Create)
	r.GET("/clients", h.List)
	r.GET("/clients/:id", h.Get)
	r.PATCH("/clients/:id", h.Update)
	r.DELETE("/clients/:id", h.Delete)
}

// Create handles POST /v1/clients
func (h *Handler) Create(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"omitempty,email"`
		Phone    string `json:"phone"`
		Document string `json:"document"`
		Notes    string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name required, email must be valid"})
		return
	}

	now := time.Now()
	client := &Client{
		ID:        idgen.WithPrefix("cli_"),
		TenantID:  auth.GetTenantID(c),
		Name:      validation.SanitizeString(req.Name, 200),
		Email:     validation.SanitizeString(req.Email, 200),
		Phone:     validation.SanitizeString(req.Phone, 30),
		Document:  validation.SanitizeString(req.Document, 20),
		Notes:     validation.SanitizeString(req.Notes, 1000),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.Create(c.Request.Context(), client); err != nil {
		logging.L(c.Request.Context()).Error("client creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create client"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"client": client})
}

// List handles GET /v1/clients?limit=&cursor=
func (h *Handler) List(c *gin.Context) {
	limit := pageSize(c)
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": "malformed cursor"})
		return
	}

	items, err := h.store.List(c.Request.Context(), auth.GetTenantID(c), limit, cursor)
	if err != nil {
		logging.L(c.Request.Context()).Error("client list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list clients"})
		return
	}

	items, next, hasMore := pagination.ComputePage(items, limit, func(cl *Client) (time.Time, string) {
		return cl.CreatedAt, cl.ID
	})
	c.JSON(http.StatusOK, gin.H{"clients": items, "next_cursor": next, "has_more": hasMore})
}

// Get handles GET /v1/clients/:id
func (h *Handler) Get(c *gin.Context) {
	client, err := h.store.Get(c.Request.Context(), auth.GetTenantID(c), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client": client})
}

// Update handles PATCH /v1/clients/:id
func (h *Handler) Update(c *gin.Context) {
	client, err := h.store.Get(c.Request.Context(), auth.GetTenantID(c), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}

	var req struct {
		Name     *string `json:"name"`
		Email    *string `json:"email" binding:"omitempty"`
		Phone    *string `json:"phone"`
		Document *string `json:"document"`
		Notes    *string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	if req.Name != nil {
		client.Name = validation.SanitizeString(*req.Name, 200)
	}
	if req.Email != nil {
		client.Email = validation.SanitizeString(*req.Email, 200)
	}
	if req.Phone != nil {
		client.Phone = validation.SanitizeString(*req.Phone, 30)
	}
	if req.Document != nil {
		client.Document = validation.SanitizeString(*req.Document, 20)
	}
	if req.Notes != nil {
		client.Notes = validation.SanitizeString(*req.Notes, 1000)
	}
	client.UpdatedAt = time.Now()

	if err := h.store.Update(c.Request.Context(), client); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client": client})
}

// Delete handles DELETE /v1/clients/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), auth.GetTenantID(c), c.Param("id")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "client deleted"})
}

func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, ErrClientNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "client not found"})
		return
	}
	logging.L(c.Request.Context()).Error("client store failure", "error", err)
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
