package auth

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agendanf/agendanf/internal/logging"
	"github.com/agendanf/agendanf/internal/validation"
)

// Handler provides HTTP endpoints for sign-up, sign-in, and session state.
type Handler struct {
	gate *Gate
}

// NewHandler creates an auth handler.
func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// RegisterRoutes sets up the auth routes. The session middleware is passed in
// so the protected subset shares the server's chain.
func (h *Handler) RegisterRoutes(r gin.IRouter, session gin.HandlerFunc) {
	grp := r.Group("/v1/auth")
	grp.POST("/signup", h.SignUp)
	grp.POST("/signin", h.SignIn)

	authed := grp.Group("", session)
	authed.POST("/signout", h.SignOut)
	authed.GET("/session", h.Session)
	authed.POST("/acceptance", h.Accept)
}

// SignUp handles POST /v1/auth/signup
func (h *Handler) SignUp(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Name     string `json:"name" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "email, name, and password (min 8 chars) required",
		})
		return
	}

	sess, err := h.gate.SignUp(c.Request.Context(), req.Email,
		validation.SanitizeString(req.Name, 200), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrTooManyAttempts):
			respondThrottled(c, err)
		case errors.Is(err, ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": "email already registered"})
		case errors.Is(err, ErrSignUpUnavailable):
			c.JSON(http.StatusForbidden, gin.H{"error": "signup_unavailable", "message": "self-service registration is disabled"})
		default:
			logging.L(c.Request.Context()).Error("sign-up failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create account"})
		}
		return
	}

	c.JSON(http.StatusCreated, sess)
}

// SignIn handles POST /v1/auth/signin
func (h *Handler) SignIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "email and password required"})
		return
	}

	sess, err := h.gate.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrTooManyAttempts):
			respondThrottled(c, err)
		case errors.Is(err, ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": "invalid email or password"})
		default:
			logging.L(c.Request.Context()).Error("sign-in failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "sign-in failed"})
		}
		return
	}

	c.JSON(http.StatusOK, sess)
}

// SignOut handles POST /v1/auth/signout
func (h *Handler) SignOut(c *gin.Context) {
	if err := h.gate.SignOut(c.Request.Context(), GetUserID(c)); err != nil {
		logging.L(c.Request.Context()).Error("sign-out failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "sign-out failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

// Session handles GET /v1/auth/session — the resolved gate state for the
// caller, used by clients to decide which screen to show.
func (h *Handler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":   GetState(c),
		"context": SessionFrom(c),
	})
}

// Accept handles POST /v1/auth/acceptance — records terms/privacy acceptance
// and returns the resulting state.
func (h *Handler) Accept(c *gin.Context) {
	var req struct {
		AcceptedTerms   bool `json:"accepted_terms"`
		AcceptedPrivacy bool `json:"accepted_privacy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}
	if !req.AcceptedTerms && !req.AcceptedPrivacy {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "nothing to accept"})
		return
	}

	state, sc, err := h.gate.AcceptPolicies(c.Request.Context(), GetUserID(c), req.AcceptedTerms, req.AcceptedPrivacy)
	if err != nil {
		logging.L(c.Request.Context()).Error("acceptance failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to record acceptance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": state, "context": sc})
}

func respondThrottled(c *gin.Context, err error) {
	var throttled *ThrottledError
	resp := gin.H{
		"error":   "too_many_attempts",
		"message": "too many attempts, try again later",
	}
	if errors.As(err, &throttled) {
		secs := int(throttled.RetryAfter.Seconds()) + 1
		c.Header("Retry-After", strconv.Itoa(secs))
		resp["retry_after"] = secs
	}
	c.JSON(http.StatusTooManyRequests, resp)
}
