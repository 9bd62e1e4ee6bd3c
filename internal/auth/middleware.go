package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agendanf/agendanf/internal/logging"
)

// Gin context keys set by the session middleware.
const (
	ContextKeyUserID   = "user_id"
	ContextKeyEmail    = "user_email"
	ContextKeyTenantID = "tenant_id"
	ContextKeyState    = "session_state"
	contextKeySession  = "session_context"
)

// RequireSession verifies the bearer token and resolves the caller's gate
// state. It admits any authenticated state — onboarding and acceptance
// endpoints need sessions that are not yet ready — and leaves tightening to
// RequireReady.
func RequireSession(gate *Gate, tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "missing bearer token",
			})
			c.Abort()
			return
		}

		id, err := tokens.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "invalid or expired token",
			})
			c.Abort()
			return
		}

		state, sc, err := gate.Resolve(c.Request.Context(), id.UserID)
		if err != nil {
			// Unknown state denies access; it never falls through to data.
			logging.L(c.Request.Context()).Error("session resolution failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "session_unavailable",
				"message": "could not resolve session, try again",
			})
			c.Abort()
			return
		}
		if state == StateUnauthenticated {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "account no longer exists",
			})
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, id.UserID)
		c.Set(ContextKeyEmail, id.Email)
		c.Set(ContextKeyState, string(state))
		if sc != nil {
			c.Set(contextKeySession, sc)
			if sc.TenantID != "" {
				c.Set(ContextKeyTenantID, sc.TenantID)
				c.Request = c.Request.WithContext(
					logging.WithTenantID(c.Request.Context(), sc.TenantID))
			}
		}

		c.Next()
	}
}

// RequireReady admits only sessions in StateReady. Must run after
// RequireSession.
func RequireReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch State(c.GetString(ContextKeyState)) {
		case StateReady:
			c.Next()
		case StateNoTenant:
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "tenant_not_bound",
				"message": "complete onboarding before accessing this resource",
			})
			c.Abort()
		case StatePendingAcceptance:
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "acceptance_required",
				"message": "accept the terms of service and privacy policy first",
			})
			c.Abort()
		default:
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "authentication required",
			})
			c.Abort()
		}
	}
}

// GetUserID returns the authenticated user ID from the gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// GetTenantID returns the caller's bound tenant ID, empty if none.
func GetTenantID(c *gin.Context) string {
	return c.GetString(ContextKeyTenantID)
}

// GetState returns the resolved gate state for the request.
func GetState(c *gin.Context) State {
	return State(c.GetString(ContextKeyState))
}

// SessionFrom returns the resolved session context, nil if absent.
func SessionFrom(c *gin.Context) *SessionContext {
	if v, ok := c.Get(contextKeySession); ok {
		if sc, ok := v.(*SessionContext); ok {
			return sc
		}
	}
	return nil
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
