package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agendanf/agendanf/internal/metrics"
)

// actorKey returns the throttling key for a request: the authenticated user
// when present, otherwise the client IP.
func actorKey(c *gin.Context) string {
	if uid := c.GetString("user_id"); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.ClientIP()
}

// Middleware throttles requests under an explicit category.
func (l *Limiter) Middleware(cat Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		l.enforce(c, cat)
	}
}

// MiddlewareByMethod throttles requests, deriving the category from the HTTP
// method: POST=create, PUT/PATCH=update, DELETE=delete, otherwise default.
func (l *Limiter) MiddlewareByMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		var cat Category
		switch c.Request.Method {
		case http.MethodPost:
			cat = CategoryCreate
		case http.MethodPut, http.MethodPatch:
			cat = CategoryUpdate
		case http.MethodDelete:
			cat = CategoryDelete
		default:
			cat = CategoryDefault
		}
		l.enforce(c, cat)
	}
}

func (l *Limiter) enforce(c *gin.Context, cat Category) {
	res := l.Allow(actorKey(c), cat)
	if res.Allowed {
		c.Next()
		return
	}

	if res.JustBlocked {
		metrics.RateLimitBlocksTotal.WithLabelValues(string(cat)).Inc()
	}

	retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       "rate_limited",
		"message":     "Too many requests. Please slow down.",
		"category":    string(cat),
		"retry_after": retryAfter,
	})
	c.Abort()
}
