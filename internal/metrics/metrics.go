// Package metrics provides Prometheus instrumentation for the AgendaNF platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agendanf",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agendanf",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RateLimitBlocksTotal counts rate-limit block transitions by category.
	RateLimitBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agendanf",
			Name:      "rate_limit_blocks_total",
			Help:      "Total rate limit block transitions by action category.",
		},
		[]string{"category"},
	)

	// QuotaDenialsTotal counts plan-quota denials by resource kind.
	QuotaDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agendanf",
			Name:      "quota_denials_total",
			Help:      "Total quota denials by resource kind.",
		},
		[]string{"kind"},
	)

	// SequenceRetriesTotal counts sequence-generator retries after conflicts.
	SequenceRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agendanf",
			Name:      "sequence_retries_total",
			Help:      "Total document sequence retries after transaction conflicts.",
		},
	)

	// InvoicesIssuedTotal counts successfully issued invoices.
	InvoicesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agendanf",
			Name:      "invoices_issued_total",
			Help:      "Total invoices issued with a sequence code.",
		},
	)

	// AppointmentsCreatedTotal counts successfully created appointments.
	AppointmentsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agendanf",
			Name:      "appointments_created_total",
			Help:      "Total appointments created.",
		},
	)

	// SignInAttemptsTotal counts sign-in attempts by outcome.
	SignInAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agendanf",
			Name:      "signin_attempts_total",
			Help:      "Total sign-in attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// CheckoutsCreatedTotal counts billing checkout sessions created.
	CheckoutsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agendanf",
			Name:      "checkouts_created_total",
			Help:      "Total billing checkout sessions created.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agendanf", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agendanf", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agendanf", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "agendanf", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RateLimitBlocksTotal,
		QuotaDenialsTotal,
		SequenceRetriesTotal,
		InvoicesIssuedTotal,
		AppointmentsCreatedTotal,
		SignInAttemptsTotal,
		CheckoutsCreatedTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
