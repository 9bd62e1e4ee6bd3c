// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/agendanf/agendanf/internal/appointments"
	"github.com/agendanf/agendanf/internal/auth"
	"github.com/agendanf/agendanf/internal/billing"
	"github.com/agendanf/agendanf/internal/clients"
	"github.com/agendanf/agendanf/internal/config"
	"github.com/agendanf/agendanf/internal/finance"
	"github.com/agendanf/agendanf/internal/health"
	"github.com/agendanf/agendanf/internal/invoices"
	"github.com/agendanf/agendanf/internal/logging"
	"github.com/agendanf/agendanf/internal/metrics"
	"github.com/agendanf/agendanf/internal/quota"
	"github.com/agendanf/agendanf/internal/ratelimit"
	"github.com/agendanf/agendanf/internal/security"
	"github.com/agendanf/agendanf/internal/sequence"
	"github.com/agendanf/agendanf/internal/tenant"
	"github.com/agendanf/agendanf/internal/traces"
	"github.com/agendanf/agendanf/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// identityStore is the auth storage surface the server wires: credentials plus
// the per-user session context. Both bundled auth stores satisfy it.
type identityStore interface {
	auth.IdentityProvider
	auth.Registrar
	auth.ContextStore
}

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	users        identityStore
	tenants      tenant.Store
	clients      clients.Store
	appointments appointments.Store
	invoices     invoices.Store
	finances     finance.Store

	tokens         *auth.TokenIssuer
	gate           *auth.Gate
	enforcer       *quota.Enforcer
	apptService    *appointments.Service
	invoiceService *invoices.Service
	billingService *billing.Service

	rateLimiter   *ratelimit.Limiter
	healthReg     *health.Registry
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run
	traceShutdown func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var seqStore sequence.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.users = auth.NewPostgresStore(db)
		s.tenants = tenant.NewPostgresStore(db)
		s.clients = clients.NewPostgresStore(db)
		s.appointments = appointments.NewPostgresStore(db)
		s.invoices = invoices.NewPostgresStore(db)
		s.finances = finance.NewPostgresStore(db)
		seqStore = sequence.NewPostgresStore(db)
		s.healthReg.Register("database", health.PingChecker("database", db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.users = auth.NewMemoryStore()
		s.tenants = tenant.NewMemoryStore()
		s.clients = clients.NewMemoryStore()
		s.appointments = appointments.NewMemoryStore()
		s.invoices = invoices.NewMemoryStore()
		s.finances = finance.NewMemoryStore()
		seqStore = sequence.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Rate limiter: per-actor fixed windows, budgets overridable from config
	s.rateLimiter = ratelimit.New(rateLimitConfig(cfg),
		ratelimit.WithOnBlocked(func(actor string, cat ratelimit.Category, retryAfter time.Duration) {
			s.logger.Warn("rate limit block",
				"actor", actor,
				"category", string(cat),
				"retry_after_s", int(retryAfter.Seconds()),
			)
		}),
	)

	// Session tokens and the auth gate
	s.tokens = auth.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.SessionTTL)*time.Hour)
	s.gate = auth.NewGate(s.users, s.users, s.tokens,
		auth.WithLimiter(s.rateLimiter),
		auth.WithLogger(s.logger),
	)

	// Plan quotas: limits come from the tenant's tier, usage from the
	// resource stores themselves
	limits := tenant.NewLimits(s.tenants)
	usage := &storeUsage{appointments: s.appointments, invoices: s.invoices}
	s.enforcer = quota.NewEnforcer(limits, usage,
		quota.WithOnDenied(func(d quota.Denial) {
			s.logger.Info("quota denied, upgrade prompt signalled",
				"tenant_id", d.TenantID,
				"kind", string(d.Kind),
				"usage", d.Usage,
				"limit", d.Limit,
			)
		}),
	)

	// Domain services
	s.apptService = appointments.NewService(s.appointments, s.clients, limits, s.enforcer)
	seq := sequence.NewGenerator(seqStore)
	s.invoiceService = invoices.NewService(s.invoices, s.clients, limits, s.enforcer, seq)

	// Billing requires Stripe credentials; without them the billing routes
	// are simply not mounted and everyone stays on the free tier
	if cfg.StripeSecretKey != "" {
		subs := subscriptionStore(s.db)
		gateway := billing.NewStripeGateway(cfg.StripeSecretKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
		s.billingService = billing.NewService(subs, s.tenants, gateway)
		s.logger.Info("billing enabled")
	} else {
		s.logger.Info("billing disabled (no STRIPE_SECRET_KEY)")
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// subscriptionStore returns the billing store matching the server's storage
// mode.
func subscriptionStore(db *sql.DB) billing.Store {
	if db != nil {
		return billing.NewPostgresStore(db)
	}
	return billing.NewMemoryStore()
}

// rateLimitConfig applies per-category RPM overrides from the environment on
// top of the standard budgets.
func rateLimitConfig(cfg *config.Config) ratelimit.Config {
	rl := ratelimit.DefaultConfig()
	override := func(cat ratelimit.Category, rpm int) {
		if rpm > 0 {
			lim := rl.Limits[cat]
			lim.MaxRequests = rpm
			rl.Limits[cat] = lim
		}
	}
	override(ratelimit.CategoryDefault, cfg.RateLimitDefault)
	override(ratelimit.CategoryAuth, cfg.RateLimitAuth)
	override(ratelimit.CategoryCreate, cfg.RateLimitCreate)
	override(ratelimit.CategoryUpdate, cfg.RateLimitUpdate)
	override(ratelimit.CategoryDelete, cfg.RateLimitDelete)
	return rl
}

// storeUsage answers quota usage questions straight from the resource stores,
// so the pre-flight check and the in-transaction recheck count the same rows.
type storeUsage struct {
	appointments appointments.Store
	invoices     invoices.Store
}

var _ quota.UsageStore = (*storeUsage)(nil)

func (u *storeUsage) CountInPeriod(ctx context.Context, tenantID string, kind quota.Kind, period string) (int, error) {
	switch kind {
	case quota.KindAppointment:
		return u.appointments.CountInPeriod(ctx, tenantID, period)
	case quota.KindInvoice:
		return u.invoices.CountInPeriod(ctx, tenantID, period)
	default:
		return 0, fmt.Errorf("server: unknown quota kind %q", kind)
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health and observability endpoints sit outside the throttled API surface
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/", s.infoHandler)

	// Everything under the API surface shares the method-derived throttle;
	// the auth gate additionally throttles sign-in/sign-up per email
	api := s.router.Group("", s.rateLimiter.MiddlewareByMethod())

	session := auth.RequireSession(s.gate, s.tokens)
	ready := auth.RequireReady()

	auth.NewHandler(s.gate).RegisterRoutes(api, session)
	tenant.NewHandler(s.tenants, s.gate, s.enforcer).RegisterRoutes(api, session, ready)

	// Tenant-scoped resources: session plus a bound tenant with accepted terms
	scoped := api.Group("/v1", session, ready)
	clients.NewHandler(s.clients).RegisterRoutes(scoped)
	appointments.NewHandler(s.apptService, s.appointments).RegisterRoutes(scoped)
	invoices.NewHandler(s.invoiceService, s.invoices).RegisterRoutes(scoped)
	finance.NewHandler(s.finances).RegisterRoutes(scoped)

	if s.billingService != nil {
		// The Stripe webhook authenticates by signature, not session
		public := api.Group("/v1")
		billing.NewHandler(s.billingService, s.cfg.StripeWebhookSecret).RegisterRoutes(scoped, public)
	}
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse is the health check response
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.healthReg.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "agendanf",
		"version": "0.1.0",
		"env":     s.cfg.Env,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing is optional; without an OTLP endpoint this is a no-op
	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.traceShutdown = shutdown
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Sample DB pool stats into Prometheus gauges
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter sweeper goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush pending trace spans
	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
