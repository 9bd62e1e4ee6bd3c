// Package auth resolves who is calling and whether they may reach
// tenant-scoped resources.
//
// A session moves through a small state machine: unauthenticated callers hold
// no valid token; authenticated callers without a bound tenant are mid
// onboarding; callers whose tenant is bound but who have not accepted the
// terms of service and privacy policy are held at the acceptance step; only
// ready sessions reach tenant data.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agendanf/agendanf/internal/logging"
	"github.com/agendanf/agendanf/internal/metrics"
	"github.com/agendanf/agendanf/internal/ratelimit"
)

var (
	// ErrInvalidCredentials is returned for unknown emails and wrong
	// passwords alike; callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrTooManyAttempts is returned when sign-in throttling kicks in. It is
	// deliberately distinct from ErrInvalidCredentials so clients can show a
	// "try again later" message instead of an invalid-password one.
	ErrTooManyAttempts = errors.New("auth: too many sign-in attempts")
	// ErrEmailTaken is returned when registering an email that already has
	// an account.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrUserNotFound is returned when a session references an account that
	// no longer exists.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrInvalidToken is returned for malformed, forged, or expired tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTenantBound is returned when binding a tenant to a user that
	// already has one. Onboarding binds exactly once.
	ErrTenantBound = errors.New("auth: user already bound to a tenant")
	// ErrSignUpUnavailable is returned when the identity provider does not
	// support self-service registration.
	ErrSignUpUnavailable = errors.New("auth: sign-up not available")
)

// ThrottledError reports a throttled sign-in attempt and how long until the
// window resets. errors.Is(err, ErrTooManyAttempts) matches it.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("auth: too many sign-in attempts, retry in %s", e.RetryAfter)
}

func (e *ThrottledError) Is(target error) bool { return target == ErrTooManyAttempts }

// State is the resolved position of a session in the access gate.
type State string

const (
	// StateLoading is the zero value before a session has been resolved.
	StateLoading State = "loading"
	// StateUnauthenticated means no valid session.
	StateUnauthenticated State = "unauthenticated"
	// StateNoTenant means the user is signed in but onboarding has not
	// bound a tenant yet.
	StateNoTenant State = "authenticated_no_tenant"
	// StatePendingAcceptance means a tenant is bound but the terms of
	// service or privacy policy are still unaccepted.
	StatePendingAcceptance State = "authenticated_pending_acceptance"
	// StateReady means the session may reach tenant-scoped resources.
	StateReady State = "ready"
	// StateError means the session context could not be determined. Access
	// is denied until it can; an unknown state never falls through to data.
	StateError State = "error"
)

// Identity is a verified account identity.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// SessionContext is everything the gate needs to place a user: their tenant
// binding and policy acceptance flags.
type SessionContext struct {
	UserID          string    `json:"user_id"`
	Email           string    `json:"email"`
	Name            string    `json:"name,omitempty"`
	TenantID        string    `json:"tenant_id,omitempty"`
	AcceptedTerms   bool      `json:"accepted_terms"`
	AcceptedPrivacy bool      `json:"accepted_privacy"`
	CreatedAt       time.Time `json:"created_at"`
}

// StateOf maps a session context to its gate state. A nil context means no
// account behind the session.
func StateOf(sc *SessionContext) State {
	switch {
	case sc == nil:
		return StateUnauthenticated
	case sc.TenantID == "":
		return StateNoTenant
	case !sc.AcceptedTerms || !sc.AcceptedPrivacy:
		return StatePendingAcceptance
	default:
		return StateReady
	}
}

// IdentityProvider verifies credentials. The bundled providers keep accounts
// in our own store, but anything that can answer "is this email/password
// pair valid" fits.
type IdentityProvider interface {
	// Authenticate returns the identity for valid credentials, or
	// ErrInvalidCredentials.
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
	// SignOut records a sign-out for the user. Tokens are stateless, so
	// this is bookkeeping rather than revocation.
	SignOut(ctx context.Context, userID string) error
}

// Registrar is implemented by identity providers that support self-service
// account creation.
type Registrar interface {
	// Register creates an account, or returns ErrEmailTaken.
	Register(ctx context.Context, email, name, password string) (*Identity, error)
}

// ContextStore persists the per-user session context: tenant binding and
// policy acceptance.
type ContextStore interface {
	// GetSessionContext returns the context for a user, or ErrUserNotFound.
	GetSessionContext(ctx context.Context, userID string) (*SessionContext, error)
	// BindTenant attaches a tenant to a user exactly once. Returns
	// ErrTenantBound if the user already has one.
	BindTenant(ctx context.Context, userID, tenantID string) error
	// RecordAcceptance marks the given policies accepted. Flags only ever
	// go from false to true; passing false leaves a flag untouched.
	RecordAcceptance(ctx context.Context, userID string, terms, privacy bool) error
}

// Session is the result of a successful sign-in or sign-up.
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      Identity        `json:"user"`
	State     State           `json:"state"`
	Context   *SessionContext `json:"context,omitempty"`
}

// Gate orchestrates sign-in, sign-out, and session resolution.
type Gate struct {
	provider IdentityProvider
	store    ContextStore
	tokens   *TokenIssuer
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLimiter throttles sign-in and sign-up attempts per email address.
func WithLimiter(l *ratelimit.Limiter) GateOption {
	return func(g *Gate) { g.limiter = l }
}

// WithLogger sets the gate's logger.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

// NewGate creates a session gate.
func NewGate(provider IdentityProvider, store ContextStore, tokens *TokenIssuer, opts ...GateOption) *Gate {
	g := &Gate{
		provider: provider,
		store:    store,
		tokens:   tokens,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NormalizeEmail lowercases and trims an email address so throttle keys and
// lookups agree on one spelling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignIn verifies credentials and issues a session token. Throttling is
// checked before the provider is consulted, so a blocked caller cannot probe
// passwords.
func (g *Gate) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)

	if err := g.throttle(email); err != nil {
		return nil, err
	}

	id, err := g.provider.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			metrics.SignInAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		metrics.SignInAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	metrics.SignInAttemptsTotal.WithLabelValues("success").Inc()
	return g.openSession(ctx, id)
}

// SignUp registers an account and signs it in. The new session always starts
// in StateNoTenant; onboarding binds the tenant afterwards.
func (g *Gate) SignUp(ctx context.Context, email, name, password string) (*Session, error) {
	registrar, ok := g.provider.(Registrar)
	if !ok {
		return nil, ErrSignUpUnavailable
	}

	email = NormalizeEmail(email)
	if err := g.throttle(email); err != nil {
		return nil, err
	}

	id, err := registrar.Register(ctx, email, name, password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	logging.L(ctx).Info("account registered", "user_id", id.UserID)
	return g.openSession(ctx, id)
}

// SignOut records a sign-out. The token remains cryptographically valid
// until it expires; clients are expected to discard it.
func (g *Gate) SignOut(ctx context.Context, userID string) error {
	return g.provider.SignOut(ctx, userID)
}

// Resolve determines the gate state for a user. A store failure yields
// StateError together with the cause; callers must treat that as "deny and
// retry", never as any authenticated state.
func (g *Gate) Resolve(ctx context.Context, userID string) (State, *SessionContext, error) {
	sc, err := g.store.GetSessionContext(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return StateUnauthenticated, nil, nil
	}
	if err != nil {
		return StateError, nil, fmt.Errorf("session context: %w", err)
	}
	return StateOf(sc), sc, nil
}

// AcceptPolicies records acceptance of the terms of service and/or privacy
// policy and returns the resulting state. Acceptance is one-way.
func (g *Gate) AcceptPolicies(ctx context.Context, userID string, terms, privacy bool) (State, *SessionContext, error) {
	if err := g.store.RecordAcceptance(ctx, userID, terms, privacy); err != nil {
		return StateError, nil, fmt.Errorf("record acceptance: %w", err)
	}
	return g.Resolve(ctx, userID)
}

// BindTenant attaches a freshly created tenant to the user, moving the
// session out of StateNoTenant.
func (g *Gate) BindTenant(ctx context.Context, userID, tenantID string) error {
	return g.store.BindTenant(ctx, userID, tenantID)
}

func (g *Gate) throttle(email string) error {
	if g.limiter == nil {
		return nil
	}
	res := g.limiter.Allow("signin:"+email, ratelimit.CategoryAuth)
	if res.Allowed {
		return nil
	}
	metrics.SignInAttemptsTotal.WithLabelValues("throttled").Inc()
	if res.JustBlocked {
		g.logger.Warn("sign-in throttled", "retry_after", res.RetryAfter)
	}
	return &ThrottledError{RetryAfter: res.RetryAfter}
}

func (g *Gate) openSession(ctx context.Context, id *Identity) (*Session, error) {
	token, expiresAt, err := g.tokens.Issue(id.UserID, id.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	// A context-store hiccup here must not void valid credentials: the
	// session opens in StateError and the next resolution retries.
	state, sc, err := g.Resolve(ctx, id.UserID)
	if err != nil {
		g.logger.Warn("session context unavailable after sign-in", "user_id", id.UserID, "error", err)
	}

	return &Session{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      *id,
		State:     state,
		Context:   sc,
	}, nil
}
