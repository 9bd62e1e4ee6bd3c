package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agendanf/agendanf/internal/clock"
)

const tokenIssuer = "agendanf"

// TokenIssuer signs and verifies session tokens. Tokens are HMAC-signed JWTs
// carrying the user ID as subject; they are stateless and expire on their
// own, there is no server-side revocation list.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clk    clock.Clock
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock injects a clock (tests).
func WithTokenClock(c clock.Clock) TokenOption {
	return func(t *TokenIssuer) { t.clk = c }
}

// NewTokenIssuer creates an issuer with the given signing secret and session
// lifetime.
func NewTokenIssuer(secret string, ttl time.Duration, opts ...TokenOption) *TokenIssuer {
	t := &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		clk:    clock.System{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a session token for the user. Returns the token and its expiry.
func (t *TokenIssuer) Issue(userID, email string) (string, time.Time, error) {
	now := t.clk.Now()
	expiresAt := now.Add(t.ttl)

	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks a token's signature and expiry and returns the identity it
// carries. Any failure collapses to ErrInvalidToken; callers get no hint
// whether a token was malformed, forged, or merely expired.
func (t *TokenIssuer) Verify(token string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{},
		func(tok *jwt.Token) (interface{}, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clk.Now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, nil
}
