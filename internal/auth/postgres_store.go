package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/agendanf/agendanf/internal/idgen"

	"golang.org/x/crypto/bcrypt"
)

// PostgresStore is the production identity provider and session context
// store, backed by the users table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed auth store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Register creates an account row. A duplicate email maps to ErrEmailTaken.
func (p *PostgresStore) Register(ctx context.Context, email, name, password string) (*Identity, error) {
	email = NormalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := idgen.WithPrefix("usr_")
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		id, email, name, string(hash))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &Identity{UserID: id, Email: email, Name: name}, nil
}

// Authenticate verifies an email/password pair against the stored hash.
func (p *PostgresStore) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	var (
		id, name string
		hash     string
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, password_hash FROM users WHERE email = $1`,
		NormalizeEmail(email)).Scan(&id, &name, &hash)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &Identity{UserID: id, Email: NormalizeEmail(email), Name: name}, nil
}

// SignOut records the sign-out time. Session tokens are stateless, so this
// is an audit trail, not revocation.
func (p *PostgresStore) SignOut(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE users SET last_sign_out_at = NOW(), updated_at = NOW() WHERE id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("record sign-out: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetSessionContext(ctx context.Context, userID string) (*SessionContext, error) {
	var (
		sc        SessionContext
		tenantID  sql.NullString
		createdAt time.Time
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, name, tenant_id, accepted_terms, accepted_privacy, created_at
		FROM users WHERE id = $1`,
		userID).Scan(&sc.UserID, &sc.Email, &sc.Name, &tenantID,
		&sc.AcceptedTerms, &sc.AcceptedPrivacy, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session context: %w", err)
	}
	sc.TenantID = tenantID.String
	sc.CreatedAt = createdAt
	return &sc, nil
}

// BindTenant attaches a tenant to a user whose binding is still empty. The
// WHERE clause makes the once-only rule atomic; a concurrent second bind
// simply matches zero rows.
func (p *PostgresStore) BindTenant(ctx context.Context, userID, tenantID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET tenant_id = $2, updated_at = NOW()
		WHERE id = $1 AND tenant_id IS NULL`,
		userID, tenantID)
	if err != nil {
		return fmt.Errorf("bind tenant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bind tenant: %w", err)
	}
	if n == 0 {
		// Either the user is gone or already bound; look to tell them apart.
		var existing sql.NullString
		err := p.db.QueryRowContext(ctx, `SELECT tenant_id FROM users WHERE id = $1`, userID).Scan(&existing)
		if err == sql.ErrNoRows {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("bind tenant: %w", err)
		}
		return ErrTenantBound
	}
	return nil
}

func (p *PostgresStore) RecordAcceptance(ctx context.Context, userID string, terms, privacy bool) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET
			accepted_terms = accepted_terms OR $2,
			accepted_privacy = accepted_privacy OR $3,
			updated_at = NOW()
		WHERE id = $1`,
		userID, terms, privacy)
	if err != nil {
		return fmt.Errorf("record acceptance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record acceptance: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

var (
	_ IdentityProvider = (*PostgresStore)(nil)
	_ Registrar        = (*PostgresStore)(nil)
	_ ContextStore     = (*PostgresStore)(nil)
)
