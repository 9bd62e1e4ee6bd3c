package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/agendanf/agendanf/internal/idgen"
)

type userRecord struct {
	id              string
	email           string
	name            string
	passwordHash    []byte
	tenantID        string
	acceptedTerms   bool
	acceptedPrivacy bool
	createdAt       time.Time
}

// MemoryStore is an in-memory identity provider and session context store,
// for tests and demo mode.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*userRecord
	byEmail map[string]*userRecord
}

// NewMemoryStore creates an empty in-memory auth store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*userRecord),
		byEmail: make(map[string]*userRecord),
	}
}

// Register creates an account with a bcrypt-hashed password.
func (s *MemoryStore) Register(ctx context.Context, email, name, password string) (*Identity, error) {
	email = NormalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, ErrEmailTaken
	}

	u := &userRecord{
		id:           idgen.WithPrefix("usr_"),
		email:        email,
		name:         name,
		passwordHash: hash,
		createdAt:    time.Now(),
	}
	s.byID[u.id] = u
	s.byEmail[u.email] = u

	return &Identity{UserID: u.id, Email: u.email, Name: u.name}, nil
}

// Authenticate verifies an email/password pair.
func (s *MemoryStore) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	s.mu.RLock()
	u, ok := s.byEmail[NormalizeEmail(email)]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &Identity{UserID: u.id, Email: u.email, Name: u.name}, nil
}

// SignOut is a no-op for the in-memory provider.
func (s *MemoryStore) SignOut(ctx context.Context, userID string) error {
	return nil
}

func (s *MemoryStore) GetSessionContext(ctx context.Context, userID string) (*SessionContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &SessionContext{
		UserID:          u.id,
		Email:           u.email,
		Name:            u.name,
		TenantID:        u.tenantID,
		AcceptedTerms:   u.acceptedTerms,
		AcceptedPrivacy: u.acceptedPrivacy,
		CreatedAt:       u.createdAt,
	}, nil
}

func (s *MemoryStore) BindTenant(ctx context.Context, userID, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	if u.tenantID != "" {
		return ErrTenantBound
	}
	u.tenantID = tenantID
	return nil
}

func (s *MemoryStore) RecordAcceptance(ctx context.Context, userID string, terms, privacy bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	if terms {
		u.acceptedTerms = true
	}
	if privacy {
		u.acceptedPrivacy = true
	}
	return nil
}

var (
	_ IdentityProvider = (*MemoryStore)(nil)
	_ Registrar        = (*MemoryStore)(nil)
	_ ContextStore     = (*MemoryStore)(nil)
)
