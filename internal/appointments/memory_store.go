package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agendanf/agendanf/internal/clock"
	"github.com/agendanf/agendanf/internal/quota"
)

// MemoryStore is an in-memory Store for tests and demo mode. The mutex makes
// the count-then-insert in Create atomic, mirroring what the advisory lock
// does in the PostgreSQL store.
type MemoryStore struct {
	mu    sync.RWMutex
	appts map[string]*Appointment
}

// NewMemoryStore creates a new in-memory appointment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{appts: make(map[string]*Appointment)}
}

func (s *MemoryStore) Create(ctx context.Context, a *Appointment, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit != quota.Unlimited {
		period := clock.PeriodKey(a.CreatedAt)
		n := s.countLocked(a.TenantID, period)
		if n >= limit {
			return &quota.ExceededError{Kind: quota.KindAppointment, Usage: n, Limit: limit}
		}
	}

	cp := *a
	s.appts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, id string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok || a.TenantID != tenantID {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, from, to time.Time) ([]*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Appointment
	for _, a := range s.appts {
		if a.TenantID != tenantID {
			continue
		}
		if a.StartsAt.Before(from) || !a.StartsAt.Before(to) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.appts[a.ID]
	if !ok || existing.TenantID != a.TenantID {
		return ErrAppointmentNotFound
	}
	cp := *a
	s.appts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.TenantID != tenantID {
		return ErrAppointmentNotFound
	}
	delete(s.appts, id)
	return nil
}

func (s *MemoryStore) CountInPeriod(ctx context.Context, tenantID, period string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(tenantID, period), nil
}

func (s *MemoryStore) countLocked(tenantID, period string) int {
	n := 0
	for _, a := range s.appts {
		if a.TenantID == tenantID && clock.PeriodKey(a.CreatedAt) == period {
			n++
		}
	}
	return n
}

var _ Store = (*MemoryStore)(nil)
