package invoices

import (
	"context"
	"sort"
	"sync"

	"github.com/agendanf/agendanf/internal/clock"
	"github.com/agendanf/agendanf/internal/pagination"
	"github.com/agendanf/agendanf/internal/quota"
	"github.com/agendanf/agendanf/internal/sequence"
)

// MemoryStore is an in-memory Store for tests and demo mode. The mutex makes
// the quota check, sequence advance, and insert one atomic step, mirroring
// the PostgreSQL transaction.
type MemoryStore struct {
	mu       sync.RWMutex
	invoices map[string]*Invoice
	seq      map[string]int64
}

// NewMemoryStore creates a new in-memory invoice store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invoices: make(map[string]*Invoice),
		seq:      make(map[string]int64),
	}
}

func (s *MemoryStore) Issue(ctx context.Context, inv *Invoice, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit != quota.Unlimited {
		period := clock.PeriodKey(inv.CreatedAt)
		n := s.countLocked(inv.TenantID, period)
		if n >= limit {
			return &quota.ExceededError{Kind: quota.KindInvoice, Usage: n, Limit: limit}
		}
	}

	if inv.Code == "" {
		s.seq[inv.TenantID]++
		inv.Code = sequence.FormatCode(s.seq[inv.TenantID])
	}

	cp := *inv
	s.invoices[inv.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, id string) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, limit int, cursor *pagination.Cursor) ([]*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*Invoice
	for _, inv := range s.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		cp := *inv
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	var out []*Invoice
	for _, inv := range all {
		if cursor != nil {
			if inv.CreatedAt.After(cursor.CreatedAt) {
				continue
			}
			if inv.CreatedAt.Equal(cursor.CreatedAt) && inv.ID >= cursor.ID {
				continue
			}
		}
		out = append(out, inv)
		if len(out) == limit+1 {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, tenantID, id string) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, ErrInvoiceNotFound
	}
	if inv.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	inv.Status = StatusCancelled
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) CountInPeriod(ctx context.Context, tenantID, period string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(tenantID, period), nil
}

func (s *MemoryStore) countLocked(tenantID, period string) int {
	n := 0
	for _, inv := range s.invoices {
		if inv.TenantID == tenantID && clock.PeriodKey(inv.CreatedAt) == period {
			n++
		}
	}
	return n
}

var _ Store = (*MemoryStore)(nil)
