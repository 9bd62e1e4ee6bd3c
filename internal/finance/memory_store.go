package finance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agendanf/agendanf/internal/clock"
)

// MemoryStore is an in-memory Store for tests and demo mode.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates a new in-memory finance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Create(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, from, to time.Time) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for _, e := range s.entries {
		if e.TenantID != tenantID {
			continue
		}
		if e.OccurredAt.Before(from) || !e.OccurredAt.Before(to) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.TenantID != tenantID {
		return ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) Summarize(ctx context.Context, tenantID, period string) (*Summary, error) {
	start, end, err := clock.PeriodBounds(period)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := &Summary{Period: period}
	for _, e := range s.entries {
		if e.TenantID != tenantID {
			continue
		}
		if e.OccurredAt.Before(start) || !e.OccurredAt.Before(end) {
			continue
		}
		sum.EntryCount++
		switch e.Type {
		case TypeIncome:
			sum.IncomeCents += e.AmountCents
		case TypeExpense:
			sum.ExpenseCents += e.AmountCents
		}
	}
	sum.NetCents = sum.IncomeCents - sum.ExpenseCents
	return sum, nil
}

var _ Store = (*MemoryStore)(nil)
