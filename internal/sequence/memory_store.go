package sequence

import (
	"context"
	"sync"
)

// MemoryStore advances sequences under a mutex, for tests and demo mode.
type MemoryStore struct {
	mu   sync.Mutex
	last map[string]int64
}

// NewMemoryStore creates an empty in-memory sequence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]int64)}
}

func (s *MemoryStore) Next(ctx context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[tenantID]++
	return s.last[tenantID], nil
}

// Last returns the last issued number for a tenant (tests).
func (s *MemoryStore) Last(tenantID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[tenantID]
}

var _ Store = (*MemoryStore)(nil)
