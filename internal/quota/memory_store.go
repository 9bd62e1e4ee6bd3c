package quota

import (
	"context"
	"sync"
)

// MemoryUsageStore tracks usage counts in memory for tests and demo mode.
// Resource stores record creations into it so counts stay exact.
type MemoryUsageStore struct {
	mu     sync.RWMutex
	counts map[usageKey]int
}

type usageKey struct {
	tenantID string
	kind     Kind
	period   string
}

// NewMemoryUsageStore creates an empty in-memory usage store.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{counts: make(map[usageKey]int)}
}

func (s *MemoryUsageStore) CountInPeriod(ctx context.Context, tenantID string, kind Kind, period string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[usageKey{tenantID, kind, period}], nil
}

// Record adds one created resource to the period's count.
func (s *MemoryUsageStore) Record(tenantID string, kind Kind, period string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[usageKey{tenantID, kind, period}]++
}

var _ UsageStore = (*MemoryUsageStore)(nil)
