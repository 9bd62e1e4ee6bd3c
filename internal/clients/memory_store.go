package clients

import (
	"context"
	"sort"
	"sync"

	"github.com/agendanf/agendanf/internal/pagination"
)

// MemoryStore is an in-memory Store for tests and demo mode.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewMemoryStore creates a new in-memory client store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clients: make(map[string]*Client)}
}

func (s *MemoryStore) Create(ctx context.Context, c *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.clients[c.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, id string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok || c.TenantID != tenantID {
		return nil, ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, limit int, cursor *pagination.Cursor) ([]*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*Client
	for _, c := range s.clients {
		if c.TenantID != tenantID {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	var out []*Client
	for _, c := range all {
		if cursor != nil {
			if c.CreatedAt.After(cursor.CreatedAt) {
				continue
			}
			if c.CreatedAt.Equal(cursor.CreatedAt) && c.ID >= cursor.ID {
				continue
			}
		}
		out = append(out, c)
		if len(out) == limit+1 {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, c *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.clients[c.ID]
	if !ok || existing.TenantID != c.TenantID {
		return ErrClientNotFound
	}
	cp := *c
	s.clients[c.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok || c.TenantID != tenantID {
		return ErrClientNotFound
	}
	delete(s.clients, id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
