// Package clients manages a tenant's customer records.
package clients

import (
	"context"
	"errors"
	"time"

	"github.com/agendanf/agendanf/internal/pagination"
)

// ErrClientNotFound is returned when a client does not exist within the
// caller's tenant. Another tenant's client is indistinguishable from a
// missing one.
var ErrClientNotFound = errors.New("clients: not found")

// Client is a customer of a tenant.
type Client struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Document  string    `json:"document,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists client records. Every accessor is tenant-scoped: there is no
// way to reach a client without naming its tenant.
type Store interface {
	Create(ctx context.Context, c *Client) error
	Get(ctx context.Context, tenantID, id string) (*Client, error)
	// List returns up to limit+1 clients ordered newest first, starting
	// after the cursor. The extra row lets callers compute has_more.
	List(ctx context.Context, tenantID string, limit int, cursor *pagination.Cursor) ([]*Client, error)
	Update(ctx context.Context, c *Client) error
	Delete(ctx context.Context, tenantID, id string) error
}
