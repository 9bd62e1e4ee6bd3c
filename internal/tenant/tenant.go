// Package tenant provides multi-tenancy for the AgendaNF platform.
package tenant

import (
	"errors"
	"time"
)

// Errors
var (
	ErrTenantNotFound = errors.New("tenant: not found")
	ErrSlugTaken      = errors.New("tenant: slug already taken")
	ErrUnknownTier    = errors.New("tenant: unknown plan tier")
)

// Status represents a tenant's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Tenant represents a company using the platform. Every scoped resource
// (client, appointment, invoice, ledger entry) carries exactly one tenant ID.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CNPJ      string    `json:"cnpj,omitempty"`
	Segment   string    `json:"segment,omitempty"`
	Tier      Tier      `json:"tier"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
