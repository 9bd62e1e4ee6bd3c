// Package invoices issues service invoices carrying tenant-scoped sequential
// document codes.
//
// Issuance is one atomic operation: the code assignment, the monthly quota
// check, and the invoice row commit or roll back together. A code is never
// handed out without its invoice persisting.
package invoices

import (
	"context"
	"errors"
	"time"

	"github.com/agendanf/agendanf/internal/pagination"
)

var (
	// ErrInvoiceNotFound is returned when an invoice does not exist within
	// the caller's tenant.
	ErrInvoiceNotFound = errors.New("invoices: not found")
	// ErrUnknownClient is returned when the referenced client does not
	// belong to the tenant.
	ErrUnknownClient = errors.New("invoices: unknown client")
	// ErrAlreadyCancelled is returned when cancelling a cancelled invoice.
	ErrAlreadyCancelled = errors.New("invoices: already cancelled")
)

// Status is an invoice's lifecycle state. Invoices are never deleted;
// cancelled ones keep their code and still count toward the month's quota.
type Status string

const (
	StatusIssued    Status = "issued"
	StatusCancelled Status = "cancelled"
)

// Invoice is an issued service invoice.
type Invoice struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"-"`
	ClientID      string    `json:"client_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Code          string    `json:"code"`
	Description   string    `json:"description"`
	AmountCents   int64     `json:"amount_cents"`
	Status        Status    `json:"status"`
	IssuedAt      time.Time `json:"issued_at"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store persists invoices.
type Store interface {
	// Issue inserts the invoice. An empty Code means "assign the tenant's
	// next sequence code inside the transaction"; a preset Code (the
	// fallback path) is stored as given. The monthly cap is checked in the
	// same transaction; a full month returns *quota.ExceededError, a
	// sequence that cannot advance returns an error wrapping
	// sequence.ErrUnavailable. On success inv.Code holds the final code.
	Issue(ctx context.Context, inv *Invoice, limit int) error
	Get(ctx context.Context, tenantID, id string) (*Invoice, error)
	// List returns up to limit+1 invoices ordered newest first, starting
	// after the cursor.
	List(ctx context.Context, tenantID string, limit int, cursor *pagination.Cursor) ([]*Invoice, error)
	// Cancel marks an invoice cancelled. The row and its code remain.
	Cancel(ctx context.Context, tenantID, id string) (*Invoice, error)
	// CountInPeriod returns how many invoices the tenant issued in the
	// period ("YYYY-MM"). Backs the quota usage store.
	CountInPeriod(ctx context.Context, tenantID, period string) (int, error)
}
