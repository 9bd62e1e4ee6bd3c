// Package finance tracks tenant cash flow as income and expense entries and
// aggregates them into monthly summaries.
package finance

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEntryNotFound = errors.New("finance: entry not found")
	ErrInvalidType   = errors.New("finance: invalid entry type")
)

// Type classifies an entry as money in or money out.
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

// Valid reports whether t is a known entry type.
func (t Type) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Entry is a single financial movement for a tenant.
type Entry struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"-"`
	Type        Type      `json:"type"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary aggregates a tenant's entries over one monthly period.
type Summary struct {
	Period       string `json:"period"`
	IncomeCents  int64  `json:"income_cents"`
	ExpenseCents int64  `json:"expense_cents"`
	NetCents     int64  `json:"net_cents"`
	EntryCount   int    `json:"entry_count"`
}

// Store persists financial entries.
type Store interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, tenantID string, from, to time.Time) ([]*Entry, error)
	Delete(ctx context.Context, tenantID, id string) error
	Summarize(ctx context.Context, tenantID, period string) (*Summary, error)
}
