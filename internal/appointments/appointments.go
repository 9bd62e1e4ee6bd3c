// Package appointments manages a tenant's service schedule. Appointment
// creation is quota-governed: the monthly cap comes from the tenant's plan
// and is re-checked authoritatively inside the write transaction.
package appointments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAppointmentNotFound is returned when an appointment does not exist
	// within the caller's tenant.
	ErrAppointmentNotFound = errors.New("appointments: not found")
	// ErrUnknownClient is returned when the referenced client does not
	// belong to the tenant.
	ErrUnknownClient = errors.New("appointments: unknown client")
	// ErrInvalidTransition is returned for status changes the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("appointments: invalid status transition")
)

// Status is an appointment's lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// CanTransition reports whether a status change is allowed. Completed and
// cancelled are terminal.
func CanTransition(from, to Status) bool {
	if from != StatusScheduled {
		return false
	}
	return to == StatusCompleted || to == StatusCancelled
}

// Appointment is a scheduled service for a client.
type Appointment struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"-"`
	ClientID        string    `json:"client_id"`
	Service         string    `json:"service"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Store persists appointments. Create enforces the monthly cap inside the
// same transaction as the insert; the pre-flight check in the service layer
// is advisory only.
type Store interface {
	// Create inserts the appointment if the tenant's creations this month
	// are below limit. quota.Unlimited disables the cap. A full month
	// returns *quota.ExceededError.
	Create(ctx context.Context, a *Appointment, limit int) error
	Get(ctx context.Context, tenantID, id string) (*Appointment, error)
	// List returns the tenant's appointments with starts_at in [from, to),
	// ordered by starts_at ascending.
	List(ctx context.Context, tenantID string, from, to time.Time) ([]*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, tenantID, id string) error
	// CountInPeriod returns how many appointments the tenant created in the
	// period ("YYYY-MM"). Backs the quota usage store.
	CountInPeriod(ctx context.Context, tenantID, period string) (int, error)
}
