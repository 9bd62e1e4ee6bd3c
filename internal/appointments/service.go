package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/agendanf/agendanf/internal/clients"
	"github.com/agendanf/agendanf/internal/metrics"
	"github.com/agendanf/agendanf/internal/quota"
)

// Service coordinates appointment creation: client ownership, the advisory
// quota pre-flight, and the authoritative in-transaction cap.
type Service struct {
	store    Store
	clients  clients.Store
	limits   quota.LimitResolver
	enforcer *quota.Enforcer
}

// NewService creates an appointment service.
func NewService(store Store, clientStore clients.Store, limits quota.LimitResolver, enforcer *quota.Enforcer) *Service {
	return &Service{store: store, clients: clientStore, limits: limits, enforcer: enforcer}
}

// Create schedules an appointment. Quota denial surfaces as
// *quota.ExceededError; any failure to determine the quota blocks the write.
func (s *Service) Create(ctx context.Context, a *Appointment) error {
	if _, err := s.clients.Get(ctx, a.TenantID, a.ClientID); err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return ErrUnknownClient
		}
		return fmt.Errorf("appointments: check client: %w", err)
	}

	// Advisory pre-flight: cheap denial and the upgrade-prompt signal. The
	// store re-checks inside the transaction, so a race here only costs a
	// round trip, never an overrun.
	d, err := s.enforcer.CanCreate(ctx, a.TenantID, quota.KindAppointment)
	if err != nil {
		return fmt.Errorf("appointments: quota check: %w", err)
	}
	if !d.Allowed {
		return &quota.ExceededError{Kind: quota.KindAppointment, Usage: d.Usage, Limit: d.Limit}
	}

	limit, err := s.limits.MonthlyLimit(ctx, a.TenantID, quota.KindAppointment)
	if err != nil {
		return fmt.Errorf("appointments: resolve limit: %w", err)
	}
	if err := s.store.Create(ctx, a, limit); err != nil {
		return err
	}

	metrics.AppointmentsCreatedTotal.Inc()
	return nil
}

// UpdateStatus applies a lifecycle transition.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id string, to Status) (*Appointment, error) {
	a, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	a.Status = to
	if err := s.store.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
