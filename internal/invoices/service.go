package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/agendanf/agendanf/internal/clients"
	"github.com/agendanf/agendanf/internal/logging"
	"github.com/agendanf/agendanf/internal/metrics"
	"github.com/agendanf/agendanf/internal/quota"
	"github.com/agendanf/agendanf/internal/sequence"
)

// Service coordinates invoice issuance: client ownership, the advisory quota
// pre-flight, the sequentially coded write, and the fallback code when the
// sequence cannot advance.
type Service struct {
	store    Store
	clients  clients.Store
	limits   quota.LimitResolver
	enforcer *quota.Enforcer
	seq      *sequence.Generator
}

// NewService creates an invoice service.
func NewService(store Store, clientStore clients.Store, limits quota.LimitResolver, enforcer *quota.Enforcer, seq *sequence.Generator) *Service {
	return &Service{store: store, clients: clientStore, limits: limits, enforcer: enforcer, seq: seq}
}

// Issue assigns the tenant's next document code and persists the invoice in
// one transaction. Quota denial surfaces as *quota.ExceededError. If the
// sequence cannot advance even after retries, a timestamp-derived fallback
// code is issued instead so invoicing never halts on sequence contention.
func (s *Service) Issue(ctx context.Context, inv *Invoice) error {
	if _, err := s.clients.Get(ctx, inv.TenantID, inv.ClientID); err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return ErrUnknownClient
		}
		return fmt.Errorf("invoices: check client: %w", err)
	}

	d, err := s.enforcer.CanCreate(ctx, inv.TenantID, quota.KindInvoice)
	if err != nil {
		return fmt.Errorf("invoices: quota check: %w", err)
	}
	if !d.Allowed {
		return &quota.ExceededError{Kind: quota.KindInvoice, Usage: d.Usage, Limit: d.Limit}
	}

	limit, err := s.limits.MonthlyLimit(ctx, inv.TenantID, quota.KindInvoice)
	if err != nil {
		return fmt.Errorf("invoices: resolve limit: %w", err)
	}

	inv.Code = ""
	err = s.store.Issue(ctx, inv, limit)
	if errors.Is(err, sequence.ErrUnavailable) {
		inv.Code = s.seq.FallbackCode()
		logging.L(ctx).Warn("sequence unavailable, issuing fallback code",
			"tenant_id", inv.TenantID, "code", inv.Code)
		err = s.store.Issue(ctx, inv, limit)
	}
	if err != nil {
		return err
	}

	metrics.InvoicesIssuedTotal.Inc()
	return nil
}
