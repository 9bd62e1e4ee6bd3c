package invoices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agendanf/agendanf/internal/clock"
	"github.com/agendanf/agendanf/internal/metrics"
	"github.com/agendanf/agendanf/internal/pagination"
	"github.com/agendanf/agendanf/internal/quota"
	"github.com/agendanf/agendanf/internal/retry"
	"github.com/agendanf/agendanf/internal/sequence"
)

// PostgresStore is a PostgreSQL-backed invoice store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed invoice store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const invoiceColumns = `id, tenant_id, client_id, appointment_id, code, description, amount_cents, status, issued_at, created_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (*Invoice, error) {
	var (
		inv    Invoice
		apptID sql.NullString
	)
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.ClientID, &apptID, &inv.Code,
		&inv.Description, &inv.AmountCents, &inv.Status, &inv.IssuedAt,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.AppointmentID = apptID.String
	return &inv, nil
}

// Issue runs the issuance transaction, retrying serialization conflicts.
// Exhausted retries surface as sequence.ErrUnavailable so the service can
// fall back to a non-sequential code.
func (p *PostgresStore) Issue(ctx context.Context, inv *Invoice, limit int) error {
	err := retry.Do(ctx, 3, 10*time.Millisecond, func() error {
		err := p.issueOnce(ctx, inv, limit)
		if err == nil {
			return nil
		}
		if sequence.IsConflict(err) {
			metrics.SequenceRetriesTotal.Inc()
			return err
		}
		return retry.Permanent(err)
	})
	if err != nil && sequence.IsConflict(err) {
		return fmt.Errorf("%w: %v", sequence.ErrUnavailable, err)
	}
	return err
}

// issueOnce is a single issuance attempt: one transaction covering the
// per-tenant lock, the quota count, the sequence advance, and the insert.
func (p *PostgresStore) issueOnce(ctx context.Context, inv *Invoice, limit int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Serializes concurrent issuance per tenant. Taken before the sequence
	// advance so all issuance paths acquire locks in the same order.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext('invoices:' || $1))`, inv.TenantID); err != nil {
		return fmt.Errorf("acquire tenant lock: %w", err)
	}

	if limit != quota.Unlimited {
		start, end, err := clock.PeriodBounds(clock.PeriodKey(inv.CreatedAt))
		if err != nil {
			return err
		}
		var n int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM invoices
			WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
			inv.TenantID, start, end).Scan(&n)
		if err != nil {
			return fmt.Errorf("count invoices: %w", err)
		}
		if n >= limit {
			return &quota.ExceededError{Kind: quota.KindInvoice, Usage: n, Limit: limit}
		}
	}

	code := inv.Code
	if code == "" {
		n, err := sequence.NextInTx(ctx, tx, inv.TenantID)
		if err != nil {
			return err
		}
		code = sequence.FormatCode(n)
	}

	var apptID sql.NullString
	if inv.AppointmentID != "" {
		apptID = sql.NullString{String: inv.AppointmentID, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, tenant_id, client_id, appointment_id, code, description, amount_cents, status, issued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inv.ID, inv.TenantID, inv.ClientID, apptID, code, inv.Description,
		inv.AmountCents, inv.Status, inv.IssuedAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	inv.Code = code
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, tenantID, id string) (*Invoice, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (p *PostgresStore) List(ctx context.Context, tenantID string, limit int, cursor *pagination.Cursor) ([]*Invoice, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if cursor == nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+invoiceColumns+` FROM invoices
			WHERE tenant_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`,
			tenantID, limit+1)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+invoiceColumns+` FROM invoices
			WHERE tenant_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`,
			tenantID, cursor.CreatedAt, cursor.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Cancel(ctx context.Context, tenantID, id string) (*Invoice, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE invoices SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status <> $3
		RETURNING `+invoiceColumns,
		tenantID, id, StatusCancelled)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		// Missing or already cancelled; look to tell them apart.
		if _, getErr := p.Get(ctx, tenantID, id); getErr == nil {
			return nil, ErrAlreadyCancelled
		}
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cancel invoice: %w", err)
	}
	return inv, nil
}

func (p *PostgresStore) CountInPeriod(ctx context.Context, tenantID, period string) (int, error) {
	start, end, err := clock.PeriodBounds(period)
	if err != nil {
		return 0, err
	}
	var n int
	err = p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invoices
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
		tenantID, start, end).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count invoices: %w", err)
	}
	return n, nil
}

var _ Store = (*PostgresStore)(nil)
