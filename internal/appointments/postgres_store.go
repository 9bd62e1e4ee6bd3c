package appointments

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agendanf/agendanf/internal/clock"
	"github.com/agendanf/agendanf/internal/quota"
)

// PostgresStore is a PostgreSQL-backed appointment store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed appointment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const appointmentColumns = `id, tenant_id, client_id, service, starts_at, duration_minutes, price_cents, status, notes, created_at, updated_at`

func scanAppointment(row interface{ Scan(...any) error }) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.TenantID, &a.ClientID, &a.Service, &a.StartsAt,
		&a.DurationMinutes, &a.PriceCents, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts the appointment with the monthly cap checked in the same
// transaction. A per-tenant advisory lock serializes concurrent creations so
// the count cannot race past the limit.
func (p *PostgresStore) Create(ctx context.Context, a *Appointment, limit int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if limit != quota.Unlimited {
		if _, err := tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtext('appointments:' || $1))`, a.TenantID); err != nil {
			return fmt.Errorf("acquire tenant lock: %w", err)
		}

		start, end, err := clock.PeriodBounds(clock.PeriodKey(a.CreatedAt))
		if err != nil {
			return err
		}
		var n int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM appointments
			WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
			a.TenantID, start, end).Scan(&n)
		if err != nil {
			return fmt.Errorf("count appointments: %w", err)
		}
		if n >= limit {
			return &quota.ExceededError{Kind: quota.KindAppointment, Usage: n, Limit: limit}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointments (id, tenant_id, client_id, service, starts_at, duration_minutes, price_cents, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.TenantID, a.ClientID, a.Service, a.StartsAt, a.DurationMinutes,
		a.PriceCents, a.Status, a.Notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	return tx.Commit()
}

func (p *PostgresStore) Get(ctx context.Context, tenantID, id string) (*Appointment, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (p *PostgresStore) List(ctx context.Context, tenantID string, from, to time.Time) ([]*Appointment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE tenant_id = $1 AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at ASC`,
		tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, a *Appointment) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE appointments SET client_id = $3, service = $4, starts_at = $5,
			duration_minutes = $6, price_cents = $7, status = $8, notes = $9, updated_at = $10
		WHERE tenant_id = $1 AND id = $2`,
		a.TenantID, a.ID, a.ClientID, a.Service, a.StartsAt, a.DurationMinutes,
		a.PriceCents, a.Status, a.Notes, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if n == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM appointments WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if n == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (p *PostgresStore) CountInPeriod(ctx context.Context, tenantID, period string) (int, error) {
	start, end, err := clock.PeriodBounds(period)
	if err != nil {
		return 0, err
	}
	var n int
	err = p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
		tenantID, start, end).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

var _ Store = (*PostgresStore)(nil)
