package finance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agendanf/agendanf/internal/clock"
)

// PostgresStore is a PostgreSQL-backed finance store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed finance store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const entryColumns = `id, tenant_id, type, category, description, amount_cents, occurred_at, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var (
		e        Entry
		category sql.NullString
	)
	err := row.Scan(&e.ID, &e.TenantID, &e.Type, &category, &e.Description,
		&e.AmountCents, &e.OccurredAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Category = category.String
	return &e, nil
}

func (p *PostgresStore) Create(ctx context.Context, e *Entry) error {
	var category sql.NullString
	if e.Category != "" {
		category = sql.NullString{String: e.Category, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO finance_entries (id, tenant_id, type, category, description, amount_cents, occurred_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.TenantID, e.Type, category, e.Description, e.AmountCents,
		e.OccurredAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, tenantID string, from, to time.Time) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM finance_entries
		WHERE tenant_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at DESC, id DESC`,
		tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM finance_entries WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (p *PostgresStore) Summarize(ctx context.Context, tenantID, period string) (*Summary, error) {
	start, end, err := clock.PeriodBounds(period)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Period: period}
	err = p.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount_cents) FILTER (WHERE type = $4), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE type = $5), 0),
			COUNT(*)
		FROM finance_entries
		WHERE tenant_id = $1 AND occurred_at >= $2 AND occurred_at < $3`,
		tenantID, start, end, TypeIncome, TypeExpense).
		Scan(&sum.IncomeCents, &sum.ExpenseCents, &sum.EntryCount)
	if err != nil {
		return nil, fmt.Errorf("summarize entries: %w", err)
	}
	sum.NetCents = sum.IncomeCents - sum.ExpenseCents
	return sum, nil
}

var _ Store = (*PostgresStore)(nil)
