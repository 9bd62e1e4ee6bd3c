package sequence

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore advances per-tenant sequences with an atomic upsert. The
// increment and read happen in one statement, so concurrent callers can never
// observe the same number.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed sequence store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const nextQuery = `
	INSERT INTO document_sequences (tenant_id, last_number, updated_at)
	VALUES ($1, 1, NOW())
	ON CONFLICT (tenant_id)
	DO UPDATE SET last_number = document_sequences.last_number + 1, updated_at = NOW()
	RETURNING last_number`

func (p *PostgresStore) Next(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, nextQuery, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("advance sequence: %w", err)
	}
	return n, nil
}

// NextInTx advances the tenant's sequence inside an existing transaction.
// Invoice issuance uses this so the code assignment and the invoice insert
// commit or roll back together; the row update also locks the tenant's
// sequence row, serializing concurrent issuance per tenant.
func NextInTx(ctx context.Context, tx *sql.Tx, tenantID string) (int64, error) {
	var n int64
	if err := tx.QueryRowContext(ctx, nextQuery, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("advance sequence: %w", err)
	}
	return n, nil
}

var _ Store = (*PostgresStore)(nil)
