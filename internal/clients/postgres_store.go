package clients

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agendanf/agendanf/internal/pagination"
)

// PostgresStore is a PostgreSQL-backed client store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed client store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const clientColumns = `id, tenant_id, name, email, phone, document, notes, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone,
		&c.Document, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) Create(ctx context.Context, c *Client) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO clients (id, tenant_id, name, email, phone, document, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.TenantID, c.Name, c.Email, c.Phone, c.Document, c.Notes, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, tenantID, id string) (*Client, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (p *PostgresStore) List(ctx context.Context, tenantID string, limit int, cursor *pagination.Cursor) ([]*Client, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if cursor == nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+clientColumns+` FROM clients
			WHERE tenant_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`,
			tenantID, limit+1)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+clientColumns+` FROM clients
			WHERE tenant_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`,
			tenantID, cursor.CreatedAt, cursor.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, c *Client) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE clients SET name = $3, email = $4, phone = $5, document = $6, notes = $7, updated_at = $8
		WHERE tenant_id = $1 AND id = $2`,
		c.TenantID, c.ID, c.Name, c.Email, c.Phone, c.Document, c.Notes, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	if n == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM clients WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if n == 0 {
		return ErrClientNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
