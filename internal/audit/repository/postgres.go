package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/audit/domain"
	"github.com/majafary/ciam-claude-sub001/internal/db"
)

// PostgresRepository persists audit logs.
type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns an audit repository over the given pool.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const auditColumns = `id, cupid, context_id, transaction_id, action, resource, ip, metadata, created_at`

// Create appends the audit log entry.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO audit_logs (`+auditColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.Cupid, a.ContextID, a.TransactionID, a.Action, a.Resource, a.IP, a.Metadata, a.CreatedAt)
	return err
}

// GetByID returns the entry for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, id)
	var a domain.AuditLog
	err := row.Scan(&a.ID, &a.Cupid, &a.ContextID, &a.TransactionID, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListByCupid returns the user's events, newest first.
func (r *PostgresRepository) ListByCupid(ctx context.Context, cupid string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := db.QuerierFrom(ctx, r.pool).QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs
		 WHERE cupid = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		cupid, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		if err := rows.Scan(&a.ID, &a.Cupid, &a.ContextID, &a.TransactionID, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// DeleteBefore removes events older than cutoff.
func (r *PostgresRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
