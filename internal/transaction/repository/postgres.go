package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/transaction/domain"
)

// PostgresRepository persists auth transactions. The single-pending invariant
// is additionally enforced by a partial unique index on (context_id) WHERE
// status = 'PENDING', so racing writers cannot slip a second pending row in.
type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a transaction repository over the given pool.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const transactionColumns = `transaction_id, context_id, parent_transaction_id, sequence_number,
	phase, status, payload, metadata, created_at, expires_at`

// Create persists a new transaction row.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.AuthTransaction) error {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return err
	}
	_, err = db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO auth_transactions (`+transactionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.ContextID, nullString(t.ParentTransactionID), t.SequenceNumber,
		string(t.Phase), string(t.Status), payload, metadata, t.CreatedAt, t.ExpiresAt)
	return err
}

// GetByID returns the transaction for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuthTransaction, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM auth_transactions WHERE transaction_id = $1`, id)
	var t domain.AuthTransaction
	var parent sql.NullString
	var phase, status string
	var payload, metadata []byte
	err := row.Scan(&t.ID, &t.ContextID, &parent, &t.SequenceNumber,
		&phase, &status, &payload, &metadata, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.ParentTransactionID = parent.String
	t.Phase = domain.Phase(phase)
	t.Status = domain.Status(status)
	if err := json.Unmarshal(payload, &t.Payload); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// UpdateStatusIf transitions the transaction and stores the payload snapshot.
func (r *PostgresRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.Status, payload domain.Payload) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	res, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE auth_transactions SET status = $3, payload = $4
		 WHERE transaction_id = $1 AND status = $2`,
		id, string(from), string(to), raw)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpireAllPending marks every PENDING transaction of the context EXPIRED.
func (r *PostgresRepository) ExpireAllPending(ctx context.Context, contextID string) (int, error) {
	res, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE auth_transactions SET status = $2
		 WHERE context_id = $1 AND status = $3`,
		contextID, string(domain.StatusExpired), string(domain.StatusPending))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// MaxSequence returns the highest sequence number used in the context.
func (r *PostgresRepository) MaxSequence(ctx context.Context, contextID string) (int, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM auth_transactions WHERE context_id = $1`,
		contextID)
	var max int
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

// DeleteExpiredBefore removes terminal transaction rows created before cutoff.
func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`DELETE FROM auth_transactions WHERE status <> $1 AND created_at < $2`,
		string(domain.StatusPending), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
