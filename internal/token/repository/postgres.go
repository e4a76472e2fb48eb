package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/token/domain"
)

// PostgresRepository persists token records.
type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a token repository over the given pool.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const tokenColumns = `token_id, session_id, parent_token_id, token_type, token_hash,
	status, created_at, expires_at, revoked_at`

// Create persists the token record.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Token) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO tokens (`+tokenColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.SessionID, nullString(t.ParentTokenID), string(t.Type), t.Hash,
		string(t.Status), t.CreatedAt, t.ExpiresAt, nullTime(t.RevokedAt))
	return err
}

// GetByID returns the token for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Token, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE token_id = $1`, id)
	return scanToken(row)
}

// GetByHash resolves a presented token value by its sha256 hex hash.
func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*domain.Token, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE token_hash = $1`, hash)
	return scanToken(row)
}

// ListChildren returns the tokens whose parent_token_id is id.
func (r *PostgresRepository) ListChildren(ctx context.Context, id string) ([]*domain.Token, error) {
	rows, err := db.QuerierFrom(ctx, r.pool).QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE parent_token_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Token
	for rows.Next() {
		var t domain.Token
		if err := scanTokenInto(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// UpdateStatusIf transitions the token and reports whether a row moved.
func (r *PostgresRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.Status, revokedAt *time.Time) (bool, error) {
	res, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE tokens SET status = $3, revoked_at = $4
		 WHERE token_id = $1 AND status = $2`,
		id, string(from), string(to), nullTime(revokedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RotateActiveByTypes moves the session's ACTIVE rows of the given types to ROTATED.
func (r *PostgresRepository) RotateActiveByTypes(ctx context.Context, sessionID string, types []domain.Type) (int64, error) {
	var n int64
	for _, typ := range types {
		res, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
			`UPDATE tokens SET status = $2
			 WHERE session_id = $1 AND token_type = $3 AND status = $4`,
			sessionID, string(domain.StatusRotated), string(typ), string(domain.StatusActive))
		if err != nil {
			return n, err
		}
		c, err := res.RowsAffected()
		if err != nil {
			return n, err
		}
		n += c
	}
	return n, nil
}

// RevokeAllBySession revokes every ACTIVE or ROTATED token of the session.
func (r *PostgresRepository) RevokeAllBySession(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	res, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE tokens SET status = $2, revoked_at = $3
		 WHERE session_id = $1 AND status IN ($4, $5)`,
		sessionID, string(domain.StatusRevoked), at,
		string(domain.StatusActive), string(domain.StatusRotated))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredBefore removes rows whose exp passed before cutoff.
func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`DELETE FROM tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*domain.Token, error) {
	var t domain.Token
	if err := scanTokenInto(row, &t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func scanTokenInto(row rowScanner, t *domain.Token) error {
	var parent sql.NullString
	var typ, status string
	var revokedAt sql.NullTime
	err := row.Scan(&t.ID, &t.SessionID, &parent, &typ, &t.Hash,
		&status, &t.CreatedAt, &t.ExpiresAt, &revokedAt)
	if err != nil {
		return err
	}
	t.ParentTokenID = parent.String
	t.Type = domain.Type(typ)
	t.Status = domain.Status(status)
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
