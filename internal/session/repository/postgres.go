package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/session/domain"
)

// PostgresRepository persists sessions.
type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a session repository over the given pool.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const sessionColumns = `session_id, cupid, context_id, device_id, status,
	created_at, last_seen_at, expires_at, revoked_at, revoked_by, revocation_reason`

// Create persists the session.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.ID, s.Cupid, s.ContextID, nullString(s.DeviceID), string(s.Status),
		s.CreatedAt, nullTime(s.LastSeenAt), s.ExpiresAt,
		nullTime(s.RevokedAt), nullString(s.RevokedBy), nullString(s.RevocationReason))
	return err
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListActiveByCupid returns the user's ACTIVE sessions.
func (r *PostgresRepository) ListActiveByCupid(ctx context.Context, cupid string) ([]*domain.Session, error) {
	rows, err := db.QuerierFrom(ctx, r.pool).QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE cupid = $1 AND status = $2`,
		cupid, string(domain.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Terminate moves an ACTIVE session to a terminal status.
func (r *PostgresRepository) Terminate(ctx context.Context, id string, status domain.Status, by, reason string, at time.Time) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE sessions SET status = $2, revoked_at = $3, revoked_by = $4, revocation_reason = $5
		 WHERE session_id = $1 AND status = $6`,
		id, string(status), at, by, reason, string(domain.StatusActive))
	return err
}

// TouchLastSeen records token activity on the session.
func (r *PostgresRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = $2 WHERE session_id = $1`, id, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var deviceID, revokedBy, reason sql.NullString
	var lastSeen, revokedAt sql.NullTime
	var status string
	err := row.Scan(&s.ID, &s.Cupid, &s.ContextID, &deviceID, &status,
		&s.CreatedAt, &lastSeen, &s.ExpiresAt, &revokedAt, &revokedBy, &reason)
	if err != nil {
		return nil, err
	}
	s.DeviceID = deviceID.String
	s.Status = domain.Status(status)
	s.RevokedBy = revokedBy.String
	s.RevocationReason = reason.String
	if lastSeen.Valid {
		s.LastSeenAt = &lastSeen.Time
	}
	if revokedAt.Valid {
		s.RevokedAt = &revokedAt.Time
	}
	return &s, nil
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
