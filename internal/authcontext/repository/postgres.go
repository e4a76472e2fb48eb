package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/authcontext/domain"
	"github.com/majafary/ciam-claude-sub001/internal/db"
)

// PostgresRepository persists auth contexts.
type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns an auth context repository over the given pool.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const contextColumns = `context_id, cupid, guid, app_id, app_version, ip_address, user_agent,
	device_fingerprint_hash, requires_additional_steps, auth_outcome, completed_at, created_at, expires_at`

// GetByID returns the auth context for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuthContext, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+contextColumns+` FROM auth_contexts WHERE context_id = $1`, id)
	var c domain.AuthContext
	var cupid, guid, outcome sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&c.ID, &cupid, &guid, &c.AppID, &c.AppVersion, &c.IPAddress, &c.UserAgent,
		&c.DeviceFingerprintHash, &c.RequiresAdditionalSteps, &outcome, &completedAt, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Cupid = cupid.String
	c.GUID = guid.String
	c.Outcome = domain.Outcome(outcome.String)
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	return &c, nil
}

// Create persists the auth context. The context must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.AuthContext) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO auth_contexts (`+contextColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		c.ID, nullString(c.Cupid), nullString(c.GUID), c.AppID, c.AppVersion, c.IPAddress, c.UserAgent,
		c.DeviceFingerprintHash, c.RequiresAdditionalSteps, nullString(string(c.Outcome)),
		nullTime(c.CompletedAt), c.CreatedAt, c.ExpiresAt)
	return err
}

// BindSubject sets the verified subject identifiers on an uncompleted context.
func (r *PostgresRepository) BindSubject(ctx context.Context, id, cupid, guid string) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE auth_contexts SET cupid = $2, guid = $3 WHERE context_id = $1 AND completed_at IS NULL`,
		id, cupid, guid)
	return err
}

// SetRequiresAdditionalSteps flags the context as needing further verification steps.
func (r *PostgresRepository) SetRequiresAdditionalSteps(ctx context.Context, id string, v bool) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE auth_contexts SET requires_additional_steps = $2 WHERE context_id = $1 AND completed_at IS NULL`,
		id, v)
	return err
}

// Complete records the terminal outcome. The guard on completed_at keeps a
// completed context immutable even under racing writers.
func (r *PostgresRepository) Complete(ctx context.Context, id string, outcome domain.Outcome, at time.Time) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE auth_contexts SET auth_outcome = $2, completed_at = $3 WHERE context_id = $1 AND completed_at IS NULL`,
		id, string(outcome), at)
	return err
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
