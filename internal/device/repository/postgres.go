package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/device/domain"
)

// PostgresRepository persists trusted device bindings.
type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a device repository over the given pool.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const deviceColumns = `device_id, guid, cupid, device_fingerprint_hash, status,
	trusted_at, last_used_at, expires_at`

// Upsert creates the binding or refreshes the existing one for the same
// (cupid, fingerprint hash) pair.
func (r *PostgresRepository) Upsert(ctx context.Context, d *domain.TrustedDevice) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO trusted_devices (`+deviceColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (cupid, device_fingerprint_hash) DO UPDATE SET
		   status = EXCLUDED.status,
		   trusted_at = EXCLUDED.trusted_at,
		   expires_at = EXCLUDED.expires_at`,
		d.ID, d.GUID, d.Cupid, d.FingerprintHash, string(d.Status),
		d.TrustedAt, nullTime(d.LastUsedAt), d.ExpiresAt)
	return err
}

// GetByFingerprint returns the binding for the user and fingerprint.
func (r *PostgresRepository) GetByFingerprint(ctx context.Context, cupid, fingerprintHash string) (*domain.TrustedDevice, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM trusted_devices
		 WHERE cupid = $1 AND device_fingerprint_hash = $2`,
		cupid, fingerprintHash)
	var d domain.TrustedDevice
	var status string
	var lastUsed sql.NullTime
	err := row.Scan(&d.ID, &d.GUID, &d.Cupid, &d.FingerprintHash, &status,
		&d.TrustedAt, &lastUsed, &d.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	d.Status = domain.Status(status)
	if lastUsed.Valid {
		d.LastUsedAt = &lastUsed.Time
	}
	return &d, nil
}

// UpdateStatus sets the binding status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE trusted_devices SET status = $2 WHERE device_id = $1`, id, string(status))
	return err
}

// RevokeAllForUser revokes every ACTIVE binding of the user.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, cupid string) (int64, error) {
	res, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE trusted_devices SET status = $2 WHERE cupid = $1 AND status = $3`,
		cupid, string(domain.StatusRevoked), string(domain.StatusActive))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TouchLastUsed records a trusted login on the binding.
func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE trusted_devices SET last_used_at = $2 WHERE device_id = $1`, id, at)
	return err
}

// ExpireBefore flips ACTIVE bindings past their deadline to EXPIRED.
func (r *PostgresRepository) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE trusted_devices SET status = $1 WHERE status = $2 AND expires_at < $3`,
		string(domain.StatusExpired), string(domain.StatusActive), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
