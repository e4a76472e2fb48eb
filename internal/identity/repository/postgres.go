package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/identity/domain"
)

// PostgresRepository persists users. All queries resolve the querier from the
// request context so they join an ambient unit of work.
type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a user repository over the given pool.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const userColumns = `cupid, guid, username, email, phone, password_hash, roles, status, created_at, updated_at`

// GetByUsername returns the user for username, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// GetByCupid returns the user for cupid, or nil if not found.
func (r *PostgresRepository) GetByCupid(ctx context.Context, cupid string) (*domain.User, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE cupid = $1`, cupid)
	return scanUser(row)
}

// Create persists the user. The user must have Cupid set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.Cupid, u.GUID, u.Username, u.Email, u.Phone, u.PasswordHash,
		strings.Join(u.Roles, ","), string(u.Status), u.CreatedAt, u.UpdatedAt)
	return err
}

// UpdateStatus sets the account-state signal for the user.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, cupid string, status domain.UserStatus) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE users SET status = $2, updated_at = $3 WHERE cupid = $1`,
		cupid, string(status), time.Now().UTC())
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var status, roles string
	err := row.Scan(&u.Cupid, &u.GUID, &u.Username, &u.Email, &u.Phone, &u.PasswordHash, &roles, &status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if roles != "" {
		u.Roles = strings.Split(roles, ",")
	}
	u.Status = domain.UserStatus(status)
	return &u, nil
}
