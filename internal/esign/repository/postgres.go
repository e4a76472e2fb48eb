package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/esign/domain"
)

// PostgresRequirementRepository persists pending eSign requirements.
type PostgresRequirementRepository struct {
	pool *sql.DB
}

// NewPostgresRequirementRepository returns a requirement repository over the pool.
func NewPostgresRequirementRepository(pool *sql.DB) *PostgresRequirementRepository {
	return &PostgresRequirementRepository{pool: pool}
}

// Upsert sets the user's pending requirement, replacing any existing one.
func (r *PostgresRequirementRepository) Upsert(ctx context.Context, req *domain.Requirement) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO esign_requirements (cupid, document_id, mandatory, reason, created_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (cupid) DO UPDATE SET
		   document_id = EXCLUDED.document_id,
		   mandatory = EXCLUDED.mandatory,
		   reason = EXCLUDED.reason,
		   created_at = EXCLUDED.created_at,
		   decline_count = 0,
		   last_declined_at = NULL`,
		req.Cupid, req.DocumentID, req.Mandatory, req.Reason, req.CreatedAt)
	return err
}

// GetByCupid returns the user's pending requirement, or nil if none.
func (r *PostgresRequirementRepository) GetByCupid(ctx context.Context, cupid string) (*domain.Requirement, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT cupid, document_id, mandatory, reason, created_at, decline_count, last_declined_at
		 FROM esign_requirements WHERE cupid = $1`, cupid)
	var req domain.Requirement
	err := row.Scan(&req.Cupid, &req.DocumentID, &req.Mandatory, &req.Reason, &req.CreatedAt,
		&req.DeclineCount, &req.LastDeclinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// Delete clears the user's pending requirement.
func (r *PostgresRequirementRepository) Delete(ctx context.Context, cupid string) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`DELETE FROM esign_requirements WHERE cupid = $1`, cupid)
	return err
}

// RecordDecline stamps a decline on the matching pending requirement.
func (r *PostgresRequirementRepository) RecordDecline(ctx context.Context, cupid, documentID string, at time.Time) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`UPDATE esign_requirements
		 SET decline_count = decline_count + 1, last_declined_at = $3
		 WHERE cupid = $1 AND document_id = $2`,
		cupid, documentID, at)
	return err
}

// PostgresAcceptanceRepository persists the append-only acceptance log.
type PostgresAcceptanceRepository struct {
	pool *sql.DB
}

// NewPostgresAcceptanceRepository returns an acceptance repository over the pool.
func NewPostgresAcceptanceRepository(pool *sql.DB) *PostgresAcceptanceRepository {
	return &PostgresAcceptanceRepository{pool: pool}
}

// Create appends an acceptance record.
func (r *PostgresAcceptanceRepository) Create(ctx context.Context, a *domain.Acceptance) error {
	_, err := db.QuerierFrom(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO esign_acceptances (acceptance_id, cupid, document_id, context_id, accepted_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.Cupid, a.DocumentID, a.ContextID, a.AcceptedAt)
	return err
}

// Exists reports whether the user has accepted the document.
func (r *PostgresAcceptanceRepository) Exists(ctx context.Context, cupid, documentID string) (bool, error) {
	row := db.QuerierFrom(ctx, r.pool).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM esign_acceptances WHERE cupid = $1 AND document_id = $2)`,
		cupid, documentID)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
