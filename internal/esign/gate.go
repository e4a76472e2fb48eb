// Package esign tracks electronic document acceptance. A user carries at most
// one pending requirement; while it is pending and mandatory, login cannot
// complete until the document is accepted.
package esign

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/majafary/ciam-claude-sub001/internal/esign/domain"
	"github.com/majafary/ciam-claude-sub001/internal/esign/repository"
)

// Gate answers whether a login can pass the eSign step.
type Gate struct {
	requirements repository.RequirementRepository
	acceptances  repository.AcceptanceRepository
	now          func() time.Time
}

// NewGate returns a Gate over the two stores.
func NewGate(requirements repository.RequirementRepository, acceptances repository.AcceptanceRepository) *Gate {
	return &Gate{
		requirements: requirements,
		acceptances:  acceptances,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Require sets the user's pending requirement. A user has one slot: requiring
// a new document replaces the previous pending one.
func (g *Gate) Require(ctx context.Context, cupid, documentID string, mandatory bool, reason string) error {
	return g.requirements.Upsert(ctx, &domain.Requirement{
		Cupid:      cupid,
		DocumentID: documentID,
		Mandatory:  mandatory,
		Reason:     reason,
		CreatedAt:  g.now(),
	})
}

// Pending returns the user's unsatisfied requirement, or nil when the eSign
// step can be skipped. A requirement whose document the user already accepted
// counts as satisfied and is cleared on read.
func (g *Gate) Pending(ctx context.Context, cupid string) (*domain.Requirement, error) {
	req, err := g.requirements.GetByCupid(ctx, cupid)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, nil
	}
	accepted, err := g.acceptances.Exists(ctx, cupid, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if accepted {
		if err := g.requirements.Delete(ctx, cupid); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return req, nil
}

// Accept records acceptance of the document and clears the requirement when
// it matches. The acceptance log is append-only; accepting twice adds a
// second record rather than failing.
func (g *Gate) Accept(ctx context.Context, cupid, documentID, contextID string) error {
	if err := g.acceptances.Create(ctx, &domain.Acceptance{
		ID:         uuid.New().String(),
		Cupid:      cupid,
		DocumentID: documentID,
		ContextID:  contextID,
		AcceptedAt: g.now(),
	}); err != nil {
		return err
	}
	req, err := g.requirements.GetByCupid(ctx, cupid)
	if err != nil {
		return err
	}
	if req != nil && req.DocumentID == documentID {
		return g.requirements.Delete(ctx, cupid)
	}
	return nil
}

// Decline stamps the refusal on the pending requirement and leaves it in
// place. The login fails, and the next attempt is presented the same document
// again, now carrying its decline history.
func (g *Gate) Decline(ctx context.Context, cupid, documentID string) error {
	return g.requirements.RecordDecline(ctx, cupid, documentID, g.now())
}

// IsSatisfied reports whether the user has accepted the document.
func (g *Gate) IsSatisfied(ctx context.Context, cupid, documentID string) (bool, error) {
	return g.acceptances.Exists(ctx, cupid, documentID)
}
