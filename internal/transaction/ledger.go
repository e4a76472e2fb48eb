// Package transaction owns the per-step AuthTransaction ledger. At most one
// transaction per context is PENDING at a time, and every transaction id is
// single-use: once acted on, a fresh id is minted for the next step.
package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/majafary/ciam-claude-sub001/internal/transaction/domain"
	"github.com/majafary/ciam-claude-sub001/internal/transaction/repository"
)

var (
	// ErrTransactionNotFound is returned when the transaction id is unknown.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrTransactionExpired is returned when the step TTL has passed.
	ErrTransactionExpired = errors.New("transaction expired")
	// ErrTransactionConsumed is returned on reuse of an already acted-on id.
	ErrTransactionConsumed = errors.New("transaction already consumed")
	// ErrTransactionNotPending is returned when a decision is applied to a
	// transaction that already carries one.
	ErrTransactionNotPending = errors.New("transaction not pending")
)

// TTLs carries the per-phase step deadlines.
type TTLs struct {
	MFA        time.Duration
	ESign      time.Duration
	DeviceBind time.Duration
}

func (t TTLs) forPhase(p domain.Phase) time.Duration {
	switch p {
	case domain.PhaseESign:
		return t.ESign
	case domain.PhaseDeviceBind:
		return t.DeviceBind
	default:
		return t.MFA
	}
}

// Ledger mints, resolves, and retires auth transactions.
type Ledger struct {
	repo repository.Repository
	ttls TTLs
	now  func() time.Time
}

// NewLedger returns a Ledger with the given per-phase TTLs.
func NewLedger(repo repository.Repository, ttls TTLs) *Ledger {
	return &Ledger{repo: repo, ttls: ttls, now: func() time.Time { return time.Now().UTC() }}
}

// CreateNext mints the next transaction for the context. Any still-pending
// transaction of the context is expired first, so the single-pending invariant
// holds even when a caller abandons a step and starts over. parentID is the
// id of the step this one follows, empty for the first.
func (l *Ledger) CreateNext(ctx context.Context, contextID, parentID string, phase domain.Phase, payload domain.Payload, metadata map[string]string) (*domain.AuthTransaction, error) {
	if _, err := l.repo.ExpireAllPending(ctx, contextID); err != nil {
		return nil, err
	}
	seq, err := l.repo.MaxSequence(ctx, contextID)
	if err != nil {
		return nil, err
	}
	now := l.now()
	t := &domain.AuthTransaction{
		ID:                  uuid.New().String(),
		ContextID:           contextID,
		ParentTransactionID: parentID,
		SequenceNumber:      seq + 1,
		Phase:               phase,
		Status:              domain.StatusPending,
		Payload:             payload,
		Metadata:            metadata,
		CreatedAt:           now,
		ExpiresAt:           now.Add(l.ttls.forPhase(phase)),
	}
	if err := l.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns the transaction for id if it is still actionable. Expiry is
// evaluated on read: a PENDING transaction past its deadline flips to EXPIRED
// before the error is returned. CONSUMED ids report ErrTransactionConsumed so
// callers can tell replay apart from a plain miss.
func (l *Ledger) Get(ctx context.Context, id string) (*domain.AuthTransaction, error) {
	t, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	switch t.Status {
	case domain.StatusConsumed:
		return nil, ErrTransactionConsumed
	case domain.StatusExpired:
		return nil, ErrTransactionExpired
	}
	if t.Status == domain.StatusPending && t.Expired(l.now()) {
		if _, err := l.repo.UpdateStatusIf(ctx, id, domain.StatusPending, domain.StatusExpired, t.Payload); err != nil {
			return nil, err
		}
		return nil, ErrTransactionExpired
	}
	return t, nil
}

// Approve moves a PENDING transaction to APPROVED with the final payload.
func (l *Ledger) Approve(ctx context.Context, id string, payload domain.Payload) error {
	return l.transition(ctx, id, domain.StatusApproved, payload)
}

// Reject moves a PENDING transaction to REJECTED with the final payload.
func (l *Ledger) Reject(ctx context.Context, id string, payload domain.Payload) error {
	return l.transition(ctx, id, domain.StatusRejected, payload)
}

func (l *Ledger) transition(ctx context.Context, id string, to domain.Status, payload domain.Payload) error {
	if _, err := l.Get(ctx, id); err != nil {
		return err
	}
	ok, err := l.repo.UpdateStatusIf(ctx, id, domain.StatusPending, to, payload)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTransactionNotPending
	}
	return nil
}

// Consume retires the transaction id after its decision has been acted on.
// Both PENDING and APPROVED transactions can be consumed; the id is dead
// afterwards and any further use reports ErrTransactionConsumed.
func (l *Ledger) Consume(ctx context.Context, id string) error {
	t, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	from := t.Status
	if from != domain.StatusPending && from != domain.StatusApproved {
		return ErrTransactionNotPending
	}
	ok, err := l.repo.UpdateStatusIf(ctx, id, from, domain.StatusConsumed, t.Payload)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTransactionConsumed
	}
	return nil
}

// ExpireAllPending expires any live transaction of the context. Called when
// the flow itself dies, for example on context expiry or eSign decline.
func (l *Ledger) ExpireAllPending(ctx context.Context, contextID string) error {
	_, err := l.repo.ExpireAllPending(ctx, contextID)
	return err
}
