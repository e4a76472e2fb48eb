package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/transaction/domain"
	"github.com/majafary/ciam-claude-sub001/internal/transaction/repository"
)

func newTestLedger(t *testing.T) (*Ledger, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	ttls := TTLs{MFA: 5 * time.Minute, ESign: 10 * time.Minute, DeviceBind: 10 * time.Minute}
	return NewLedger(repo, ttls), repo
}

func TestLedger_SinglePending(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := l.CreateNext(ctx, "ctx-1", "", domain.PhaseMFA, domain.Payload{Method: domain.MethodOTP}, nil)
	if err != nil {
		t.Fatalf("CreateNext: %v", err)
	}
	second, err := l.CreateNext(ctx, "ctx-1", first.ID, domain.PhaseMFA, domain.Payload{Method: domain.MethodPush}, nil)
	if err != nil {
		t.Fatalf("CreateNext: %v", err)
	}

	// Minting the second step retires the first.
	if _, err := l.Get(ctx, first.ID); err != ErrTransactionExpired {
		t.Fatalf("want ErrTransactionExpired for superseded txn, got %v", err)
	}
	got, err := l.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("new txn status = %s, want PENDING", got.Status)
	}
}

func TestLedger_SequenceMonotonic(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	var prev string
	for want := 1; want <= 4; want++ {
		tx, err := l.CreateNext(ctx, "ctx-seq", prev, domain.PhaseMFA, domain.Payload{}, nil)
		if err != nil {
			t.Fatalf("CreateNext %d: %v", want, err)
		}
		if tx.SequenceNumber != want {
			t.Errorf("sequence = %d, want %d", tx.SequenceNumber, want)
		}
		if tx.ParentTransactionID != prev {
			t.Errorf("parent = %q, want %q", tx.ParentTransactionID, prev)
		}
		prev = tx.ID
	}
}

func TestLedger_OneTimeUse(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tx, err := l.CreateNext(ctx, "ctx-2", "", domain.PhaseMFA, domain.Payload{Method: domain.MethodOTP}, nil)
	if err != nil {
		t.Fatalf("CreateNext: %v", err)
	}
	if err := l.Consume(ctx, tx.ID); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	// Replaying the consumed id is distinguishable from a miss.
	if _, err := l.Get(ctx, tx.ID); err != ErrTransactionConsumed {
		t.Fatalf("want ErrTransactionConsumed, got %v", err)
	}
	if err := l.Consume(ctx, tx.ID); err != ErrTransactionConsumed {
		t.Fatalf("second Consume: want ErrTransactionConsumed, got %v", err)
	}
	if err := l.Approve(ctx, tx.ID, domain.Payload{}); err != ErrTransactionConsumed {
		t.Fatalf("Approve after consume: want ErrTransactionConsumed, got %v", err)
	}
}

func TestLedger_ConsumeApproved(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tx, _ := l.CreateNext(ctx, "ctx-3", "", domain.PhaseMFA, domain.Payload{Method: domain.MethodPush, DisplayNumber: 7}, nil)
	sel := 7
	if err := l.Approve(ctx, tx.ID, domain.Payload{Method: domain.MethodPush, DisplayNumber: 7, SelectedNumber: &sel}); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, err := l.Get(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Get approved: %v", err)
	}
	if got.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want APPROVED", got.Status)
	}
	if got.Payload.SelectedNumber == nil || *got.Payload.SelectedNumber != 7 {
		t.Errorf("payload selection not stored: %+v", got.Payload)
	}
	if err := l.Consume(ctx, tx.ID); err != nil {
		t.Fatalf("Consume approved: %v", err)
	}
	if _, err := l.Get(ctx, tx.ID); err != ErrTransactionConsumed {
		t.Fatalf("want ErrTransactionConsumed, got %v", err)
	}
}

func TestLedger_RejectIsTerminal(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tx, _ := l.CreateNext(ctx, "ctx-4", "", domain.PhaseMFA, domain.Payload{Method: domain.MethodOTP}, nil)
	if err := l.Reject(ctx, tx.ID, tx.Payload); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if err := l.Approve(ctx, tx.ID, tx.Payload); err != ErrTransactionNotPending {
		t.Fatalf("Approve after reject: want ErrTransactionNotPending, got %v", err)
	}
	if err := l.Consume(ctx, tx.ID); err != ErrTransactionNotPending {
		t.Fatalf("Consume after reject: want ErrTransactionNotPending, got %v", err)
	}
}

func TestLedger_LazyExpiry(t *testing.T) {
	l, repo := newTestLedger(t)
	ctx := context.Background()

	tx, _ := l.CreateNext(ctx, "ctx-5", "", domain.PhaseMFA, domain.Payload{Method: domain.MethodOTP}, nil)
	l.now = func() time.Time { return time.Now().UTC().Add(6 * time.Minute) }

	if _, err := l.Get(ctx, tx.ID); err != ErrTransactionExpired {
		t.Fatalf("want ErrTransactionExpired, got %v", err)
	}
	// Expiry is persisted, not just reported.
	stored, _ := repo.GetByID(ctx, tx.ID)
	if stored.Status != domain.StatusExpired {
		t.Errorf("stored status = %s, want EXPIRED", stored.Status)
	}
}

func TestLedger_GetUnknown(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.Get(context.Background(), "nope"); err != ErrTransactionNotFound {
		t.Fatalf("want ErrTransactionNotFound, got %v", err)
	}
}

func TestLedger_ExpireAllPendingScopedToContext(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	a, _ := l.CreateNext(ctx, "ctx-a", "", domain.PhaseMFA, domain.Payload{}, nil)
	b, _ := l.CreateNext(ctx, "ctx-b", "", domain.PhaseMFA, domain.Payload{}, nil)

	if err := l.ExpireAllPending(ctx, "ctx-a"); err != nil {
		t.Fatalf("ExpireAllPending: %v", err)
	}
	if _, err := l.Get(ctx, a.ID); err != ErrTransactionExpired {
		t.Fatalf("ctx-a txn: want ErrTransactionExpired, got %v", err)
	}
	if _, err := l.Get(ctx, b.ID); err != nil {
		t.Fatalf("ctx-b txn must stay live, got %v", err)
	}
}
