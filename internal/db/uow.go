package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *sql.DB / *sql.Tx the repositories use. Repositories
// resolve it from the request context so multi-row writes join the ambient
// unit of work, falling back to the pool outside one.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// QuerierFrom returns the transaction carried in ctx, or fallback when ctx has none.
func QuerierFrom(ctx context.Context, fallback Querier) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return fallback
}

// UnitOfWork runs a function inside an atomic, retryable write boundary.
// Either every row written by fn is visible or none are.
type UnitOfWork interface {
	WithUnitOfWork(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	uowMaxAttempts  = 3
	uowBackoffFloor = 25 * time.Millisecond
)

// SQLUnitOfWork implements UnitOfWork over database/sql with serializable
// isolation. Serialization failures and deadlocks are transient: two requests
// racing to advance the same auth context are exactly the conflict this
// boundary exists to lose gracefully, so those are retried with exponential
// backoff up to uowMaxAttempts.
type SQLUnitOfWork struct {
	db *sql.DB
}

// NewSQLUnitOfWork returns a UnitOfWork over the given pool.
func NewSQLUnitOfWork(db *sql.DB) *SQLUnitOfWork {
	return &SQLUnitOfWork{db: db}
}

// WithUnitOfWork begins a serializable transaction, stores it in the context
// passed to fn, and commits on nil error. Nested calls join the outer
// transaction rather than opening a second one.
func (u *SQLUnitOfWork) WithUnitOfWork(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	var lastErr error
	for attempt := 0; attempt < uowMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(uowBackoffFloor << (attempt - 1)):
			}
		}
		err := u.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("unit of work: retries exhausted: %w", lastErr)
}

func (u *SQLUnitOfWork) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// retryable reports whether err is a serialization failure (40001) or
// deadlock (40P01).
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// MemoryUnitOfWork implements UnitOfWork for in-memory repositories: a single
// mutex serializes compound writes, which gives the same "no two racing
// advances both succeed" guarantee the serializable SQL boundary provides.
// No rollback: tests assert on the error path explicitly.
type MemoryUnitOfWork struct {
	mu sync.Mutex
}

// NewMemoryUnitOfWork returns a mutex-backed UnitOfWork for tests and DB-less runs.
func NewMemoryUnitOfWork() *MemoryUnitOfWork {
	return &MemoryUnitOfWork{}
}

// WithUnitOfWork runs fn under the unit-of-work mutex.
func (u *MemoryUnitOfWork) WithUnitOfWork(ctx context.Context, fn func(ctx context.Context) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(ctx)
}
