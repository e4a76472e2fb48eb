// Package devotp holds plain OTP codes by transaction id for dev-only
// retrieval through GET /dev/mfa/otp. Never enabled in production.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store keeps plain OTP codes keyed by transaction id.
type Store interface {
	// Put stores otp for transactionID until expiresAt.
	Put(ctx context.Context, transactionID, otp string, expiresAt time.Time)
	// Get returns the otp for transactionID. ok is false when missing or expired.
	Get(ctx context.Context, transactionID string) (otp string, ok bool)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: time.Now().UTC,
	}
}

// Put stores otp for transactionID until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, transactionID, otp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[transactionID] = entry{otp: otp, expiresAt: expiresAt}
}

// Get returns the otp for transactionID if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, transactionID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[transactionID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, transactionID)
		s.mu.Unlock()
		return "", false
	}
	return e.otp, true
}
