// Package audit records auth events for compliance review. Writes are
// best-effort: an audit failure is logged and never fails the caller.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/majafary/ciam-claude-sub001/internal/audit/domain"
	auditrepo "github.com/majafary/ciam-claude-sub001/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Entry describes one event to record. Cupid, ContextID, and TransactionID
// may be empty when the event happened before the corresponding binding
// (e.g. a failed credential check has no cupid).
type Entry struct {
	Cupid         string
	ContextID     string
	TransactionID string
	Action        string
	Resource      string
	Metadata      string
}

// AuditLogger writes a single audit event. Used by the flow, token, and
// device code paths.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Entry)
}

// Logger implements AuditLogger using the audit repository and an optional IP
// extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         zerolog.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor
// for client IP. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log zerolog.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
}

// LogEvent writes one audit log entry. Errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, e Entry) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:            uuid.New().String(),
		Cupid:         e.Cupid,
		ContextID:     e.ContextID,
		TransactionID: e.TransactionID,
		Action:        e.Action,
		Resource:      e.Resource,
		IP:            ip,
		Metadata:      e.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Error().Err(err).
			Str("action", e.Action).
			Str("resource", e.Resource).
			Msg("audit event write failed")
	}
}

// Nop returns an AuditLogger that records nothing. For tests.
func Nop() AuditLogger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) LogEvent(context.Context, Entry) {}
