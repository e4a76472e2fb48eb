package domain

import "time"

// AuditLog is one recorded auth event, tied to the flow context and
// transaction it happened under when applicable.
type AuditLog struct {
	ID            string
	Cupid         string
	ContextID     string
	TransactionID string
	Action        string
	Resource      string
	IP            string
	Metadata      string
	CreatedAt     time.Time
}
