package domain

import "time"

// Requirement is a pending eSign obligation for a user. One slot per user:
// requiring a new document replaces the previous pending one.
type Requirement struct {
	Cupid      string
	DocumentID string
	Mandatory  bool
	Reason     string
	CreatedAt  time.Time
	// Decline history for this document. Requiring a new document resets both.
	DeclineCount   int
	LastDeclinedAt *time.Time
}

// Acceptance is the immutable record of a user accepting a document version.
type Acceptance struct {
	ID         string
	Cupid      string
	DocumentID string
	ContextID  string
	AcceptedAt time.Time
}
