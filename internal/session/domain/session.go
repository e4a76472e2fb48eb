package domain

import "time"

// Status is the session lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusRevoked   Status = "REVOKED"
	StatusLoggedOut Status = "LOGGED_OUT"
)

// Revocation actors recorded alongside a terminal status.
const (
	RevokedBySystem = "system"
	RevokedByUser   = "user"
	RevokedByAdmin  = "admin"
)

// Session is an authenticated presence created when a login flow completes.
// Tokens hang off the session; killing the session kills every token under it.
type Session struct {
	ID               string
	Cupid            string
	ContextID        string
	DeviceID         string
	Status           Status
	CreatedAt        time.Time
	LastSeenAt       *time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	RevokedBy        string
	RevocationReason string
}

// Active reports whether the session is usable at now.
func (s *Session) Active(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.ExpiresAt)
}
