package domain

import "time"

// Outcome is the terminal outcome recorded on a completed auth context.
type Outcome string

const (
	OutcomeSuccess       Outcome = "SUCCESS"
	OutcomeESignDeclined Outcome = "ESIGN_DECLINED"
	OutcomeExpired       Outcome = "EXPIRED"
	OutcomeAbandoned     Outcome = "ABANDONED"
)

// AuthContext is the per-login-attempt flow record. The context id is stable
// and client-visible for the whole flow; transaction ids rotate every step.
// Subject identifiers stay empty until credentials have been verified. Once
// CompletedAt is set the context is immutable.
type AuthContext struct {
	ID                      string
	Cupid                   string
	GUID                    string
	AppID                   string
	AppVersion              string
	IPAddress               string
	UserAgent               string
	DeviceFingerprintHash   string
	RequiresAdditionalSteps bool
	Outcome                 Outcome // empty until completed
	CompletedAt             *time.Time
	CreatedAt               time.Time
	ExpiresAt               time.Time
}

// Completed reports whether the context has reached a terminal outcome.
func (c *AuthContext) Completed() bool { return c.CompletedAt != nil }

// Expired reports whether the context TTL has passed at now.
func (c *AuthContext) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt) }
