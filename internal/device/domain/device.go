package domain

import "time"

// Status is the trust record state.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// TrustedDevice binds a device fingerprint to a user. While the binding is
// live the user skips MFA at login. Trust is keyed on (cupid, fingerprint
// hash) so re-binding the same device refreshes the existing record.
type TrustedDevice struct {
	ID              string
	GUID            string
	Cupid           string
	FingerprintHash string
	Status          Status
	TrustedAt       time.Time
	LastUsedAt      *time.Time
	ExpiresAt       time.Time
}

// Live reports whether the binding is ACTIVE and unexpired at now.
func (d *TrustedDevice) Live(now time.Time) bool {
	return d.Status == StatusActive && now.Before(d.ExpiresAt)
}
