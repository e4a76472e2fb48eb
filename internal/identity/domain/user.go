package domain

import "time"

// UserStatus is the coarse account-state signal consumed by the credential gate.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusLocked    UserStatus = "LOCKED"
	UserStatusMFALocked UserStatus = "MFA_LOCKED"
)

// User represents a customer identity. Cupid is the stable user id; GUID is the
// customer id used by device trust and profile claims.
type User struct {
	Cupid        string
	GUID         string
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	Roles        []string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
