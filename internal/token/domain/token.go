package domain

import "time"

// Type distinguishes the three JWTs issued per session.
type Type string

const (
	TypeAccess  Type = "ACCESS"
	TypeRefresh Type = "REFRESH"
	TypeID      Type = "ID"
)

// Status is the server-side token state. The JWT itself stays verifiable
// until exp; the row is what revocation and rotation act on.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRotated Status = "ROTATED"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

// Token is the server-side record of an issued JWT. Hash is the sha256 hex of
// the signed value; the raw value is never stored. ParentTokenID links a
// rotated refresh token to its predecessor, forming the rotation chain.
type Token struct {
	ID            string
	SessionID     string
	ParentTokenID string
	Type          Type
	Hash          string
	Status        Status
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
}

// Live reports whether the row is ACTIVE and not past exp at now.
func (t *Token) Live(now time.Time) bool {
	return t.Status == StatusActive && now.Before(t.ExpiresAt)
}
