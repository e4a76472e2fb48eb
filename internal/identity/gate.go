// Package identity provides the credential gate: verification of a submitted
// identity and password-equivalent into a coarse account-state signal plus the
// verified subject identifiers. The auth flow consumes the gate through an
// interface; the local implementation checks bcrypt hashes against the user
// store, but an LDAP or federation backend slots in behind the same contract.
package identity

import (
	"context"
	"strings"

	"github.com/majafary/ciam-claude-sub001/internal/identity/domain"
	"github.com/majafary/ciam-claude-sub001/internal/identity/repository"
	"github.com/majafary/ciam-claude-sub001/internal/security"
)

// CredentialStatus is the outcome of a credential check.
type CredentialStatus string

const (
	CredentialInvalid   CredentialStatus = "INVALID"
	CredentialLocked    CredentialStatus = "LOCKED"
	CredentialMFALocked CredentialStatus = "MFA_LOCKED"
	CredentialOK        CredentialStatus = "OK"
)

// Verification is the result of a credential check. Subject fields are only
// set when Status is CredentialOK or a lock state (the caller must not treat a
// locked account as unknown, but must not proceed either).
type Verification struct {
	Status   CredentialStatus
	Cupid    string
	GUID     string
	Username string
	Email    string
	Phone    string
	Roles    []string
}

// CredentialGate verifies a submitted identity and password-equivalent.
// Unknown user and wrong password both yield CredentialInvalid; callers must
// never distinguish the two in user-visible behavior.
type CredentialGate interface {
	Verify(ctx context.Context, username, password string) (*Verification, error)
}

// LocalGate is a CredentialGate over the local user store and bcrypt hashes.
type LocalGate struct {
	users  repository.Repository
	hasher *security.Hasher
	// dummyHash is compared against when no user hash exists, so an unknown
	// username costs the same as a wrong password.
	dummyHash string
}

// NewLocalGate returns a LocalGate using the given user repository and hasher.
func NewLocalGate(users repository.Repository, hasher *security.Hasher) *LocalGate {
	dummy, _ := hasher.Hash([]byte("local-gate-timing-pad"))
	return &LocalGate{users: users, hasher: hasher, dummyHash: dummy}
}

// Verify checks username/password and maps the account state. The password is
// always compared when a hash exists so the lock states still require correct
// credentials; a wrong password on a locked account reads as invalid, not locked.
func (g *LocalGate) Verify(ctx context.Context, username, password string) (*Verification, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return &Verification{Status: CredentialInvalid}, nil
	}
	user, err := g.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" {
		_ = g.hasher.Compare(g.dummyHash, []byte(password))
		return &Verification{Status: CredentialInvalid}, nil
	}
	if err := g.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return &Verification{Status: CredentialInvalid}, nil
	}
	v := &Verification{
		Cupid:    user.Cupid,
		GUID:     user.GUID,
		Username: user.Username,
		Email:    user.Email,
		Phone:    user.Phone,
		Roles:    user.Roles,
	}
	switch user.Status {
	case domain.UserStatusLocked:
		v.Status = CredentialLocked
	case domain.UserStatusMFALocked:
		v.Status = CredentialMFALocked
	default:
		v.Status = CredentialOK
	}
	return v, nil
}
