package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or its signature,
	// issuer, or audience does not check out.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token verifies but is past its exp.
	// ValidateRefresh still returns the claims so the caller can resolve the
	// stored row and report the precise outcome.
	ErrExpiredToken = errors.New("expired token")
)

// AccessClaims holds JWT claims for the access token. Subject is the cupid.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string   `json:"session_id"`
	Roles     []string `json:"roles,omitempty"`
}

// RefreshClaims holds JWT claims for the refresh token. Roles are carried so
// rotation can reissue an access token without a user lookup.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string   `json:"session_id"`
	Roles     []string `json:"roles,omitempty"`
}

// IDClaims holds JWT claims for the ID token (profile assertions only, never
// used for authorization).
type IDClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	GUID      string `json:"guid,omitempty"`
	Username  string `json:"preferred_username,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Profile is the subject profile embedded in the ID token.
type Profile struct {
	GUID     string
	Username string
	Email    string
}

// TokenProvider issues and validates JWT access, refresh, and ID tokens using
// RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	idTTL      time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key
// (RS256 or ES256). issuer and audience are set on claims and validated on parse.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL, idTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		idTTL:      idTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT for the given session and subject.
// Returns the signed token, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(sessionID, cupid string, roles []string) (token string, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: p.registered(jti, cupid, now, expiresAt),
		SessionID:        sessionID,
		Roles:            roles,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

// IssueRefresh issues a long-lived refresh JWT bound to the session. The caller
// stores a hash of the signed value; the raw value is never persisted.
func (p *TokenProvider) IssueRefresh(sessionID, cupid string, roles []string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: p.registered(jti, cupid, now, expiresAt),
		SessionID:        sessionID,
		Roles:            roles,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

// IssueID issues an ID JWT carrying the subject profile.
func (p *TokenProvider) IssueID(sessionID, cupid string, profile Profile) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.idTTL)
	claims := IDClaims{
		RegisteredClaims: p.registered(jti, cupid, now, expiresAt),
		SessionID:        sessionID,
		GUID:             profile.GUID,
		Username:         profile.Username,
		Email:            profile.Email,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

func (p *TokenProvider) registered(jti, subject string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

func (p *TokenProvider) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
		return p.publicKey, nil
	}
	if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
		return p.publicKey, nil
	}
	return nil, ErrInvalidToken
}

func (p *TokenProvider) checkIssuerAudience(issuer string, audience jwt.ClaimStrings) error {
	if issuer != p.issuer {
		return ErrInvalidToken
	}
	for _, a := range audience {
		if a == p.audience {
			return nil
		}
	}
	return ErrInvalidToken
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud).
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, p.keyFunc)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if err := p.checkIssuerAudience(claims.Issuer, claims.Audience); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateRefresh parses and validates the refresh token (signature, exp, iss,
// aud). A token that is valid except for exp returns its claims together with
// ErrExpiredToken; the signature is verified before exp is checked, so the
// claims are trustworthy.
func (p *TokenProvider) ValidateRefresh(tokenString string) (*RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, p.keyFunc)
	if err != nil {
		if token != nil && errors.Is(err, jwt.ErrTokenExpired) {
			if claims, ok := token.Claims.(*RefreshClaims); ok &&
				p.checkIssuerAudience(claims.Issuer, claims.Audience) == nil {
				return claims, ErrExpiredToken
			}
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if err := p.checkIssuerAudience(claims.Issuer, claims.Audience); err != nil {
		return nil, err
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
