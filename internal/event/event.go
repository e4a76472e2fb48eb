// Package event publishes security events (credential failures, MFA
// decisions, token reuse detections) to a Kafka topic for downstream fraud
// and SIEM consumers. Emission is best-effort and never blocks a login.
package event

import "time"

// Event types published on the security topic.
const (
	TypeLoginSuccess       = "login.success"
	TypeLoginFailure       = "login.failure"
	TypeAccountLocked      = "login.account_locked"
	TypeMFAInitiated       = "mfa.initiated"
	TypeMFAVerified        = "mfa.verified"
	TypeMFARejected        = "mfa.rejected"
	TypePushApproved       = "mfa.push_approved"
	TypePushRejected       = "mfa.push_rejected"
	TypeESignAccepted      = "esign.accepted"
	TypeESignDeclined      = "esign.declined"
	TypeDeviceTrusted      = "device.trusted"
	TypeDeviceRevoked      = "device.revoked"
	TypeTokenRotated       = "token.rotated"
	TypeTokenReuseDetected = "token.reuse_detected"
	TypeSessionRevoked     = "session.revoked"
	TypeLogout             = "session.logout"
)

// SecurityEvent is one record on the security topic. Cupid, ContextID,
// TransactionID, and SessionID are set when known at emit time.
type SecurityEvent struct {
	Type          string            `json:"type"`
	Cupid         string            `json:"cupid,omitempty"`
	ContextID     string            `json:"context_id,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	IPAddress     string            `json:"ip_address,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
