package domain

import "time"

// Phase is the verification step a transaction belongs to.
type Phase string

const (
	PhaseMFA        Phase = "MFA"
	PhaseESign      Phase = "ESIGN"
	PhaseDeviceBind Phase = "DEVICE_BIND"
)

// Status is the transaction lifecycle state. PENDING is the only non-terminal
// state; APPROVED and REJECTED are decisions awaiting pickup; CONSUMED and
// EXPIRED are dead ends.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
	StatusConsumed Status = "CONSUMED"
)

// MFA method identifiers used in the transaction payload.
const (
	MethodOTP  = "otp"
	MethodPush = "push"
)

// Payload carries the phase-specific state of a step. Stored as JSONB.
type Payload struct {
	Method         string `json:"method,omitempty"`
	OptionID       string `json:"option_id,omitempty"`
	OTPHash        string `json:"otp_hash,omitempty"`
	DisplayNumber  int    `json:"display_number,omitempty"`
	SelectedNumber *int   `json:"selected_number,omitempty"`
	DocumentID     string `json:"document_id,omitempty"`
	DocumentAction string `json:"document_action,omitempty"`
	BindDecision   *bool  `json:"bind_decision,omitempty"`
}

// AuthTransaction is one step of a login flow. Its id is single-use: once the
// terminal decision has been acted on, a fresh id is minted for the next step,
// even when the step is logically a retry of the same phase.
type AuthTransaction struct {
	ID                  string
	ContextID           string
	ParentTransactionID string // previous step; empty for the first
	SequenceNumber      int
	Phase               Phase
	Status              Status
	Payload             Payload
	Metadata            map[string]string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// Terminal reports whether the transaction has left PENDING.
func (t *AuthTransaction) Terminal() bool { return t.Status != StatusPending }

// Expired reports whether the step TTL has passed at now.
func (t *AuthTransaction) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }
