// Package flow orchestrates the login journey: credential check, MFA
// challenge, eSign, device binding, and final token issuance. The post-MFA
// step order is fixed: eSign first, then device binding, then tokens.
package flow

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/majafary/ciam-claude-sub001/internal/audit"
	"github.com/majafary/ciam-claude-sub001/internal/authcontext"
	authctxdomain "github.com/majafary/ciam-claude-sub001/internal/authcontext/domain"
	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/device"
	"github.com/majafary/ciam-claude-sub001/internal/devotp"
	"github.com/majafary/ciam-claude-sub001/internal/esign"
	"github.com/majafary/ciam-claude-sub001/internal/event"
	"github.com/majafary/ciam-claude-sub001/internal/identity"
	identityrepo "github.com/majafary/ciam-claude-sub001/internal/identity/repository"
	"github.com/majafary/ciam-claude-sub001/internal/mfa"
	"github.com/majafary/ciam-claude-sub001/internal/security"
	sessiondomain "github.com/majafary/ciam-claude-sub001/internal/session/domain"
	sessionrepo "github.com/majafary/ciam-claude-sub001/internal/session/repository"
	"github.com/majafary/ciam-claude-sub001/internal/token"
	"github.com/majafary/ciam-claude-sub001/internal/transaction"
	txndomain "github.com/majafary/ciam-claude-sub001/internal/transaction/domain"
)

var (
	// ErrInvalidCredentials covers unknown user and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned for a locked account with correct credentials.
	ErrAccountLocked = errors.New("account locked")
	// ErrMFALocked is returned when the account is locked out of MFA.
	ErrMFALocked = errors.New("account locked out of mfa")
	// ErrInvalidOTP is returned on a wrong code. The transaction is rejected:
	// one guess per transaction id.
	ErrInvalidOTP = errors.New("invalid otp code")
	// ErrPushRejected is returned when the companion selection mismatched or
	// the push was rejected.
	ErrPushRejected = errors.New("push verification rejected")
	// ErrESignDeclined is returned when the user declines the document. The
	// flow is terminated; retry requires a full re-login.
	ErrESignDeclined = errors.New("esign declined")
	// ErrUnsupportedMethod is returned for an unknown MFA method.
	ErrUnsupportedMethod = errors.New("unsupported mfa method")
)

// Status is the step outcome reported to the client.
type Status string

const (
	StatusSuccess            Status = "SUCCESS"
	StatusMFARequired        Status = "MFA_REQUIRED"
	StatusMFAPending         Status = "MFA_PENDING"
	StatusESignRequired      Status = "ESIGN_REQUIRED"
	StatusDeviceBindRequired Status = "DEVICE_BIND_REQUIRED"
)

// MFAOption is one way the user can complete MFA.
type MFAOption struct {
	OptionID     string
	Method       string
	MaskedTarget string
}

// Result is the outcome of one flow step. ContextID is stable across the
// flow; TransactionID is freshly minted for the next step when the flow is
// still in progress.
type Result struct {
	Status        Status
	ContextID     string
	TransactionID string
	MFAOptions    []MFAOption
	DisplayNumber int
	DocumentID    string
	RetryAfter    time.Duration
	Tokens        *token.Set
	// DevOTP carries the plain OTP back to the client in dev mode only.
	DevOTP string
}

// Config carries the flow tunables.
type Config struct {
	SessionTTL        time.Duration
	PushRetryInterval time.Duration
	// OTPReturnToClient enables dev OTP exposure. Never set in production;
	// config.Load rejects the combination.
	OTPReturnToClient bool
}

// OTPSender delivers a one-time code out of band.
type OTPSender interface {
	SendOTP(phone, otp string) error
}

// Service is the flow orchestrator.
type Service struct {
	gate     identity.CredentialGate
	users    identityrepo.Repository
	contexts *authcontext.Store
	ledger   *transaction.Ledger
	sessions sessionrepo.Repository
	tokens   *token.Manager
	devices  *device.Registry
	esign    *esign.Gate
	uow      db.UnitOfWork
	sender   OTPSender
	devOTP   devotp.Store
	audit    audit.AuditLogger
	emitter  event.Emitter
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Gate     identity.CredentialGate
	Users    identityrepo.Repository
	Contexts *authcontext.Store
	Ledger   *transaction.Ledger
	Sessions sessionrepo.Repository
	Tokens   *token.Manager
	Devices  *device.Registry
	ESign    *esign.Gate
	UoW      db.UnitOfWork
	Sender   OTPSender
	DevOTP   devotp.Store
	Audit    audit.AuditLogger
	Emitter  event.Emitter
	Log      zerolog.Logger
}

// NewService returns the flow orchestrator.
func NewService(d Deps, cfg Config) *Service {
	a := d.Audit
	if a == nil {
		a = audit.Nop()
	}
	return &Service{
		gate:     d.Gate,
		users:    d.Users,
		contexts: d.Contexts,
		ledger:   d.Ledger,
		sessions: d.Sessions,
		tokens:   d.Tokens,
		devices:  d.Devices,
		esign:    d.ESign,
		uow:      d.UoW,
		sender:   d.Sender,
		devOTP:   d.DevOTP,
		audit:    a,
		emitter:  d.Emitter,
		cfg:      cfg,
		log:      d.Log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Login verifies credentials and opens a flow. A trusted device skips MFA and
// goes straight to the eSign check; otherwise the caller gets MFA_REQUIRED
// with the available options and a transaction id for MFAInitiate.
func (s *Service) Login(ctx context.Context, username, password string, meta authcontext.Meta) (*Result, error) {
	v, err := s.gate.Verify(ctx, username, password)
	if err != nil {
		return nil, err
	}
	switch v.Status {
	case identity.CredentialInvalid:
		s.audit.LogEvent(ctx, audit.Entry{Action: "login_failure", Resource: "auth_context", Metadata: "reason=invalid_credentials"})
		event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeLoginFailure, IPAddress: meta.IPAddress, OccurredAt: s.now()})
		return nil, ErrInvalidCredentials
	case identity.CredentialLocked:
		s.audit.LogEvent(ctx, audit.Entry{Cupid: v.Cupid, Action: "login_blocked", Resource: "auth_context", Metadata: "reason=account_locked"})
		event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeAccountLocked, Cupid: v.Cupid, IPAddress: meta.IPAddress, OccurredAt: s.now()})
		return nil, ErrAccountLocked
	case identity.CredentialMFALocked:
		s.audit.LogEvent(ctx, audit.Entry{Cupid: v.Cupid, Action: "login_blocked", Resource: "auth_context", Metadata: "reason=mfa_locked"})
		event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeAccountLocked, Cupid: v.Cupid, IPAddress: meta.IPAddress, OccurredAt: s.now()})
		return nil, ErrMFALocked
	}

	var res *Result
	err = s.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		c, err := s.contexts.Create(ctx, meta)
		if err != nil {
			return err
		}
		if err := s.contexts.BindSubject(ctx, c.ID, v.Cupid, v.GUID); err != nil {
			return err
		}
		c.Cupid, c.GUID = v.Cupid, v.GUID

		trusted, d, err := s.devices.IsTrusted(ctx, v.Cupid, meta.DeviceFingerprintHash)
		if err != nil {
			return err
		}
		if trusted {
			res, err = s.advance(ctx, c, "", d.ID)
			if err != nil {
				return err
			}
		} else {
			if err := s.contexts.SetRequiresAdditionalSteps(ctx, c.ID, true); err != nil {
				return err
			}
			tx, err := s.ledger.CreateNext(ctx, c.ID, "", txndomain.PhaseMFA, txndomain.Payload{}, nil)
			if err != nil {
				return err
			}
			res = &Result{
				Status:        StatusMFARequired,
				ContextID:     c.ID,
				TransactionID: tx.ID,
				MFAOptions:    s.optionsFor(v),
			}
		}
		s.audit.LogEvent(ctx, audit.Entry{Cupid: v.Cupid, ContextID: c.ID, Action: "login_verified", Resource: "auth_context"})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) optionsFor(v *identity.Verification) []MFAOption {
	opts := []MFAOption{}
	if v.Phone != "" {
		opts = append(opts, MFAOption{OptionID: "otp-sms", Method: txndomain.MethodOTP, MaskedTarget: maskPhone(v.Phone)})
	}
	opts = append(opts, MFAOption{OptionID: "push", Method: txndomain.MethodPush})
	return opts
}

// MFAInitiate consumes the pending MFA transaction and mints the challenge
// transaction for the chosen method. For OTP the code is sent out of band;
// for push the display number is returned for the browser.
func (s *Service) MFAInitiate(ctx context.Context, contextID, transactionID, method string) (*Result, error) {
	c, err := s.contexts.Get(ctx, contextID)
	if err != nil {
		return nil, err
	}
	var res *Result
	err = s.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		tx, err := s.flowTransaction(ctx, c, transactionID, txndomain.PhaseMFA)
		if err != nil {
			return err
		}
		if err := s.ledger.Consume(ctx, tx.ID); err != nil {
			return err
		}
		switch method {
		case txndomain.MethodOTP:
			res, err = s.initiateOTP(ctx, c, tx.ID)
		case txndomain.MethodPush:
			res, err = s.initiatePush(ctx, c, tx.ID)
		default:
			err = ErrUnsupportedMethod
		}
		if err != nil {
			return err
		}
		s.audit.LogEvent(ctx, audit.Entry{Cupid: c.Cupid, ContextID: c.ID, TransactionID: res.TransactionID,
			Action: "mfa_initiated", Resource: "auth_transaction", Metadata: "method=" + method})
		return nil
	})
	if err != nil {
		return nil, err
	}
	event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeMFAInitiated, Cupid: c.Cupid,
		ContextID: c.ID, TransactionID: res.TransactionID, Attributes: map[string]string{"method": method}, OccurredAt: s.now()})
	return res, nil
}

func (s *Service) initiateOTP(ctx context.Context, c *authctxdomain.AuthContext, parentID string) (*Result, error) {
	code, err := mfa.GenerateOTP()
	if err != nil {
		return nil, err
	}
	tx, err := s.ledger.CreateNext(ctx, c.ID, parentID, txndomain.PhaseMFA,
		txndomain.Payload{Method: txndomain.MethodOTP, OTPHash: mfa.HashOTP(code)}, nil)
	if err != nil {
		return nil, err
	}
	res := &Result{Status: StatusMFAPending, ContextID: c.ID, TransactionID: tx.ID, RetryAfter: s.cfg.PushRetryInterval}
	if s.cfg.OTPReturnToClient {
		if s.devOTP != nil {
			s.devOTP.Put(ctx, tx.ID, code, tx.ExpiresAt)
		}
		res.DevOTP = code
		return res, nil
	}
	user, err := s.users.GetByCupid(ctx, c.Cupid)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Phone == "" {
		return nil, ErrUnsupportedMethod
	}
	if s.sender != nil {
		if err := s.sender.SendOTP(user.Phone, code); err != nil {
			// Delivery failure must not leak the code or wedge the flow.
			s.log.Error().Err(err).Str("context_id", c.ID).Msg("otp delivery failed")
			return nil, err
		}
	}
	return res, nil
}

func (s *Service) initiatePush(ctx context.Context, c *authctxdomain.AuthContext, parentID string) (*Result, error) {
	challenge, err := mfa.NewPushChallenge()
	if err != nil {
		return nil, err
	}
	opts := make([]string, len(challenge.Options))
	for i, n := range challenge.Options {
		opts[i] = strconv.Itoa(n)
	}
	tx, err := s.ledger.CreateNext(ctx, c.ID, parentID, txndomain.PhaseMFA,
		txndomain.Payload{Method: txndomain.MethodPush, DisplayNumber: challenge.DisplayNumber},
		map[string]string{"options": strings.Join(opts, ",")})
	if err != nil {
		return nil, err
	}
	return &Result{
		Status:        StatusMFAPending,
		ContextID:     c.ID,
		TransactionID: tx.ID,
		DisplayNumber: challenge.DisplayNumber,
		RetryAfter:    s.cfg.PushRetryInterval,
	}, nil
}

// VerifyOTP checks the submitted code against the challenge transaction. A
// wrong code rejects the transaction immediately: one guess per id, and a
// replayed correct code after rejection still fails.
func (s *Service) VerifyOTP(ctx context.Context, contextID, transactionID, code string) (*Result, error) {
	c, err := s.contexts.Get(ctx, contextID)
	if err != nil {
		return nil, err
	}
	var res *Result
	var mismatch bool
	err = s.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		tx, err := s.flowTransaction(ctx, c, transactionID, txndomain.PhaseMFA)
		if err != nil {
			return err
		}
		if tx.Payload.Method != txndomain.MethodOTP {
			return transaction.ErrTransactionNotFound
		}
		if !mfa.OTPEqual(code, tx.Payload.OTPHash) {
			// The rejection must commit even though the step failed, so the
			// error is raised after the unit of work completes.
			mismatch = true
			if err := s.ledger.Reject(ctx, tx.ID, tx.Payload); err != nil {
				return err
			}
			s.audit.LogEvent(ctx, audit.Entry{Cupid: c.Cupid, ContextID: c.ID, TransactionID: transactionID,
				Action: "mfa_otp_rejected", Resource: "auth_transaction"})
			return nil
		}
		if err := s.ledger.Consume(ctx, tx.ID); err != nil {
			return err
		}
		res, err = s.advance(ctx, c, tx.ID, "")
		if err != nil {
			return err
		}
		s.audit.LogEvent(ctx, audit.Entry{Cupid: c.Cupid, ContextID: c.ID, TransactionID: transactionID,
			Action: "mfa_otp_verified", Resource: "auth_transaction"})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if mismatch {
		event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeMFARejected, Cupid: c.Cupid,
			ContextID: c.ID, TransactionID: transactionID, OccurredAt: s.now()})
		return nil, ErrInvalidOTP
	}
	event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeMFAVerified, Cupid: c.Cupid,
		ContextID: c.ID, OccurredAt: s.now()})
	return res, nil
}

// PushApprove records the companion app's selection on a pending push
// transaction. A matching number approves it; anything else rejects it.
func (s *Service) PushApprove(ctx context.Context, transactionID string, selected int) error {
	tx, err := s.ledger.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if tx.Phase != txndomain.PhaseMFA || tx.Payload.Method != txndomain.MethodPush {
		return transaction.ErrTransactionNotFound
	}
	payload := tx.Payload
	payload.SelectedNumber = &selected
	if selected != tx.Payload.DisplayNumber {
		if err := s.ledger.Reject(ctx, tx.ID, payload); err != nil {
			return err
		}
		event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypePushRejected,
			ContextID: tx.ContextID, TransactionID: tx.ID, OccurredAt: s.now()})
		return ErrPushRejected
	}
	if err := s.ledger.Approve(ctx, tx.ID, payload); err != nil {
		return err
	}
	event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypePushApproved,
		ContextID: tx.ContextID, TransactionID: tx.ID, OccurredAt: s.now()})
	return nil
}

// PushPoll is the browser's non-blocking check on a push transaction. While
// the companion has not decided, the same transaction id stays valid and the
// caller is told to retry; a decision consumes the id and advances the flow.
func (s *Service) PushPoll(ctx context.Context, contextID, transactionID string) (*Result, error) {
	c, err := s.contexts.Get(ctx, contextID)
	if err != nil {
		return nil, err
	}
	var res *Result
	err = s.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		tx, err := s.flowTransaction(ctx, c, transactionID, txndomain.PhaseMFA)
		if err != nil {
			return err
		}
		if tx.Payload.Method != txndomain.MethodPush {
			return transaction.ErrTransactionNotFound
		}
		switch tx.Status {
		case txndomain.StatusPending:
			res = &Result{Status: StatusMFAPending, ContextID: c.ID, TransactionID: tx.ID, RetryAfter: s.cfg.PushRetryInterval}
			return nil
		case txndomain.StatusRejected:
			return ErrPushRejected
		}
		// Approved: the id is spent and the flow moves on.
		if err := s.ledger.Consume(ctx, tx.ID); err != nil {
			return err
		}
		res, err = s.advance(ctx, c, tx.ID, "")
		if err != nil {
			return err
		}
		s.audit.LogEvent(ctx, audit.Entry{Cupid: c.Cupid, ContextID: c.ID, TransactionID: transactionID,
			Action: "mfa_push_verified", Resource: "auth_transaction"})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ESignAccept records acceptance of the presented document and advances.
func (s *Service) ESignAccept(ctx context.Context, contextID, transactionID string) (*Result, error) {
	c, err := s.contexts.Get(ctx, contextID)
	if err != nil {
		return nil, err
	}
	var res *Result
	err = s.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		tx, err := s.flowTransaction(ctx, c, transactionID, txndomain.PhaseESign)
		if err != nil {
			return err
		}
		if err := s.ledger.Consume(ctx, tx.ID); err != nil {
			return err
		}
		if err := s.esign.Accept(ctx, c.Cupid, tx.Payload.DocumentID, c.ID); err != nil {
			return err
		}
		res, err = s.advance(ctx, c, tx.ID, "")
		if err != nil {
			return err
		}
		s.audit.LogEvent(ctx, audit.Entry{Cupid: c.Cupid, ContextID: c.ID, TransactionID: transactionID,
			Action: "esign_accepted", Resource: "esign_acceptance"})
		return nil
	})
	if err != nil {
		return nil, err
	}
	event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeESignAccepted, Cupid: c.Cupid,
		ContextID: c.ID, OccurredAt: s.now()})
	return res, nil
}

// ESignDecline terminates the flow. The requirement stays pending; the next
// login is presented the same document after a fresh authentication.
func (s *Service) ESignDecline(ctx context.Context, contextID, transactionID string) error {
	c, err := s.contexts.Get(ctx, contextID)
	if err != nil {
		return err
	}
	err = s.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		tx, err := s.flowTransaction(ctx, c, transactionID, txndomain.PhaseESign)
		if err != nil {
			return err
		}
		payload := tx.Payload
		payload.DocumentAction = "declined"
		if err := s.ledger.Reject(ctx, tx.ID, payload); err != nil {
			return err
		}
		if err := s.esign.Decline(ctx, c.Cupid, tx.Payload.DocumentID); err != nil {
			return err
		}
		if err := s.contexts.Complete(ctx, c.ID, authctxdomain.OutcomeESignDeclined); err != nil {
			return err
		}
		s.audit.LogEvent(ctx, audit.Entry{Cupid: c.Cupid, ContextID: c.ID, TransactionID: transactionID,
			Action: "esign_declined", Resource: "auth_context"})
		return nil
	})
	if err != nil {
		return err
	}
	event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeESignDeclined, Cupid: c.Cupid,
		ContextID: c.ID, OccurredAt: s.now()})
	return ErrESignDeclined
}

// DeviceBind records the user's decision on remembering the device. Either
// way the flow completes; binding is never mandatory.
func (s *Service) DeviceBind(ctx context.Context, contextID, transactionID string, bind bool) (*Result, error) {
	c, err := s.contexts.Get(ctx, contextID)
	if err != nil {
		return nil, err
	}
	var res *Result
	err = s.uow.WithUnitOfWork(ctx, func(ctx context.Context) error {
		tx, err := s.flowTransaction(ctx, c, transactionID, txndomain.PhaseDeviceBind)
		if err != nil {
			return err
		}
		payload := tx.Payload
		payload.BindDecision = &bind
		if err := s.ledger.Approve(ctx, tx.ID, payload); err != nil {
			return err
		}
		if err := s.ledger.Consume(ctx, tx.ID); err != nil {
			return err
		}
		var deviceID string
		if bind && c.DeviceFingerprintHash != "" {
			d, err := s.devices.Trust(ctx, c.Cupid, c.GUID, c.DeviceFingerprintHash)
			if err != nil {
				return err
			}
			deviceID = d.ID
		}
		res, err = s.finish(ctx, c, deviceID)
		if err != nil {
			return err
		}
		if bind {
			s.audit.LogEvent(ctx, audit.Entry{Cupid: c.Cupid, ContextID: c.ID, TransactionID: transactionID,
				Action: "device_trusted", Resource: "trusted_device"})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if bind {
		event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeDeviceTrusted, Cupid: c.Cupid,
			ContextID: c.ID, OccurredAt: s.now()})
	}
	return res, nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, refreshValue string) (*token.Set, error) {
	set, err := s.tokens.Rotate(ctx, refreshValue)
	if err != nil {
		if errors.Is(err, token.ErrTokenReused) {
			s.audit.LogEvent(ctx, audit.Entry{Action: "token_reuse_detected", Resource: "token"})
			event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeTokenReuseDetected, OccurredAt: s.now()})
		}
		return nil, err
	}
	event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeTokenRotated, SessionID: set.SessionID, OccurredAt: s.now()})
	return set, nil
}

// RevokeToken revokes the presented token and its rotation descendants.
func (s *Service) RevokeToken(ctx context.Context, value string) error {
	if err := s.tokens.RevokeToken(ctx, value, sessiondomain.RevokedByUser, "revocation request"); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, audit.Entry{Action: "token_revoked", Resource: "token"})
	return nil
}

// Introspect reports whether an access token is live.
func (s *Service) Introspect(ctx context.Context, accessValue string) (*token.Introspection, error) {
	return s.tokens.Introspect(ctx, accessValue)
}

// Logout terminates the session behind a live refresh token.
func (s *Service) Logout(ctx context.Context, refreshValue string) error {
	if err := s.tokens.Logout(ctx, refreshValue); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, audit.Entry{Action: "logout", Resource: "session"})
	event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeLogout, OccurredAt: s.now()})
	return nil
}

// flowTransaction resolves a transaction id and checks it belongs to the
// context and phase. A transaction from another context reads as not found.
func (s *Service) flowTransaction(ctx context.Context, c *authctxdomain.AuthContext, transactionID string, phase txndomain.Phase) (*txndomain.AuthTransaction, error) {
	tx, err := s.ledger.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.ContextID != c.ID || tx.Phase != phase {
		return nil, transaction.ErrTransactionNotFound
	}
	return tx, nil
}

// advance moves a verified flow to its next step. Order is fixed: a pending
// eSign document comes before the device-bind offer, which comes before
// token issuance.
func (s *Service) advance(ctx context.Context, c *authctxdomain.AuthContext, parentTxnID, trustedDeviceID string) (*Result, error) {
	req, err := s.esign.Pending(ctx, c.Cupid)
	if err != nil {
		return nil, err
	}
	if req != nil {
		tx, err := s.ledger.CreateNext(ctx, c.ID, parentTxnID, txndomain.PhaseESign,
			txndomain.Payload{DocumentID: req.DocumentID}, nil)
		if err != nil {
			return nil, err
		}
		return &Result{Status: StatusESignRequired, ContextID: c.ID, TransactionID: tx.ID, DocumentID: req.DocumentID}, nil
	}

	// The bind offer only makes sense when the login carried a fingerprint
	// and the device is not already trusted.
	if trustedDeviceID == "" && c.DeviceFingerprintHash != "" {
		state, _, err := s.devices.State(ctx, c.Cupid, c.DeviceFingerprintHash)
		if err != nil {
			return nil, err
		}
		if state != device.TrustActive {
			tx, err := s.ledger.CreateNext(ctx, c.ID, parentTxnID, txndomain.PhaseDeviceBind, txndomain.Payload{}, nil)
			if err != nil {
				return nil, err
			}
			return &Result{Status: StatusDeviceBindRequired, ContextID: c.ID, TransactionID: tx.ID}, nil
		}
	}
	return s.finish(ctx, c, trustedDeviceID)
}

// finish creates the session, issues the token set, and completes the context.
func (s *Service) finish(ctx context.Context, c *authctxdomain.AuthContext, deviceID string) (*Result, error) {
	user, err := s.users.GetByCupid(ctx, c.Cupid)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	now := s.now()
	sess := &sessiondomain.Session{
		ID:        uuid.New().String(),
		Cupid:     c.Cupid,
		ContextID: c.ID,
		DeviceID:  deviceID,
		Status:    sessiondomain.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	set, err := s.tokens.IssueSessionTokens(ctx, sess,
		security.Profile{GUID: user.GUID, Username: user.Username, Email: user.Email}, user.Roles)
	if err != nil {
		return nil, err
	}
	if err := s.contexts.SetRequiresAdditionalSteps(ctx, c.ID, false); err != nil {
		return nil, err
	}
	if err := s.contexts.Complete(ctx, c.ID, authctxdomain.OutcomeSuccess); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.Entry{Cupid: c.Cupid, ContextID: c.ID, Action: "login_success", Resource: "session"})
	event.EmitAsync(s.emitter, &event.SecurityEvent{Type: event.TypeLoginSuccess, Cupid: c.Cupid,
		ContextID: c.ID, SessionID: sess.ID, IPAddress: c.IPAddress, OccurredAt: s.now()})
	return &Result{Status: StatusSuccess, ContextID: c.ID, Tokens: set}, nil
}

// maskPhone keeps the last four digits of a phone number.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}
