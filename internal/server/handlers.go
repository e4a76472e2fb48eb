// Package server is the HTTP surface: chi routes, request/response shapes,
// and the mapping from domain sentinels to status codes. Token reuse detail
// never leaves this boundary; callers see a generic invalid-token response
// while the detail goes to audit and the security topic.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/majafary/ciam-claude-sub001/internal/authcontext"
	"github.com/majafary/ciam-claude-sub001/internal/devotp"
	"github.com/majafary/ciam-claude-sub001/internal/flow"
	"github.com/majafary/ciam-claude-sub001/internal/security"
	"github.com/majafary/ciam-claude-sub001/internal/token"
	"github.com/majafary/ciam-claude-sub001/internal/transaction"
)

// refreshCookieName is the httpOnly cookie carrying the refresh token. The
// value never appears in response bodies.
const refreshCookieName = "refresh_token"

// HandlerConfig carries the transport tunables.
type HandlerConfig struct {
	// CookieSecure sets the Secure flag on the refresh cookie. Off only for
	// local plain-HTTP development.
	CookieSecure bool
	// DevOTPEnabled exposes GET /dev/mfa/otp. Non-production only.
	DevOTPEnabled bool
}

// Handler holds the auth endpoints.
type Handler struct {
	flow   *flow.Service
	devOTP devotp.Store
	cfg    HandlerConfig
	log    zerolog.Logger
}

// NewHandler returns the auth endpoint handler. devOTP may be nil when dev
// OTP mode is disabled.
func NewHandler(svc *flow.Service, devOTP devotp.Store, cfg HandlerConfig, log zerolog.Logger) *Handler {
	return &Handler{flow: svc, devOTP: devOTP, cfg: cfg, log: log}
}

type loginRequest struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	AppID             string `json:"app_id"`
	AppVersion        string `json:"app_version"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

type mfaOptionResponse struct {
	OptionID     string `json:"option_id"`
	Method       string `json:"method"`
	MaskedTarget string `json:"masked_target,omitempty"`
}

// stepResponse is the shared shape for in-flow responses.
type stepResponse struct {
	Status        string              `json:"status"`
	ContextID     string              `json:"context_id,omitempty"`
	TransactionID string              `json:"transaction_id,omitempty"`
	MFAOptions    []mfaOptionResponse `json:"mfa_options,omitempty"`
	DisplayNumber int                 `json:"display_number,omitempty"`
	DocumentID    string              `json:"document_id,omitempty"`
	RetryAfterMS  int64               `json:"retry_after_ms,omitempty"`
	DevOTP        string              `json:"dev_otp,omitempty"`

	AccessToken string `json:"access_token,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}

type stepRequest struct {
	ContextID     string `json:"context_id"`
	TransactionID string `json:"transaction_id"`
	Method        string `json:"method"`
	Code          string `json:"code"`
	Selected      *int   `json:"selected_number"`
	Bind          *bool  `json:"bind"`
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}
	meta := authcontext.Meta{
		AppID:      req.AppID,
		AppVersion: req.AppVersion,
		IPAddress:  ClientIP(r),
		UserAgent:  r.UserAgent(),
	}
	if req.DeviceFingerprint != "" {
		meta.DeviceFingerprintHash = security.HashValue(req.DeviceFingerprint)
	}
	res, err := h.flow.Login(r.Context(), req.Username, req.Password, meta)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondStep(w, r, res)
}

// HandleMFAInitiate handles POST /auth/mfa/initiate.
func (h *Handler) HandleMFAInitiate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStep(w, r)
	if !ok {
		return
	}
	res, err := h.flow.MFAInitiate(r.Context(), req.ContextID, req.TransactionID, req.Method)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondStep(w, r, res)
}

// HandleVerifyOTP handles POST /auth/mfa/otp/verify.
func (h *Handler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStep(w, r)
	if !ok {
		return
	}
	if req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}
	res, err := h.flow.VerifyOTP(r.Context(), req.ContextID, req.TransactionID, req.Code)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondStep(w, r, res)
}

// HandlePushPoll handles POST /auth/mfa/push/verify, the browser's
// non-blocking poll.
func (h *Handler) HandlePushPoll(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStep(w, r)
	if !ok {
		return
	}
	res, err := h.flow.PushPoll(r.Context(), req.ContextID, req.TransactionID)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondStep(w, r, res)
}

// HandlePushApprove handles POST /auth/mfa/push/approve, the companion app's
// number selection.
func (h *Handler) HandlePushApprove(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStep(w, r)
	if !ok {
		return
	}
	if req.Selected == nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "selected_number is required")
		return
	}
	if err := h.flow.PushApprove(r.Context(), req.TransactionID, *req.Selected); err != nil {
		h.respondFlowError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "RECORDED"})
}

// HandleESignAccept handles POST /auth/esign/accept.
func (h *Handler) HandleESignAccept(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStep(w, r)
	if !ok {
		return
	}
	res, err := h.flow.ESignAccept(r.Context(), req.ContextID, req.TransactionID)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondStep(w, r, res)
}

// HandleESignDecline handles POST /auth/esign/decline.
func (h *Handler) HandleESignDecline(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStep(w, r)
	if !ok {
		return
	}
	err := h.flow.ESignDecline(r.Context(), req.ContextID, req.TransactionID)
	if err != nil && !errors.Is(err, flow.ErrESignDeclined) {
		h.respondFlowError(w, err)
		return
	}
	respondWithError(w, http.StatusForbidden, "esign_declined", "document declined; authentication terminated")
}

// HandleDeviceBind handles POST /auth/device/bind.
func (h *Handler) HandleDeviceBind(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStep(w, r)
	if !ok {
		return
	}
	bind := req.Bind != nil && *req.Bind
	res, err := h.flow.DeviceBind(r.Context(), req.ContextID, req.TransactionID, bind)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	h.respondStep(w, r, res)
}

// HandleRefresh handles POST /auth/token/refresh. The refresh token travels
// only in the httpOnly cookie.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	value, ok := h.refreshFromCookie(w, r)
	if !ok {
		return
	}
	set, err := h.flow.Refresh(r.Context(), value)
	if err != nil {
		h.clearRefreshCookie(w)
		h.respondFlowError(w, err)
		return
	}
	h.setRefreshCookie(w, set.RefreshToken, set.RefreshExpiresAt)
	respondWithJSON(w, http.StatusOK, stepResponse{
		Status:      string(flow.StatusSuccess),
		AccessToken: set.AccessToken,
		IDToken:     set.IDToken,
		TokenType:   "Bearer",
		ExpiresAt:   set.AccessExpiresAt.Unix(),
	})
}

type tokenRequest struct {
	Token string `json:"token"`
}

// HandleRevoke handles POST /auth/token/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	if err := h.flow.RevokeToken(r.Context(), req.Token); err != nil {
		h.respondFlowError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "REVOKED"})
}

type introspectResponse struct {
	Active    bool     `json:"active"`
	Sub       string   `json:"sub,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Exp       int64    `json:"exp,omitempty"`
}

// HandleIntrospect handles POST /auth/token/introspect.
func (h *Handler) HandleIntrospect(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	intro, err := h.flow.Introspect(r.Context(), req.Token)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	resp := introspectResponse{Active: intro.Active}
	if intro.Active {
		resp.Sub = intro.Cupid
		resp.SessionID = intro.SessionID
		resp.Roles = intro.Roles
		resp.Exp = intro.ExpiresAt.Unix()
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// HandleLogout handles POST /auth/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	value, ok := h.refreshFromCookie(w, r)
	if !ok {
		return
	}
	err := h.flow.Logout(r.Context(), value)
	h.clearRefreshCookie(w)
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "LOGGED_OUT"})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleDevOTP handles GET /dev/mfa/otp. Registered only when dev OTP mode
// is enabled.
func (h *Handler) HandleDevOTP(w http.ResponseWriter, r *http.Request) {
	transactionID := r.URL.Query().Get("transaction_id")
	if transactionID == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "transaction_id is required")
		return
	}
	if h.devOTP == nil {
		respondWithError(w, http.StatusNotFound, "not_found", "dev otp store disabled")
		return
	}
	otp, ok := h.devOTP.Get(r.Context(), transactionID)
	if !ok {
		respondWithError(w, http.StatusNotFound, "not_found", "no otp for transaction")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"transaction_id": transactionID, "otp": otp})
}

func (h *Handler) decodeStep(w http.ResponseWriter, r *http.Request) (*stepRequest, bool) {
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return nil, false
	}
	if req.TransactionID == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "transaction_id is required")
		return nil, false
	}
	return &req, true
}

func (h *Handler) respondStep(w http.ResponseWriter, r *http.Request, res *flow.Result) {
	resp := stepResponse{
		Status:        string(res.Status),
		ContextID:     res.ContextID,
		TransactionID: res.TransactionID,
		DisplayNumber: res.DisplayNumber,
		DocumentID:    res.DocumentID,
		DevOTP:        res.DevOTP,
	}
	if res.RetryAfter > 0 {
		resp.RetryAfterMS = res.RetryAfter.Milliseconds()
	}
	for _, o := range res.MFAOptions {
		resp.MFAOptions = append(resp.MFAOptions, mfaOptionResponse(o))
	}
	if res.Status == flow.StatusSuccess && res.Tokens != nil {
		h.setRefreshCookie(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
		resp.AccessToken = res.Tokens.AccessToken
		resp.IDToken = res.Tokens.IDToken
		resp.TokenType = "Bearer"
		resp.ExpiresAt = res.Tokens.AccessExpiresAt.Unix()
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) refreshFromCookie(w http.ResponseWriter, r *http.Request) (string, bool) {
	c, err := r.Cookie(refreshCookieName)
	if err != nil || c.Value == "" {
		respondWithError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
		return "", false
	}
	return c.Value, true
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/auth",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// respondFlowError maps domain sentinels to HTTP status codes and stable
// error codes. Token reuse intentionally collapses into the generic invalid
// token response.
func (h *Handler) respondFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flow.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "invalid_credentials", "username or password is incorrect")
	case errors.Is(err, flow.ErrAccountLocked):
		respondWithError(w, http.StatusForbidden, "account_locked", "account is locked")
	case errors.Is(err, flow.ErrMFALocked):
		respondWithError(w, http.StatusForbidden, "mfa_locked", "account is locked out of mfa")
	case errors.Is(err, flow.ErrInvalidOTP):
		respondWithError(w, http.StatusUnauthorized, "invalid_otp", "code is incorrect; request a new challenge")
	case errors.Is(err, flow.ErrPushRejected):
		respondWithError(w, http.StatusForbidden, "push_rejected", "push verification was rejected")
	case errors.Is(err, flow.ErrESignDeclined):
		respondWithError(w, http.StatusForbidden, "esign_declined", "document declined; authentication terminated")
	case errors.Is(err, flow.ErrUnsupportedMethod):
		respondWithError(w, http.StatusBadRequest, "invalid_request", "unsupported mfa method")
	case errors.Is(err, authcontext.ErrContextNotFound):
		respondWithError(w, http.StatusNotFound, "context_not_found", "unknown context")
	case errors.Is(err, authcontext.ErrContextExpired):
		respondWithError(w, http.StatusGone, "context_expired", "authentication flow expired")
	case errors.Is(err, authcontext.ErrContextCompleted):
		respondWithError(w, http.StatusConflict, "context_completed", "authentication flow already completed")
	case errors.Is(err, transaction.ErrTransactionNotFound):
		respondWithError(w, http.StatusNotFound, "transaction_not_found", "unknown transaction")
	case errors.Is(err, transaction.ErrTransactionExpired):
		respondWithError(w, http.StatusGone, "transaction_expired", "transaction expired")
	case errors.Is(err, transaction.ErrTransactionConsumed), errors.Is(err, transaction.ErrTransactionNotPending):
		respondWithError(w, http.StatusConflict, "transaction_consumed", "transaction already used")
	case errors.Is(err, token.ErrTokenInvalid), errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenRevoked), errors.Is(err, token.ErrTokenReused),
		errors.Is(err, token.ErrSessionNotActive):
		// Reuse detail goes to audit and the security topic, never here.
		respondWithError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
	default:
		h.log.Error().Err(err).Msg("unhandled flow error")
		respondWithError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, code, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error_code": code, "message": message})
}
