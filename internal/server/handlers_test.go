package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majafary/ciam-claude-sub001/internal/audit"
	"github.com/majafary/ciam-claude-sub001/internal/authcontext"
	authctxrepo "github.com/majafary/ciam-claude-sub001/internal/authcontext/repository"
	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/device"
	devicerepo "github.com/majafary/ciam-claude-sub001/internal/device/repository"
	"github.com/majafary/ciam-claude-sub001/internal/devotp"
	"github.com/majafary/ciam-claude-sub001/internal/esign"
	esignrepo "github.com/majafary/ciam-claude-sub001/internal/esign/repository"
	"github.com/majafary/ciam-claude-sub001/internal/flow"
	"github.com/majafary/ciam-claude-sub001/internal/identity"
	identitydomain "github.com/majafary/ciam-claude-sub001/internal/identity/domain"
	identityrepo "github.com/majafary/ciam-claude-sub001/internal/identity/repository"
	"github.com/majafary/ciam-claude-sub001/internal/security"
	sessionrepo "github.com/majafary/ciam-claude-sub001/internal/session/repository"
	"github.com/majafary/ciam-claude-sub001/internal/token"
	tokenrepo "github.com/majafary/ciam-claude-sub001/internal/token/repository"
	"github.com/majafary/ciam-claude-sub001/internal/transaction"
	txnrepo "github.com/majafary/ciam-claude-sub001/internal/transaction/repository"
)

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	esign  *esign.Gate
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := identityrepo.NewMemoryRepository()
	hasher := security.NewHasher(4)
	provider, err := security.NewTestTokenProvider()
	require.NoError(t, err)

	uow := db.NewMemoryUnitOfWork()
	sessions := sessionrepo.NewMemoryRepository()
	tokens := tokenrepo.NewMemoryRepository()
	manager := token.NewManager(provider, tokens, sessions, uow, func(ctx context.Context, cupid string) (security.Profile, error) {
		u, err := users.GetByCupid(ctx, cupid)
		if err != nil || u == nil {
			return security.Profile{}, err
		}
		return security.Profile{GUID: u.GUID, Username: u.Username, Email: u.Email}, nil
	})

	contexts := authcontext.NewStore(authctxrepo.NewMemoryRepository(), 10*time.Minute)
	ledger := transaction.NewLedger(txnrepo.NewMemoryRepository(), transaction.TTLs{
		MFA: 5 * time.Minute, ESign: 10 * time.Minute, DeviceBind: 10 * time.Minute,
	})
	esignGate := esign.NewGate(esignrepo.NewMemoryRequirementRepository(), esignrepo.NewMemoryAcceptanceRepository())
	devOTP := devotp.NewMemoryStore()

	svc := flow.NewService(flow.Deps{
		Gate:     identity.NewLocalGate(users, hasher),
		Users:    users,
		Contexts: contexts,
		Ledger:   ledger,
		Sessions: sessions,
		Tokens:   manager,
		Devices:  device.NewRegistry(devicerepo.NewMemoryRepository(), 30*24*time.Hour),
		ESign:    esignGate,
		UoW:      uow,
		DevOTP:   devOTP,
		Audit:    audit.Nop(),
		Log:      zerolog.Nop(),
	}, flow.Config{
		SessionTTL:        24 * time.Hour,
		PushRetryInterval: time.Second,
		OTPReturnToClient: true,
	})

	hash, err := hasher.Hash([]byte("password"))
	require.NoError(t, err)
	for username, status := range map[string]identitydomain.UserStatus{
		"mfauser":    identitydomain.UserStatusActive,
		"lockeduser": identitydomain.UserStatusLocked,
	} {
		require.NoError(t, users.Create(context.Background(), &identitydomain.User{
			Cupid: "cupid-" + username, GUID: "guid-" + username,
			Username: username, Email: username + "@example.com", Phone: "15551234567",
			PasswordHash: hash, Roles: []string{"customer"}, Status: status,
		}))
	}

	h := NewHandler(svc, devOTP, HandlerConfig{DevOTPEnabled: true}, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(h, zerolog.Nop()))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, esign: esignGate}
}

func (e *testEnv) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := e.client.Post(e.srv.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *testEnv) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *testEnv) login(t *testing.T) map[string]any {
	t.Helper()
	code, body := e.post(t, "/auth/login", map[string]any{
		"username": "mfauser", "password": "password",
		"app_id": "web", "device_fingerprint": "fp-raw-1",
	})
	require.Equal(t, http.StatusOK, code, "login body: %v", body)
	return body
}

// loginToSuccess walks the whole OTP flow and returns the final body carrying
// the access token. The refresh token lands in the client's cookie jar.
func (e *testEnv) loginToSuccess(t *testing.T) map[string]any {
	t.Helper()
	body := e.login(t)
	require.Equal(t, "MFA_REQUIRED", body["status"])

	code, body := e.post(t, "/auth/mfa/initiate", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"], "method": "otp",
	})
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, body["dev_otp"])

	code, body = e.post(t, "/auth/mfa/otp/verify", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"], "code": body["dev_otp"],
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "DEVICE_BIND_REQUIRED", body["status"])

	code, body = e.post(t, "/auth/device/bind", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"], "bind": false,
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "SUCCESS", body["status"])
	require.NotEmpty(t, body["access_token"])
	return body
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.post(t, "/auth/login", map[string]any{"username": "mfauser", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_credentials", body["error_code"])

	// Unknown users get the identical response.
	code, body2 := e.post(t, "/auth/login", map[string]any{"username": "ghost", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, body, body2)
}

func TestHandleLogin_LockedAccount(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.post(t, "/auth/login", map[string]any{"username": "lockeduser", "password": "password"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "account_locked", body["error_code"])
}

func TestHandleLogin_MissingFields(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.post(t, "/auth/login", map[string]any{"username": "mfauser"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_request", body["error_code"])
}

func TestFullOTPFlow(t *testing.T) {
	e := newTestEnv(t)

	body := e.login(t)
	assert.Equal(t, "MFA_REQUIRED", body["status"])
	assert.NotEmpty(t, body["context_id"])
	assert.NotEmpty(t, body["transaction_id"])
	opts, ok := body["mfa_options"].([]any)
	require.True(t, ok)
	assert.Len(t, opts, 2)

	final := e.loginToSuccess(t)
	assert.Equal(t, "Bearer", final["token_type"])
	assert.NotEmpty(t, final["id_token"])

	// The refresh token travels only as an httpOnly cookie, never in the body.
	assert.NotContains(t, final, "refresh_token")
	var found bool
	for _, c := range e.client.Jar.Cookies(mustParseURL(t, e.srv.URL+"/auth")) {
		if c.Name == refreshCookieName && c.Value != "" {
			found = true
		}
	}
	assert.True(t, found, "refresh cookie must be set on success")

	code, introspect := e.post(t, "/auth/token/introspect", map[string]any{"token": final["access_token"]})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, introspect["active"])
	assert.Equal(t, "cupid-mfauser", introspect["sub"])
}

func TestHandleRefresh_RotatesCookie(t *testing.T) {
	e := newTestEnv(t)
	final := e.loginToSuccess(t)

	// The jar carries the refresh cookie to /auth/token/refresh.
	code, body := e.post(t, "/auth/token/refresh", map[string]any{})
	require.Equal(t, http.StatusOK, code, "refresh body: %v", body)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEqual(t, final["access_token"], body["access_token"])

	// The rotated cookie keeps working.
	code, _ = e.post(t, "/auth/token/refresh", map[string]any{})
	assert.Equal(t, http.StatusOK, code)
}

func TestHandleRefresh_NoCookie(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.post(t, "/auth/token/refresh", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_token", body["error_code"])
}

func TestHandleRefresh_ReuseIsGenericInvalidToken(t *testing.T) {
	e := newTestEnv(t)
	e.loginToSuccess(t)

	u := mustParseURL(t, e.srv.URL+"/auth")
	var stale string
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == refreshCookieName {
			stale = c.Value
		}
	}
	require.NotEmpty(t, stale)

	code, _ := e.post(t, "/auth/token/refresh", map[string]any{})
	require.Equal(t, http.StatusOK, code)

	// Replaying the pre-rotation value is reuse. The response is the same
	// generic invalid token body an expired token would get.
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/auth/token/refresh", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: stale})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_token", body["error_code"])
	assert.Equal(t, "token is invalid or expired", body["message"])
}

func TestHandleLogout(t *testing.T) {
	e := newTestEnv(t)
	final := e.loginToSuccess(t)

	code, body := e.post(t, "/auth/logout", map[string]any{})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "LOGGED_OUT", body["status"])

	code, introspect := e.post(t, "/auth/token/introspect", map[string]any{"token": final["access_token"]})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, introspect["active"])
}

func TestPushMismatchOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	body := e.login(t)

	code, body := e.post(t, "/auth/mfa/initiate", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"], "method": "push",
	})
	require.Equal(t, http.StatusOK, code)
	display := int(body["display_number"].(float64))
	require.GreaterOrEqual(t, display, 1)
	require.LessOrEqual(t, display, 9)

	wrong := display%9 + 1
	code, approve := e.post(t, "/auth/mfa/push/approve", map[string]any{
		"transaction_id": body["transaction_id"], "selected_number": wrong,
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "push_rejected", approve["error_code"])

	code, poll := e.post(t, "/auth/mfa/push/verify", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"],
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "push_rejected", poll["error_code"])
}

func TestPushApproveThenPollOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	body := e.login(t)

	code, body := e.post(t, "/auth/mfa/initiate", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"], "method": "push",
	})
	require.Equal(t, http.StatusOK, code)

	// Poll while the companion has not decided yet.
	code, poll := e.post(t, "/auth/mfa/push/verify", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"],
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "MFA_PENDING", poll["status"])
	assert.Equal(t, body["transaction_id"], poll["transaction_id"])
	assert.NotZero(t, poll["retry_after_ms"])

	code, _ = e.post(t, "/auth/mfa/push/approve", map[string]any{
		"transaction_id": body["transaction_id"], "selected_number": int(body["display_number"].(float64)),
	})
	require.Equal(t, http.StatusOK, code)

	code, poll = e.post(t, "/auth/mfa/push/verify", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"],
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "DEVICE_BIND_REQUIRED", poll["status"])
}

func TestESignDeclineOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.esign.Require(context.Background(), "cupid-mfauser", "terms-v2", true, ""))

	body := e.login(t)
	code, body := e.post(t, "/auth/mfa/initiate", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"], "method": "otp",
	})
	require.Equal(t, http.StatusOK, code)
	code, body = e.post(t, "/auth/mfa/otp/verify", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"], "code": body["dev_otp"],
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ESIGN_REQUIRED", body["status"])
	require.Equal(t, "terms-v2", body["document_id"])

	code, decline := e.post(t, "/auth/esign/decline", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"],
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "esign_declined", decline["error_code"])

	// The flow is dead: the same transaction cannot be accepted afterwards.
	code, accept := e.post(t, "/auth/esign/accept", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"],
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "context_completed", accept["error_code"])
}

func TestOTPReplayOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	body := e.login(t)

	code, body := e.post(t, "/auth/mfa/initiate", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"], "method": "otp",
	})
	require.Equal(t, http.StatusOK, code)
	verify := map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"], "code": body["dev_otp"],
	}
	code, _ = e.post(t, "/auth/mfa/otp/verify", verify)
	require.Equal(t, http.StatusOK, code)

	code, replay := e.post(t, "/auth/mfa/otp/verify", verify)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "transaction_consumed", replay["error_code"])
}

func TestUnknownContext(t *testing.T) {
	e := newTestEnv(t)

	code, body := e.post(t, "/auth/mfa/initiate", map[string]any{
		"context_id": "no-such-context", "transaction_id": "no-such-txn", "method": "otp",
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "context_not_found", body["error_code"])
}

func TestDevOTPEndpoint(t *testing.T) {
	e := newTestEnv(t)
	body := e.login(t)

	code, body := e.post(t, "/auth/mfa/initiate", map[string]any{
		"context_id": body["context_id"], "transaction_id": body["transaction_id"], "method": "otp",
	})
	require.Equal(t, http.StatusOK, code)

	code, dev := e.get(t, "/dev/mfa/otp?transaction_id="+body["transaction_id"].(string))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, body["dev_otp"], dev["otp"])

	code, _ = e.get(t, "/dev/mfa/otp?transaction_id=unknown")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	code, body := e.get(t, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
