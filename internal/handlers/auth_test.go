package handlers_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/authguard/internal/auth"
	"github.com/kestrelsec/authguard/internal/config"
	"github.com/kestrelsec/authguard/internal/delivery"
	"github.com/kestrelsec/authguard/internal/events"
	"github.com/kestrelsec/authguard/internal/handlers"
	"github.com/kestrelsec/authguard/internal/models"
	"github.com/kestrelsec/authguard/internal/repositories"
	"github.com/kestrelsec/authguard/internal/routes"
	"github.com/kestrelsec/authguard/internal/services"
	"github.com/kestrelsec/authguard/pkg/crypt"
	pkghttp "github.com/kestrelsec/authguard/pkg/http"
	pkglogger "github.com/kestrelsec/authguard/pkg/logger"
	"github.com/kestrelsec/authguard/pkg/password"
)

const fixturePassword = "Str0ng!Passw0rd"

var (
	fixtureHashOnce sync.Once
	fixtureHash     string
)

func fixturePasswordHash(t *testing.T) string {
	fixtureHashOnce.Do(func() {
		h, err := password.Hash(fixturePassword)
		if err != nil {
			t.Fatalf("hash fixture password: %v", err)
		}
		fixtureHash = h
	})
	return fixtureHash
}

type stubSender struct {
	lastPayload delivery.Payload
	fail        bool
}

func (s *stubSender) Send(ctx context.Context, channel models.Channel, destination string, payload delivery.Payload) (*delivery.Receipt, error) {
	s.lastPayload = payload
	if s.fail {
		return &delivery.Receipt{Status: delivery.StatusFailed}, models.ErrDeliveryFailed
	}
	return &delivery.Receipt{Status: delivery.StatusSent, ProviderRef: "stub"}, nil
}

type fixture struct {
	router chi.Router
	sender *stubSender
	store  *repositories.MemoryCredentialStore
	fields *crypt.FieldService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	auditLogger := pkglogger.NewAuditLogger(logger)
	sink := events.NewSink(64, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sink.Close(ctx)
	})

	lockoutCfg := config.LockoutConfig{MaxLoginAttempts: 5, LockoutDuration: 15 * time.Minute, MaxLockoutDuration: time.Hour}
	sessionCfg := config.SessionConfig{Timeout: time.Hour, SweepInterval: 5 * time.Minute}
	otpCfg := config.OTPConfig{Length: 6, Expiry: 5 * time.Minute, MaxAttempts: 3, Cooldown: 15 * time.Minute, InitiatesPerWindow: 10, RateWindow: time.Minute, ChannelQuota: 10}
	mfaCfg := config.MFAConfig{Enabled: true, TokenSecret: "test-secret-with-sufficient-length", TokenExpiry: 5 * time.Minute, TOTPIssuer: "authguard-test"}

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	fields, err := crypt.NewFieldService(key)
	require.NoError(t, err)

	lockout := services.NewLockoutService(repositories.NewMemoryAttemptRepository(), lockoutCfg, logger, auditLogger)
	sessions := services.NewSessionService(repositories.NewMemorySessionRepository(), sessionCfg, logger)

	store := repositories.NewMemoryCredentialStore()
	store.Seed(models.Credential{
		PrincipalID: "principal-1",
		Identifier:  "user@example.com",
		SecretHash:  fixturePasswordHash(t),
	})

	credentials := services.NewCredentialService(
		store, lockout, sessions,
		password.NewEngine(password.DefaultPolicy()),
		auth.NewMFATokenManager(mfaCfg.TokenSecret, mfaCfg.TokenExpiry),
		auth.NewTOTPManager(fields, mfaCfg.TOTPIssuer),
		mfaCfg, sink, logger, auditLogger,
	)

	sender := &stubSender{}
	otp := services.NewOTPService(repositories.NewMemoryChallengeRepository(), lockout, sessions, sender, otpCfg, sink, logger, auditLogger)
	posture := services.NewPostureService(lockout, sessions, true, true, logger)

	ips := pkghttp.NewClientIPResolver(nil)
	router := chi.NewRouter()
	routes.RegisterRoutes(router,
		handlers.NewAuthHandler(credentials, sessions, ips, logger),
		handlers.NewOTPHandler(otp, ips, logger),
		handlers.NewAdminHandler(lockout, posture, logger),
	)

	return &fixture{router: router, sender: sender, store: store, fields: fields}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:54321"
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"identifier": "user@example.com",
		"password":   fixturePassword,
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "success", body["outcome"])
	session := body["session"].(map[string]any)
	assert.NotEmpty(t, session["id"])
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"identifier": "user@example.com",
		"password":   "Wr0ng!Passw0rd!",
	})

	require.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, "failure", body["outcome"])
	assert.Equal(t, "invalid-credentials", body["reason"])
}

func TestLogin_MissingFields(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/login", map[string]string{"identifier": "user@example.com"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// currentTOTPCode recovers the stored secret and computes the code an
// authenticator app would show right now.
func (f *fixture) currentTOTPCode(t *testing.T, principalID string) string {
	t.Helper()

	cred, err := f.store.LookupPrincipal(context.Background(), principalID)
	require.NoError(t, err)
	require.NotNil(t, cred.TOTPSecret)

	var secret string
	require.NoError(t, f.fields.Decrypt(cred.TOTPSecret, &secret))

	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    pqotp.DigitsSix,
		Algorithm: pqotp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestMFAFlowOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/admin/mfa/enrollments", map[string]string{"identifier": "user@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	qr, _ := decode(t, w)["qr_code"].(string)
	assert.Contains(t, qr, "data:image/png;base64,")

	w = f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"identifier": "user@example.com",
		"password":   fixturePassword,
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "mfa_required", body["outcome"])
	token, _ := body["mfa_token"].(string)
	require.NotEmpty(t, token)

	w = f.do(t, http.MethodPost, "/auth/mfa", map[string]string{
		"mfa_token": token,
		"code":      f.currentTOTPCode(t, "principal-1"),
	})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "success", body["outcome"])
	session := body["session"].(map[string]any)
	assert.NotEmpty(t, session["id"])
}

func TestCompleteMFA_BadToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/mfa", map[string]string{
		"mfa_token": "not-a-token",
		"code":      "123456",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"identifier": "user@example.com",
		"password":   fixturePassword,
	})
	require.Equal(t, http.StatusOK, w.Code)
	sessionID := decode(t, w)["session"].(map[string]any)["id"].(string)

	w = f.do(t, http.MethodPost, "/session/validate", map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["valid"])

	w = f.do(t, http.MethodPost, "/auth/logout", map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["terminated"])

	w = f.do(t, http.MethodPost, "/session/validate", map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "not found", decode(t, w)["reason"])
}

func TestOTPFlowOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/otp/initiate", map[string]string{
		"principal_id": "principal-1",
		"channel":      "sms",
		"destination":  "+15551231234",
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "+1***1234", body["masked_destination"])
	challengeID := body["challenge_id"].(string)

	w = f.do(t, http.MethodPost, "/otp/verify", map[string]string{
		"challenge_id": challengeID,
		"code":         f.sender.lastPayload.Code,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w)["outcome"])
}

func TestOTPInitiate_DeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.sender.fail = true

	w := f.do(t, http.MethodPost, "/otp/initiate", map[string]string{
		"principal_id": "principal-1",
		"channel":      "sms",
		"destination":  "+15551231234",
	})

	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, "could not send code", body["message"])
}

func TestOTPInitiate_UnknownChannel(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/otp/initiate", map[string]string{
		"principal_id": "principal-1",
		"channel":      "fax",
		"destination":  "+15551231234",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminBlockAndPosture(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/admin/blocks", map[string]string{"ip": "203.0.113.9", "reason": "abuse"})
	require.Equal(t, http.StatusCreated, w.Code)

	// A blocked origin cannot authenticate even with valid credentials.
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]string{
		"identifier": "user@example.com",
		"password":   fixturePassword,
	}))
	req := httptest.NewRequest(http.MethodPost, "/auth/login", &buf)
	req.RemoteAddr = "203.0.113.9:40000"
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "ip-blocked", decode(t, rec)["reason"])

	w = f.do(t, http.MethodGet, "/admin/posture", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["blocked_ips"])
	assert.Less(t, body["score"].(float64), float64(100))

	w = f.do(t, http.MethodDelete, "/admin/blocks/203.0.113.9", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}
