package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/kestrelsec/authguard/internal/config"
	"github.com/kestrelsec/authguard/internal/delivery"
	"github.com/kestrelsec/authguard/internal/events"
	"github.com/kestrelsec/authguard/internal/models"
	"github.com/kestrelsec/authguard/internal/repositories"
	"github.com/kestrelsec/authguard/pkg/crypt"
	pkglogger "github.com/kestrelsec/authguard/pkg/logger"
)

// MockCredentialStore implements CredentialStore for testing
type MockCredentialStore struct {
	LookupFunc          func(ctx context.Context, identifier string) (*models.Credential, error)
	LookupPrincipalFunc func(ctx context.Context, principalID string) (*models.Credential, error)
	SaveTOTPFunc        func(ctx context.Context, principalID string, secret *crypt.EncryptedPayload) error
	TouchTOTPFunc       func(ctx context.Context, principalID string, usedAt time.Time) error
}

func (m *MockCredentialStore) Lookup(ctx context.Context, identifier string) (*models.Credential, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialStore) LookupPrincipal(ctx context.Context, principalID string) (*models.Credential, error) {
	if m.LookupPrincipalFunc != nil {
		return m.LookupPrincipalFunc(ctx, principalID)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialStore) SaveTOTP(ctx context.Context, principalID string, secret *crypt.EncryptedPayload) error {
	if m.SaveTOTPFunc != nil {
		return m.SaveTOTPFunc(ctx, principalID, secret)
	}
	return nil
}

func (m *MockCredentialStore) TouchTOTP(ctx context.Context, principalID string, usedAt time.Time) error {
	if m.TouchTOTPFunc != nil {
		return m.TouchTOTPFunc(ctx, principalID, usedAt)
	}
	return nil
}

// MockDeliverySender implements delivery.Sender for testing
type MockDeliverySender struct {
	SendFunc func(ctx context.Context, channel models.Channel, destination string, payload delivery.Payload) (*delivery.Receipt, error)
	Sent     []delivery.Payload
}

func (m *MockDeliverySender) Send(ctx context.Context, channel models.Channel, destination string, payload delivery.Payload) (*delivery.Receipt, error) {
	m.Sent = append(m.Sent, payload)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, channel, destination, payload)
	}
	return &delivery.Receipt{Status: delivery.StatusSent, ProviderRef: "test-ref"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

func testSink() *events.Sink {
	return events.NewSink(64, testLogger())
}

func testLockoutConfig() config.LockoutConfig {
	return config.LockoutConfig{
		MaxLoginAttempts:   5,
		LockoutDuration:    15 * time.Minute,
		MaxLockoutDuration: time.Hour,
	}
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		Timeout:       time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

func testOTPConfig() config.OTPConfig {
	return config.OTPConfig{
		Length:             6,
		Expiry:             5 * time.Minute,
		MaxAttempts:        3,
		Cooldown:           15 * time.Minute,
		InitiatesPerWindow: 3,
		RateWindow:         time.Minute,
		ChannelQuota:       10,
	}
}

// newTestLockoutService builds a lockout service over a fresh in-memory
// store with a controllable clock.
func newTestLockoutService(now *time.Time) *LockoutService {
	s := NewLockoutService(repositories.NewMemoryAttemptRepository(), testLockoutConfig(), testLogger(), testAuditLogger())
	s.nowFunc = func() time.Time { return *now }
	return s
}

func newTestSessionService(now *time.Time) *SessionService {
	s := NewSessionService(repositories.NewMemorySessionRepository(), testSessionConfig(), testLogger())
	s.nowFunc = func() time.Time { return *now }
	return s
}
