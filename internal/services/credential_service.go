package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kestrelsec/authguard/internal/auth"
	"github.com/kestrelsec/authguard/internal/config"
	"github.com/kestrelsec/authguard/internal/events"
	"github.com/kestrelsec/authguard/internal/models"
	"github.com/kestrelsec/authguard/pkg/crypt"
	pkglogger "github.com/kestrelsec/authguard/pkg/logger"
	"github.com/kestrelsec/authguard/pkg/password"
)

// CredentialStore is the external collaborator holding secret material.
// Lookup returns models.ErrNotFound for an unknown identifier; the
// authenticator folds that into the same failure as a wrong password so
// callers cannot probe which accounts exist.
type CredentialStore interface {
	Lookup(ctx context.Context, identifier string) (*models.Credential, error)
	LookupPrincipal(ctx context.Context, principalID string) (*models.Credential, error)
	SaveTOTP(ctx context.Context, principalID string, secret *crypt.EncryptedPayload) error
	TouchTOTP(ctx context.Context, principalID string, usedAt time.Time) error
}

// CredentialService orchestrates the password authentication path:
// block and lockout gates, credential comparison, the optional MFA
// step, and session issuance.
type CredentialService struct {
	store       CredentialStore
	lockout     *LockoutService
	sessions    *SessionService
	policy      *password.Engine
	mfaTokens   *auth.MFATokenManager
	totp        *auth.TOTPManager
	delay       *auth.FailureDelay
	sink        *events.Sink
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	mfaEnabled  bool
}

// NewCredentialService wires the authenticator. The TOTP manager may be
// nil when MFA is disabled.
func NewCredentialService(
	store CredentialStore,
	lockout *LockoutService,
	sessions *SessionService,
	policy *password.Engine,
	mfaTokens *auth.MFATokenManager,
	totp *auth.TOTPManager,
	cfg config.MFAConfig,
	sink *events.Sink,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *CredentialService {
	return &CredentialService{
		store:       store,
		lockout:     lockout,
		sessions:    sessions,
		policy:      policy,
		mfaTokens:   mfaTokens,
		totp:        totp,
		delay:       auth.NewFailureDelay(cfg.BaseDelayMs, cfg.JitterMs),
		sink:        sink,
		logger:      logger,
		auditLogger: auditLogger,
		mfaEnabled:  cfg.Enabled,
	}
}

// Authenticate verifies a principal's secret and issues a session. The
// otpCode argument is the second factor; pass "" when the caller has not
// collected one yet.
func (s *CredentialService) Authenticate(ctx context.Context, identifier, secret, originIP, otpCode string) (*models.AuthResult, error) {
	blocked, err := s.lockout.IsBlocked(ctx, originIP)
	if err != nil {
		return nil, err
	}
	if blocked {
		s.emitLocked(identifier, originIP, models.ReasonIPBlocked)
		return &models.AuthResult{Outcome: models.AuthLocked, Reason: models.ReasonIPBlocked}, nil
	}

	locked, err := s.lockout.IsLocked(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if locked {
		s.emitLocked(identifier, originIP, models.ReasonAccountLocked)
		return &models.AuthResult{Outcome: models.AuthLocked, Reason: models.ReasonAccountLocked}, nil
	}

	// Cheap pre-check: a secret shorter than the policy minimum can never
	// match a stored credential, so skip the bcrypt work.
	if len(secret) < s.policy.Policy().MinLength {
		return s.fail(ctx, identifier, originIP, models.ReasonInvalidCredentials)
	}

	cred, err := s.store.Lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown identifier and wrong password must look identical.
			return s.fail(ctx, identifier, originIP, models.ReasonInvalidCredentials)
		}
		s.logger.Error("credential lookup failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := password.Compare(cred.SecretHash, secret); err != nil {
		return s.fail(ctx, identifier, originIP, models.ReasonInvalidCredentials)
	}

	if s.mfaEnabled && cred.MFAEnabled {
		if otpCode == "" {
			token, err := s.mfaTokens.Generate(cred.PrincipalID, originIP)
			if err != nil {
				s.logger.Error("failed to generate mfa token", slog.Any("error", err))
				return nil, models.ErrInternalServer
			}
			return &models.AuthResult{Outcome: models.AuthMFARequired, MFAToken: token}, nil
		}

		ok, err := s.totp.Validate(cred.TOTPSecret, otpCode, cred.TOTPLastUsedAt)
		if err != nil {
			s.logger.Error("totp validation failed", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if !ok {
			return s.fail(ctx, identifier, originIP, models.ReasonInvalidOTP)
		}
		if err := s.store.TouchTOTP(ctx, cred.PrincipalID, time.Now()); err != nil {
			s.logger.Error("failed to record totp use", slog.Any("error", err))
		}
	}

	return s.succeed(ctx, cred, originIP)
}

// CompleteMFA finishes a login that Authenticate answered with
// AuthMFARequired. The token binds the pending login to a principal and
// an origin IP; a completion attempt from a different address is treated
// the same as a bad token.
func (s *CredentialService) CompleteMFA(ctx context.Context, mfaToken, code, originIP string) (*models.AuthResult, error) {
	if !s.mfaEnabled || s.totp == nil {
		return nil, models.ErrBadRequest
	}

	claims, err := s.mfaTokens.Validate(mfaToken)
	if err != nil || claims.OriginIP != originIP {
		return nil, models.ErrInvalidCredentials
	}

	blocked, err := s.lockout.IsBlocked(ctx, originIP)
	if err != nil {
		return nil, err
	}
	if blocked {
		s.emitLocked(claims.PrincipalID, originIP, models.ReasonIPBlocked)
		return &models.AuthResult{Outcome: models.AuthLocked, Reason: models.ReasonIPBlocked}, nil
	}

	cred, err := s.store.LookupPrincipal(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("credential lookup failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// The account may have been locked between the password step and the
	// code submission.
	locked, err := s.lockout.IsLocked(ctx, cred.Identifier)
	if err != nil {
		return nil, err
	}
	if locked {
		s.emitLocked(cred.Identifier, originIP, models.ReasonAccountLocked)
		return &models.AuthResult{Outcome: models.AuthLocked, Reason: models.ReasonAccountLocked}, nil
	}

	ok, err := s.totp.Validate(cred.TOTPSecret, code, cred.TOTPLastUsedAt)
	if err != nil {
		s.logger.Error("totp validation failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !ok {
		return s.fail(ctx, cred.Identifier, originIP, models.ReasonInvalidOTP)
	}
	if err := s.store.TouchTOTP(ctx, cred.PrincipalID, time.Now()); err != nil {
		s.logger.Error("failed to record totp use", slog.Any("error", err))
	}

	return s.succeed(ctx, cred, originIP)
}

// EnrollTOTP provisions a TOTP device for an existing credential and
// returns the enrollment material. The encrypted secret is persisted
// here; callers only ever see the QR payload.
func (s *CredentialService) EnrollTOTP(ctx context.Context, identifier string) (*auth.Enrollment, error) {
	if !s.mfaEnabled || s.totp == nil {
		return nil, models.ErrBadRequest
	}

	cred, err := s.store.Lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("credential lookup failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	enrollment, err := s.totp.Enroll(identifier)
	if err != nil {
		s.logger.Error("totp enrollment failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.store.SaveTOTP(ctx, cred.PrincipalID, enrollment.EncryptedSecret); err != nil {
		s.logger.Error("failed to persist totp secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:   "mfa_enrolled",
		PrincipalID: cred.PrincipalID,
		Success:     true,
	})

	return enrollment, nil
}

// succeed clears the failure counter, issues the session, and emits the
// success event.
func (s *CredentialService) succeed(ctx context.Context, cred *models.Credential, originIP string) (*models.AuthResult, error) {
	if err := s.lockout.RecordSuccess(ctx, cred.Identifier); err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, cred.PrincipalID, originIP)
	if err != nil {
		return nil, err
	}

	s.sink.Emit(models.SecurityEvent{
		Type:        models.EventAuthSuccess,
		PrincipalID: cred.PrincipalID,
		IPAddress:   originIP,
	})
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:   "login_success",
		PrincipalID: cred.PrincipalID,
		IPAddress:   originIP,
		Success:     true,
	})

	return &models.AuthResult{Outcome: models.AuthSuccess, Session: session}, nil
}

// fail records the failure, applies the timing delay, and shapes the
// failure result. A failure that trips the lockout also hard-blocks the
// origin IP when it is distinct from the identifier under attack; when
// they are the same the lockout itself is the protection.
func (s *CredentialService) fail(ctx context.Context, identifier, originIP, reason string) (*models.AuthResult, error) {
	result, err := s.lockout.RecordFailure(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if result.Locked && originIP != "" && originIP != identifier {
		if err := s.lockout.Block(ctx, originIP, "repeated credential failures"); err != nil {
			return nil, err
		}
	}

	eventType := models.EventAuthFailure
	if result.Locked {
		eventType = models.EventAuthLocked
	}
	s.sink.Emit(models.SecurityEvent{
		Type:      eventType,
		IPAddress: originIP,
		Reason:    reason,
	})
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		IPAddress:     originIP,
		FailureReason: reason,
		Success:       false,
	})

	s.delay.Wait()

	return &models.AuthResult{
		Outcome:           models.AuthFailure,
		Reason:            reason,
		AttemptsRemaining: result.AttemptsRemaining,
	}, nil
}

func (s *CredentialService) emitLocked(identifier, originIP, reason string) {
	s.sink.Emit(models.SecurityEvent{
		Type:      models.EventAuthLocked,
		IPAddress: originIP,
		Reason:    reason,
	})
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_blocked",
		PrincipalID:   identifier,
		IPAddress:     originIP,
		FailureReason: reason,
		Success:       false,
	})
}
