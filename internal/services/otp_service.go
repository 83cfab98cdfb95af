package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelsec/authguard/internal/config"
	"github.com/kestrelsec/authguard/internal/delivery"
	"github.com/kestrelsec/authguard/internal/events"
	"github.com/kestrelsec/authguard/internal/models"
	ratelimit "github.com/kestrelsec/authguard/internal/rate"
	"github.com/kestrelsec/authguard/internal/repositories"
	pkglogger "github.com/kestrelsec/authguard/pkg/logger"
)

// OTPService is the multi-channel one-time-passcode gateway. It owns the
// challenge table; lockout cooldowns and session creation go through the
// respective services. The delivery call in Initiate is the only place
// this core waits on the network, and it happens outside any lock.
type OTPService struct {
	repo        repositories.ChallengeRepository
	lockout     *LockoutService
	sessions    *SessionService
	sender      delivery.Sender
	limiter     *ratelimit.Limiter
	sink        *events.Sink
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	cfg         config.OTPConfig

	mu      keyedMutex
	nowFunc func() time.Time
}

// NewOTPService wires the gateway.
func NewOTPService(
	repo repositories.ChallengeRepository,
	lockout *LockoutService,
	sessions *SessionService,
	sender delivery.Sender,
	cfg config.OTPConfig,
	sink *events.Sink,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *OTPService {
	return &OTPService{
		repo:        repo,
		lockout:     lockout,
		sessions:    sessions,
		sender:      sender,
		limiter:     ratelimit.NewLimiter(cfg.InitiatesPerWindow, cfg.RateWindow),
		sink:        sink,
		logger:      logger,
		auditLogger: auditLogger,
		cfg:         cfg,
		nowFunc:     time.Now,
	}
}

// Initiate issues a challenge and dispatches the code over the requested
// channel. A delivery failure discards the challenge rather than leaving
// an unreachable pending state, and the provider's error detail never
// reaches the caller.
func (s *OTPService) Initiate(ctx context.Context, principalID string, channel models.Channel, destination string) (*models.ChallengeReceipt, error) {
	if !channel.Valid() {
		return nil, models.ErrBadRequest
	}

	if !s.limiter.Allow(principalID) {
		s.logger.Warn("otp initiate rate limited", slog.String("principal_id", principalID))
		return nil, models.ErrRateLimitExceeded
	}

	cooling, err := s.lockout.IsLocked(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if cooling {
		return nil, models.ErrOTPAttemptsExceeded
	}

	pending, err := s.repo.CountByPrincipalChannel(ctx, principalID, channel)
	if err != nil {
		s.logger.Error("failed to count pending challenges", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if pending >= s.cfg.ChannelQuota {
		return nil, models.ErrRateLimitExceeded
	}

	code, err := generateCode(s.cfg.Length)
	if err != nil {
		s.logger.Error("failed to generate otp code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.nowFunc()
	challenge := &models.OTPChallenge{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		Channel:     channel,
		Destination: destination,
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.Expiry),
	}

	if err := s.repo.Save(ctx, challenge); err != nil {
		s.logger.Error("failed to save challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	masked := pkglogger.MaskDestination(destination)

	payload := delivery.Payload{
		Code:    code,
		Message: delivery.FormatMessage(channel, code, int(s.cfg.Expiry.Minutes())),
	}
	receipt, err := s.sender.Send(ctx, channel, destination, payload)
	if err != nil || receipt.Status != delivery.StatusSent {
		if delErr := s.repo.Delete(ctx, challenge.ID); delErr != nil {
			s.logger.Error("failed to roll back undelivered challenge", slog.Any("error", delErr))
		}
		s.logger.Warn("otp delivery failed",
			slog.String("channel", string(channel)),
			slog.String("destination", masked),
			slog.Any("error", err))
		return nil, models.ErrDeliveryFailed
	}

	s.sink.Emit(models.SecurityEvent{
		Type:              models.EventOTPSent,
		PrincipalID:       principalID,
		Channel:           channel,
		MaskedDestination: masked,
	})
	s.auditLogger.LogOTPEvent(pkglogger.AuditEvent{
		EventType:         "otp_sent",
		PrincipalID:       principalID,
		Channel:           string(channel),
		MaskedDestination: masked,
		Success:           true,
	})

	return &models.ChallengeReceipt{
		ChallengeID:       challenge.ID,
		MaskedDestination: masked,
		ExpiresInSeconds:  int(s.cfg.Expiry.Seconds()),
	}, nil
}

// Verify checks the submitted code against the challenge. Expiry is
// evaluated before the attempt count, so an expired challenge is rejected
// and deleted regardless of how many attempts remain. Once the attempt
// allowance is spent, the next submission deletes the challenge and
// places the principal in cooldown even when it carries the right code.
func (s *OTPService) Verify(ctx context.Context, challengeID, code, originIP string) (*models.AuthResult, error) {
	unlock := s.mu.lock(challengeID)
	defer unlock()

	now := s.nowFunc()

	challenge, err := s.repo.Get(ctx, challengeID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.AuthResult{Outcome: models.AuthFailure, Reason: models.ReasonChallengeNotFound}, nil
		}
		s.logger.Error("failed to load challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	masked := pkglogger.MaskDestination(challenge.Destination)

	if challenge.Expired(now) {
		if err := s.repo.Delete(ctx, challengeID); err != nil {
			s.logger.Error("failed to delete expired challenge", slog.Any("error", err))
		}
		s.emitOTPFailure(challenge, masked, models.ReasonOTPExpired, originIP)
		return &models.AuthResult{Outcome: models.AuthFailure, Reason: models.ReasonOTPExpired}, nil
	}

	challenge.Attempts++

	// A full set of wrong codes uses up the allowance; the attempt after
	// that exhausts the challenge no matter what it carries.
	if challenge.Attempts > s.cfg.MaxAttempts {
		if err := s.repo.Delete(ctx, challengeID); err != nil {
			s.logger.Error("failed to delete exhausted challenge", slog.Any("error", err))
		}
		if err := s.lockout.Cooldown(ctx, challenge.PrincipalID, s.cfg.Cooldown); err != nil {
			return nil, err
		}
		s.emitOTPFailure(challenge, masked, models.ReasonAttemptsExceeded, originIP)
		return &models.AuthResult{Outcome: models.AuthFailure, Reason: models.ReasonAttemptsExceeded}, nil
	}

	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
		if err := s.repo.Update(ctx, challenge); err != nil {
			s.logger.Error("failed to record failed attempt", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.emitOTPFailure(challenge, masked, models.ReasonInvalidOTP, originIP)
		return &models.AuthResult{
			Outcome:           models.AuthFailure,
			Reason:            models.ReasonInvalidOTP,
			AttemptsRemaining: s.cfg.MaxAttempts - challenge.Attempts,
		}, nil
	}

	// Persist the verified state before removal so store-level change
	// feeds record the Issued -> Verified transition, not a bare delete.
	challenge.Verified = true
	if err := s.repo.Update(ctx, challenge); err != nil {
		s.logger.Error("failed to mark challenge verified", slog.Any("error", err))
	}
	if err := s.repo.Delete(ctx, challengeID); err != nil {
		s.logger.Error("failed to delete verified challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if err := s.lockout.RecordSuccess(ctx, challenge.PrincipalID); err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, challenge.PrincipalID, originIP)
	if err != nil {
		return nil, err
	}

	s.sink.Emit(models.SecurityEvent{
		Type:              models.EventOTPVerified,
		PrincipalID:       challenge.PrincipalID,
		Channel:           challenge.Channel,
		MaskedDestination: masked,
		IPAddress:         originIP,
	})
	s.auditLogger.LogOTPEvent(pkglogger.AuditEvent{
		EventType:         "otp_verified",
		PrincipalID:       challenge.PrincipalID,
		Channel:           string(challenge.Channel),
		MaskedDestination: masked,
		Success:           true,
	})

	return &models.AuthResult{Outcome: models.AuthSuccess, Session: session}, nil
}

// Sweep deletes expired challenges that were never verified.
func (s *OTPService) Sweep(ctx context.Context) (int, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.nowFunc())
	if err != nil {
		s.logger.Error("challenge sweep failed", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if removed > 0 {
		s.logger.Info("challenge sweep completed", slog.Int("removed", removed))
	}
	return removed, nil
}

// PruneLimiter drops idle rate-limit buckets. Called from the background
// sweeper alongside Sweep.
func (s *OTPService) PruneLimiter() int {
	return s.limiter.Prune()
}

func (s *OTPService) emitOTPFailure(challenge *models.OTPChallenge, masked, reason, originIP string) {
	s.sink.Emit(models.SecurityEvent{
		Type:              models.EventOTPFailed,
		PrincipalID:       challenge.PrincipalID,
		Channel:           challenge.Channel,
		MaskedDestination: masked,
		IPAddress:         originIP,
		Reason:            reason,
	})
	s.auditLogger.LogOTPEvent(pkglogger.AuditEvent{
		EventType:         "otp_failed",
		PrincipalID:       challenge.PrincipalID,
		Channel:           string(challenge.Channel),
		MaskedDestination: masked,
		FailureReason:     reason,
		Success:           false,
	})
}

// generateCode draws a fixed-length decimal string from crypto/rand.
// This value gates authentication, so a weak PRNG is never acceptable.
func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
