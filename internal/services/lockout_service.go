package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kestrelsec/authguard/internal/config"
	"github.com/kestrelsec/authguard/internal/models"
	"github.com/kestrelsec/authguard/internal/repositories"
	pkglogger "github.com/kestrelsec/authguard/pkg/logger"
)

// LockoutService tracks consecutive failures per identifier and owns both
// the time-boxed lockout table and the hard-block set. All read-modify-write
// cycles on a record happen under the service mutex; the repositories stay
// dumb.
type LockoutService struct {
	repo        repositories.AttemptRepository
	cfg         config.LockoutConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	mu      keyedMutex
	nowFunc func() time.Time
}

// NewLockoutService creates a lockout tracker over the given attempt store.
func NewLockoutService(repo repositories.AttemptRepository, cfg config.LockoutConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LockoutService {
	return &LockoutService{
		repo:        repo,
		cfg:         cfg,
		logger:      logger,
		auditLogger: auditLogger,
		nowFunc:     time.Now,
	}
}

// RecordFailure increments the failure count for the identifier. Reaching
// the attempt limit sets a lockout whose duration grows with continued
// failures, capped at the configured maximum. Never returns a lockout
// error itself; callers decide what a locked result means for them.
func (s *LockoutService) RecordFailure(ctx context.Context, identifier string) (*models.FailureResult, error) {
	unlock := s.mu.lock(identifier)
	defer unlock()

	now := s.nowFunc()

	record, err := s.repo.Get(ctx, identifier)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load attempt record", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		record = &models.LoginAttemptRecord{Identifier: identifier}
	}

	// A stale lock resets the count before this failure is applied.
	if record.LockExpired(now) {
		record.FailureCount = 0
		record.LockedUntil = nil
	}

	record.FailureCount++
	record.LastAttemptAt = now

	result := &models.FailureResult{
		AttemptsRemaining: s.cfg.MaxLoginAttempts - record.FailureCount,
	}
	if result.AttemptsRemaining < 0 {
		result.AttemptsRemaining = 0
	}

	if record.FailureCount >= s.cfg.MaxLoginAttempts {
		until := now.Add(s.lockDuration(record.FailureCount))
		record.LockedUntil = &until
		result.Locked = true

		s.logger.Warn("identifier locked out",
			slog.String("identifier", identifier),
			slog.Int("failure_count", record.FailureCount),
			slog.Time("locked_until", until))
		s.auditLogger.LogAccountAction("lockout_set", identifier, "", map[string]string{
			"locked_until": until.UTC().Format(time.RFC3339),
		})
	}

	if err := s.repo.Save(ctx, record); err != nil {
		s.logger.Error("failed to save attempt record", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return result, nil
}

// RecordSuccess clears the identifier's failure record and any active
// lockout or cooldown riding on it.
func (s *LockoutService) RecordSuccess(ctx context.Context, identifier string) error {
	unlock := s.mu.lock(identifier)
	defer unlock()

	if err := s.repo.Delete(ctx, identifier); err != nil {
		s.logger.Error("failed to clear attempt record", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// IsLocked reports whether the identifier currently carries an unexpired
// lockout. An expired lock is reset in place so a stale record cannot
// permanently hold out a retrying client. Absence of a record means zero
// failures.
func (s *LockoutService) IsLocked(ctx context.Context, identifier string) (bool, error) {
	unlock := s.mu.lock(identifier)
	defer unlock()

	now := s.nowFunc()

	record, err := s.repo.Get(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		s.logger.Error("failed to load attempt record", slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	if record.LockExpired(now) {
		record.FailureCount = 0
		record.LockedUntil = nil
		if err := s.repo.Save(ctx, record); err != nil {
			s.logger.Error("failed to reset expired lock", slog.Any("error", err))
			return false, models.ErrInternalServer
		}
		return false, nil
	}

	return record.Locked(now), nil
}

// Cooldown places an explicit lock on the identifier for the given
// duration without touching its failure count. Used by the OTP gateway
// when a challenge exhausts its attempts.
func (s *LockoutService) Cooldown(ctx context.Context, identifier string, d time.Duration) error {
	unlock := s.mu.lock(identifier)
	defer unlock()

	now := s.nowFunc()

	record, err := s.repo.Get(ctx, identifier)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load attempt record", slog.Any("error", err))
			return models.ErrInternalServer
		}
		record = &models.LoginAttemptRecord{Identifier: identifier}
	}

	until := now.Add(d)
	record.LockedUntil = &until
	record.LastAttemptAt = now

	if err := s.repo.Save(ctx, record); err != nil {
		s.logger.Error("failed to save cooldown", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("cooldown_set", identifier, "", map[string]string{
		"until": until.UTC().Format(time.RFC3339),
	})
	return nil
}

// Block places an operator-reversible hard block on the IP. Unlike a
// lockout it never expires on its own.
func (s *LockoutService) Block(ctx context.Context, ip, reason string) error {
	entry := &models.IPBlockEntry{
		IP:        ip,
		Reason:    reason,
		BlockedAt: s.nowFunc(),
	}
	if err := s.repo.SaveBlock(ctx, entry); err != nil {
		s.logger.Error("failed to save ip block", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Warn("ip hard-blocked", slog.String("ip", ip), slog.String("reason", reason))
	s.auditLogger.LogAccountAction("ip_blocked", ip, ip, map[string]string{"reason": reason})
	return nil
}

// Unblock removes a hard block. Removing a block that does not exist is
// not an error.
func (s *LockoutService) Unblock(ctx context.Context, ip string) error {
	if err := s.repo.DeleteBlock(ctx, ip); err != nil {
		s.logger.Error("failed to delete ip block", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("ip_unblocked", ip, ip, nil)
	return nil
}

// IsBlocked reports whether the IP carries a hard block.
func (s *LockoutService) IsBlocked(ctx context.Context, ip string) (bool, error) {
	_, err := s.repo.GetBlock(ctx, ip)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		s.logger.Error("failed to load ip block", slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	return true, nil
}

// CountLocked reports how many identifiers are currently locked out.
func (s *LockoutService) CountLocked(ctx context.Context) (int, error) {
	return s.repo.CountLocked(ctx, s.nowFunc())
}

// CountBlocked reports the size of the hard-block set.
func (s *LockoutService) CountBlocked(ctx context.Context) (int, error) {
	return s.repo.CountBlocks(ctx)
}

// lockDuration scales the base lockout with failures past the limit,
// capped at the configured maximum.
func (s *LockoutService) lockDuration(failureCount int) time.Duration {
	over := failureCount - s.cfg.MaxLoginAttempts
	d := s.cfg.LockoutDuration * time.Duration(over+1)
	if d > s.cfg.MaxLockoutDuration {
		d = s.cfg.MaxLockoutDuration
	}
	return d
}
