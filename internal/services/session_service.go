package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/kestrelsec/authguard/internal/config"
	"github.com/kestrelsec/authguard/internal/models"
	"github.com/kestrelsec/authguard/internal/repositories"
)

const sessionTokenBytes = 32

// SessionService owns the session table. It is the only component that
// mutates expires_at: every successful validation slides the window
// forward, an expired session is evicted lazily on lookup, and the
// periodic sweep clears whatever was never looked at again.
type SessionService struct {
	repo   repositories.SessionRepository
	cfg    config.SessionConfig
	logger *slog.Logger

	mu      keyedMutex
	nowFunc func() time.Time
}

// NewSessionService creates a session manager over the given store.
func NewSessionService(repo repositories.SessionRepository, cfg config.SessionConfig, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:    repo,
		cfg:     cfg,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Create issues a new session for the principal. The ID is 256 bits of
// CSPRNG output; guessing it is the only way to hijack a session, so
// nothing weaker will do.
func (s *SessionService) Create(ctx context.Context, principalID, originIP string) (*models.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.nowFunc()
	session := &models.Session{
		ID:             token,
		PrincipalID:    principalID,
		OriginIP:       originIP,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.cfg.Timeout),
	}

	if err := s.repo.Save(ctx, session); err != nil {
		s.logger.Error("failed to save session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("session created",
		slog.String("principal_id", principalID),
		slog.Time("expires_at", session.ExpiresAt))

	return session, nil
}

// Validate looks up the session and, when it is still live, slides its
// expiry forward by the full timeout. An expired record is evicted as a
// side effect, so a second lookup reports "not found".
func (s *SessionService) Validate(ctx context.Context, id string) (*models.ValidationResult, error) {
	unlock := s.mu.lock(id)
	defer unlock()

	now := s.nowFunc()

	session, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.ValidationResult{Valid: false, Reason: "not found"}, nil
		}
		s.logger.Error("failed to load session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if session.Expired(now) {
		if _, err := s.repo.Delete(ctx, id); err != nil {
			s.logger.Error("failed to evict expired session", slog.Any("error", err))
		}
		return &models.ValidationResult{Valid: false, Reason: "expired"}, nil
	}

	session.LastActivityAt = now
	session.ExpiresAt = now.Add(s.cfg.Timeout)
	if err := s.repo.Update(ctx, session); err != nil {
		s.logger.Error("failed to extend session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.ValidationResult{Valid: true, Session: session}, nil
}

// Terminate removes the session. Returns false when no such session
// existed, which callers may treat as already logged out.
func (s *SessionService) Terminate(ctx context.Context, id string) (bool, error) {
	unlock := s.mu.lock(id)
	defer unlock()

	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.logger.Error("failed to terminate session", slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	if removed {
		s.logger.Info("session terminated")
	}
	return removed, nil
}

// Sweep deletes every session past its expiry, bounding memory growth
// from sessions that were abandoned without a final validation call.
func (s *SessionService) Sweep(ctx context.Context) (int, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.nowFunc())
	if err != nil {
		s.logger.Error("session sweep failed", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if removed > 0 {
		s.logger.Info("session sweep completed", slog.Int("removed", removed))
	}
	return removed, nil
}

// Count reports the number of stored sessions, expired or not.
func (s *SessionService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func generateSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
