package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelsec/authguard/internal/models"
)

// Penalties applied while scoring. Fixed values keep the assessment
// deterministic for the same inputs.
const (
	penaltyMissingNetworkTier = 15
	penaltyMissingThreatTier  = 15
	penaltyPerLockout         = 2
	maxLockoutPenalty         = 20
	penaltyPerBlockedIP       = 5
	maxBlockedIPPenalty       = 30
)

// PostureService produces a read-only health score from the state the
// other services expose. It never mutates anything.
type PostureService struct {
	lockout  *LockoutService
	sessions *SessionService
	logger   *slog.Logger

	// Presence of the upstream zero-trust and SIEM tiers, fixed at wiring
	// time. Running without them costs points.
	networkTierPresent bool
	threatTierPresent  bool

	nowFunc func() time.Time
}

// NewPostureService creates the assessor.
func NewPostureService(lockout *LockoutService, sessions *SessionService, networkTierPresent, threatTierPresent bool, logger *slog.Logger) *PostureService {
	return &PostureService{
		lockout:            lockout,
		sessions:           sessions,
		logger:             logger,
		networkTierPresent: networkTierPresent,
		threatTierPresent:  threatTierPresent,
		nowFunc:            time.Now,
	}
}

// Assess scores the current security posture from 0 to 100 with a letter
// grade, subtracting fixed penalties per unhealthy condition.
func (s *PostureService) Assess(ctx context.Context) (*models.PostureReport, error) {
	lockedCount, err := s.lockout.CountLocked(ctx)
	if err != nil {
		s.logger.Error("failed to count lockouts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	blockedCount, err := s.lockout.CountBlocked(ctx)
	if err != nil {
		s.logger.Error("failed to count ip blocks", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	sessionCount, err := s.sessions.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count sessions", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	score := 100
	var findings []string

	if !s.networkTierPresent {
		score -= penaltyMissingNetworkTier
		findings = append(findings, "network-access tier not connected")
	}
	if !s.threatTierPresent {
		score -= penaltyMissingThreatTier
		findings = append(findings, "threat-detection tier not connected")
	}

	if lockedCount > 0 {
		p := lockedCount * penaltyPerLockout
		if p > maxLockoutPenalty {
			p = maxLockoutPenalty
		}
		score -= p
		findings = append(findings, fmt.Sprintf("%d identifiers in active lockout", lockedCount))
	}

	if blockedCount > 0 {
		p := blockedCount * penaltyPerBlockedIP
		if p > maxBlockedIPPenalty {
			p = maxBlockedIPPenalty
		}
		score -= p
		findings = append(findings, fmt.Sprintf("%d hard-blocked IPs", blockedCount))
	}

	if score < 0 {
		score = 0
	}

	return &models.PostureReport{
		Score:          score,
		Grade:          grade(score),
		ActiveSessions: sessionCount,
		ActiveLockouts: lockedCount,
		BlockedIPs:     blockedCount,
		Findings:       findings,
		GeneratedAt:    s.nowFunc(),
	}, nil
}

func grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
