package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelsec/authguard/internal/models"
)

// ChallengeRepository is the storage contract for pending OTP challenges,
// owned exclusively by the OTP gateway.
type ChallengeRepository interface {
	Save(ctx context.Context, challenge *models.OTPChallenge) error
	Get(ctx context.Context, id string) (*models.OTPChallenge, error)
	Update(ctx context.Context, challenge *models.OTPChallenge) error
	Delete(ctx context.Context, id string) error
	CountByPrincipalChannel(ctx context.Context, principalID string, channel models.Channel) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryChallengeRepository keeps challenges in a lock-guarded map.
type MemoryChallengeRepository struct {
	mu         sync.RWMutex
	challenges map[string]models.OTPChallenge
}

// NewMemoryChallengeRepository creates an empty in-memory challenge store.
func NewMemoryChallengeRepository() *MemoryChallengeRepository {
	return &MemoryChallengeRepository{
		challenges: make(map[string]models.OTPChallenge),
	}
}

func (r *MemoryChallengeRepository) Save(ctx context.Context, challenge *models.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenges[challenge.ID] = *challenge
	return nil
}

func (r *MemoryChallengeRepository) Get(ctx context.Context, id string) (*models.OTPChallenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	challenge, ok := r.challenges[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &challenge, nil
}

func (r *MemoryChallengeRepository) Update(ctx context.Context, challenge *models.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.challenges[challenge.ID]; !ok {
		return models.ErrNotFound
	}
	r.challenges[challenge.ID] = *challenge
	return nil
}

func (r *MemoryChallengeRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.challenges, id)
	return nil
}

func (r *MemoryChallengeRepository) CountByPrincipalChannel(ctx context.Context, principalID string, channel models.Channel) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, challenge := range r.challenges {
		if challenge.PrincipalID == principalID && challenge.Channel == channel {
			count++
		}
	}
	return count, nil
}

func (r *MemoryChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, challenge := range r.challenges {
		if now.After(challenge.ExpiresAt) {
			delete(r.challenges, id)
			removed++
		}
	}
	return removed, nil
}
