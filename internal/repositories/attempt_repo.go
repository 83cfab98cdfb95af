package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelsec/authguard/internal/models"
)

// AttemptRepository is the storage contract for login-attempt records and
// the hard-block set. Both tables belong to the lockout service alone.
type AttemptRepository interface {
	Get(ctx context.Context, identifier string) (*models.LoginAttemptRecord, error)
	Save(ctx context.Context, record *models.LoginAttemptRecord) error
	Delete(ctx context.Context, identifier string) error
	CountLocked(ctx context.Context, now time.Time) (int, error)

	SaveBlock(ctx context.Context, entry *models.IPBlockEntry) error
	GetBlock(ctx context.Context, ip string) (*models.IPBlockEntry, error)
	DeleteBlock(ctx context.Context, ip string) error
	CountBlocks(ctx context.Context) (int, error)
}

// MemoryAttemptRepository keeps attempt records and IP blocks in
// lock-guarded maps.
type MemoryAttemptRepository struct {
	mu      sync.RWMutex
	records map[string]models.LoginAttemptRecord
	blocks  map[string]models.IPBlockEntry
}

// NewMemoryAttemptRepository creates an empty in-memory attempt store.
func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{
		records: make(map[string]models.LoginAttemptRecord),
		blocks:  make(map[string]models.IPBlockEntry),
	}
}

func (r *MemoryAttemptRepository) Get(ctx context.Context, identifier string) (*models.LoginAttemptRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[identifier]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &record, nil
}

func (r *MemoryAttemptRepository) Save(ctx context.Context, record *models.LoginAttemptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Identifier] = *record
	return nil
}

func (r *MemoryAttemptRepository) Delete(ctx context.Context, identifier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, identifier)
	return nil
}

func (r *MemoryAttemptRepository) CountLocked(ctx context.Context, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, record := range r.records {
		if record.Locked(now) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryAttemptRepository) SaveBlock(ctx context.Context, entry *models.IPBlockEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[entry.IP] = *entry
	return nil
}

func (r *MemoryAttemptRepository) GetBlock(ctx context.Context, ip string) (*models.IPBlockEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.blocks[ip]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &entry, nil
}

func (r *MemoryAttemptRepository) DeleteBlock(ctx context.Context, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blocks, ip)
	return nil
}

func (r *MemoryAttemptRepository) CountBlocks(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blocks), nil
}
