package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelsec/authguard/internal/models"
	"github.com/kestrelsec/authguard/pkg/crypt"
)

// MemoryCredentialStore is a small in-process credential collaborator,
// useful for bootstrap accounts and tests. Production deployments plug
// in their own directory behind the same interface.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]models.Credential
}

// NewMemoryCredentialStore creates an empty credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		creds: make(map[string]models.Credential),
	}
}

// Seed registers a credential under its identifier.
func (s *MemoryCredentialStore) Seed(cred models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.Identifier] = cred
}

func (s *MemoryCredentialStore) Lookup(ctx context.Context, identifier string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[identifier]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &cred, nil
}

// LookupPrincipal resolves a credential by its principal ID, the key an
// MFA completion token carries.
func (s *MemoryCredentialStore) LookupPrincipal(ctx context.Context, principalID string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cred := range s.creds {
		if cred.PrincipalID == principalID {
			return &cred, nil
		}
	}
	return nil, models.ErrNotFound
}

// SaveTOTP stores a freshly enrolled TOTP secret and switches the
// credential to MFA. Re-enrollment replaces the secret and resets the
// replay marker.
func (s *MemoryCredentialStore) SaveTOTP(ctx context.Context, principalID string, secret *crypt.EncryptedPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cred := range s.creds {
		if cred.PrincipalID == principalID {
			cred.TOTPSecret = secret
			cred.TOTPLastUsedAt = nil
			cred.MFAEnabled = true
			s.creds[id] = cred
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *MemoryCredentialStore) TouchTOTP(ctx context.Context, principalID string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cred := range s.creds {
		if cred.PrincipalID == principalID {
			cred.TOTPLastUsedAt = &usedAt
			s.creds[id] = cred
		}
	}
	return nil
}
