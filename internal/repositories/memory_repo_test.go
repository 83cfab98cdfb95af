package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kestrelsec/authguard/internal/models"
)

func TestMemorySessionRepository_CRUD(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()
	now := time.Now()

	session := &models.Session{
		ID:             "sess-1",
		PrincipalID:    "user-1",
		OriginIP:       "10.0.0.5",
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(time.Hour),
	}

	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PrincipalID != "user-1" {
		t.Errorf("PrincipalID = %q, want user-1", got.PrincipalID)
	}

	// Stored record must be a copy, not an alias of the caller's struct.
	session.PrincipalID = "mutated"
	got, _ = repo.Get(ctx, "sess-1")
	if got.PrincipalID != "user-1" {
		t.Error("repository aliased the caller's session struct")
	}

	got.ExpiresAt = now.Add(2 * time.Hour)
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	removed, err := repo.Delete(ctx, "sess-1")
	if err != nil || !removed {
		t.Fatalf("Delete() = (%v, %v), want (true, nil)", removed, err)
	}

	// Idempotent: deleting again reports nothing removed.
	removed, err = repo.Delete(ctx, "sess-1")
	if err != nil || removed {
		t.Fatalf("second Delete() = (%v, %v), want (false, nil)", removed, err)
	}

	if _, err := repo.Get(ctx, "sess-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get(deleted) = %v, want ErrNotFound", err)
	}
}

func TestMemorySessionRepository_DeleteExpired(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()
	now := time.Now()

	for _, s := range []models.Session{
		{ID: "live", ExpiresAt: now.Add(time.Hour)},
		{ID: "dead-1", ExpiresAt: now.Add(-time.Minute)},
		{ID: "dead-2", ExpiresAt: now.Add(-time.Hour)},
	} {
		s := s
		if err := repo.Save(ctx, &s); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("DeleteExpired() removed %d, want 2", removed)
	}

	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestMemoryAttemptRepository_RecordsAndBlocks(t *testing.T) {
	repo := NewMemoryAttemptRepository()
	ctx := context.Background()
	now := time.Now()

	if _, err := repo.Get(ctx, "10.0.0.5"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Get(absent) = %v, want ErrNotFound", err)
	}

	lockedUntil := now.Add(15 * time.Minute)
	record := &models.LoginAttemptRecord{
		Identifier:    "10.0.0.5",
		FailureCount:  5,
		LastAttemptAt: now,
		LockedUntil:   &lockedUntil,
	}
	if err := repo.Save(ctx, record); err != nil {
		t.Fatal(err)
	}

	locked, err := repo.CountLocked(ctx, now)
	if err != nil || locked != 1 {
		t.Errorf("CountLocked() = (%d, %v), want (1, nil)", locked, err)
	}

	// An expired lock no longer counts.
	locked, _ = repo.CountLocked(ctx, now.Add(16*time.Minute))
	if locked != 0 {
		t.Errorf("CountLocked(after expiry) = %d, want 0", locked)
	}

	if err := repo.Delete(ctx, "10.0.0.5"); err != nil {
		t.Fatal(err)
	}

	block := &models.IPBlockEntry{IP: "10.0.0.5", Reason: "repeated failures", BlockedAt: now}
	if err := repo.SaveBlock(ctx, block); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetBlock(ctx, "10.0.0.5")
	if err != nil {
		t.Fatalf("GetBlock() error = %v", err)
	}
	if got.Reason != "repeated failures" {
		t.Errorf("Reason = %q", got.Reason)
	}

	blocks, _ := repo.CountBlocks(ctx)
	if blocks != 1 {
		t.Errorf("CountBlocks() = %d, want 1", blocks)
	}

	if err := repo.DeleteBlock(ctx, "10.0.0.5"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetBlock(ctx, "10.0.0.5"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetBlock(unblocked) = %v, want ErrNotFound", err)
	}
}

func TestMemoryChallengeRepository_CRUD(t *testing.T) {
	repo := NewMemoryChallengeRepository()
	ctx := context.Background()
	now := time.Now()

	challenge := &models.OTPChallenge{
		ID:          "chal-1",
		PrincipalID: "user-1",
		Channel:     models.ChannelEmail,
		Destination: "user@example.com",
		Code:        "123456",
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}
	if err := repo.Save(ctx, challenge); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(ctx, "chal-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	got.Attempts = 2
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ = repo.Get(ctx, "chal-1")
	if got.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", got.Attempts)
	}

	count, _ := repo.CountByPrincipalChannel(ctx, "user-1", models.ChannelEmail)
	if count != 1 {
		t.Errorf("CountByPrincipalChannel = %d, want 1", count)
	}
	count, _ = repo.CountByPrincipalChannel(ctx, "user-1", models.ChannelSMS)
	if count != 0 {
		t.Errorf("CountByPrincipalChannel(sms) = %d, want 0", count)
	}

	removed, _ := repo.DeleteExpired(ctx, now.Add(6*time.Minute))
	if removed != 1 {
		t.Errorf("DeleteExpired = %d, want 1", removed)
	}
	if _, err := repo.Get(ctx, "chal-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get(expired) = %v, want ErrNotFound", err)
	}
}
