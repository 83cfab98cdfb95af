package models

import "time"

// LoginAttemptRecord tracks consecutive authentication failures for a
// single identifier (IP address or account id). One record per identifier;
// created on first failure, cleared on success or lock expiry.
type LoginAttemptRecord struct {
	Identifier    string     `db:"identifier" json:"identifier"`
	FailureCount  int        `db:"failure_count" json:"failure_count"`
	LastAttemptAt time.Time  `db:"last_attempt_at" json:"last_attempt_at"`
	LockedUntil   *time.Time `db:"locked_until" json:"locked_until,omitempty"`
}

// Locked reports whether the record carries an unexpired lockout.
func (r *LoginAttemptRecord) Locked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// LockExpired reports whether a previously set lockout has lapsed. A stale
// record must be reset before further evaluation so it cannot permanently
// block a retrying client.
func (r *LoginAttemptRecord) LockExpired(now time.Time) bool {
	return r.LockedUntil != nil && now.After(*r.LockedUntil)
}

// IPBlockEntry is an operator-reversible hard block. Unlike a lockout it
// has no automatic expiry and survives until an explicit unblock.
type IPBlockEntry struct {
	IP        string    `db:"ip" json:"ip"`
	Reason    string    `db:"reason" json:"reason"`
	BlockedAt time.Time `db:"blocked_at" json:"blocked_at"`
}

// FailureResult is returned by LockoutService.RecordFailure.
type FailureResult struct {
	Locked            bool
	AttemptsRemaining int
}
