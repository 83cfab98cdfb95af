package models

import "time"

// PostureReport is the read-only health assessment produced from the
// current lockout, block and session counts. Deterministic for the same
// inputs; the assessor holds no state of its own.
type PostureReport struct {
	Score          int       `json:"score"`
	Grade          string    `json:"grade"`
	ActiveSessions int       `json:"active_sessions"`
	ActiveLockouts int       `json:"active_lockouts"`
	BlockedIPs     int       `json:"blocked_ips"`
	Findings       []string  `json:"findings,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}
