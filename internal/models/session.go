package models

import "time"

// Session represents a single active login. The ID is an opaque random
// token; there is no uniqueness constraint on PrincipalID, so a principal
// may hold several concurrent sessions.
type Session struct {
	ID             string    `db:"id" json:"id"`
	PrincipalID    string    `db:"principal_id" json:"principal_id"`
	OriginIP       string    `db:"origin_ip" json:"origin_ip"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastActivityAt time.Time `db:"last_activity_at" json:"last_activity_at"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the session's sliding window has lapsed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ValidationResult is the outcome of a session lookup.
type ValidationResult struct {
	Valid   bool
	Reason  string // "not found" or "expired" when Valid is false
	Session *Session
}
