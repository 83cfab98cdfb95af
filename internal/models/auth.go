package models

// AuthOutcome classifies the result of an authentication attempt.
type AuthOutcome string

const (
	AuthSuccess     AuthOutcome = "success"
	AuthMFARequired AuthOutcome = "mfa_required"
	AuthFailure     AuthOutcome = "failure"
	AuthLocked      AuthOutcome = "locked"
)

// AuthResult is the single result shape shared by the credential and OTP
// authentication paths. Exactly the fields relevant to the outcome are set:
// Session on success, MFAToken on mfa_required, AttemptsRemaining on
// failure, Reason on failure and locked.
type AuthResult struct {
	Outcome           AuthOutcome `json:"outcome"`
	Session           *Session    `json:"session,omitempty"`
	MFAToken          string      `json:"mfa_token,omitempty"`
	Reason            string      `json:"reason,omitempty"`
	AttemptsRemaining int         `json:"attempts_remaining,omitempty"`
}

// Reasons carried in AuthResult for lockout and failure outcomes.
const (
	ReasonIPBlocked          = "ip-blocked"
	ReasonAccountLocked      = "account-locked"
	ReasonInvalidCredentials = "invalid-credentials"
	ReasonInvalidOTP         = "invalid-code"
	ReasonOTPExpired         = "code-expired"
	ReasonAttemptsExceeded   = "attempts-exceeded"
	ReasonChallengeNotFound  = "challenge-not-found"
)
