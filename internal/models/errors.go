package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential path errors. ErrInvalidCredentials covers both "no such
	// account" and "wrong password" so callers cannot distinguish them.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrIPBlocked          = errors.New("ip address is blocked")
	ErrPolicyViolation    = errors.New("password does not meet policy requirements")

	// OTP path errors. Per-attempt failures (wrong code, expired code,
	// unknown challenge) are not errors at all; they travel as AuthResult
	// reasons. Only conditions that refuse the operation outright are
	// sentinels.
	ErrOTPAttemptsExceeded = errors.New("verification attempts exceeded")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")

	// ErrDeliveryFailed masks provider-specific failures; the underlying
	// cause is logged, never returned to the caller.
	ErrDeliveryFailed = errors.New("could not send code")

	// Session errors. An expired session surfaces through the validation
	// result, not as an error; only a hard miss is a sentinel.
	ErrSessionNotFound = errors.New("session not found")
)
