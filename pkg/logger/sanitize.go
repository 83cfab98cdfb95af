package logger

import (
	"log/slog"
	"strings"
)

// MaskEmail masks the local part of an email address while preserving the
// domain, e.g. "user@example.com" -> "us***@example.com". The unmasked
// address must never appear in responses, events or logs.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "[invalid-email]"
	}

	local := email[:at]
	domain := email[at+1:]

	keep := 2
	if len(local) < 2 {
		keep = 1
	}

	return local[:keep] + "***@" + domain
}

// MaskPhone masks a phone number keeping only a short prefix and suffix,
// e.g. "+15551231234" -> "+1***1234".
func MaskPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	return phone[:2] + "***" + phone[len(phone)-4:]
}

// MaskDestination masks a delivery destination according to its shape.
// Anything with an "@" is treated as an email address.
func MaskDestination(destination string) string {
	if strings.Contains(destination, "@") {
		return MaskEmail(destination)
	}
	return MaskPhone(destination)
}

// sensitiveParams are query parameter names whose values must never be
// logged.
var sensitiveParams = []string{"code", "token", "secret", "password", "otp"}

// SanitizeQueryString reports whether a raw query string carries a
// sensitive parameter and must be redacted from logs.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	lower := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(lower, param+"=") {
			return true
		}
	}
	return false
}

// RedactedAttr returns a redacted slog attribute for sensitive values.
// In production it returns "[REDACTED]"; in development, the actual value.
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}
