package models

import "time"

// EventType identifies a security event emitted for the threat-detection tier.
type EventType string

const (
	EventAuthSuccess EventType = "auth.success"
	EventAuthFailure EventType = "auth.failure"
	EventAuthLocked  EventType = "auth.locked"
	EventOTPSent     EventType = "otp.sent"
	EventOTPVerified EventType = "otp.verified"
	EventOTPFailed   EventType = "otp.failed"
)

// SecurityEvent is the structured record handed to the event sink. Only
// masked destinations ever appear here; raw phone numbers and email
// addresses stay inside the OTP gateway.
type SecurityEvent struct {
	ID                string    `json:"id"`
	Type              EventType `json:"type"`
	PrincipalID       string    `json:"principal_id,omitempty"`
	MaskedDestination string    `json:"masked_destination,omitempty"`
	Channel           Channel   `json:"channel,omitempty"`
	IPAddress         string    `json:"ip_address,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
