package models

import "time"

// Channel identifies an out-of-band delivery mechanism for one-time codes.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelVoice    Channel = "voice"
)

// Valid reports whether c is one of the supported delivery channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelWhatsApp, ChannelTelegram, ChannelEmail, ChannelVoice:
		return true
	}
	return false
}

// OTPChallenge is a pending one-time-passcode verification. Exactly one
// live challenge exists per issued ID; a principal may hold concurrent
// challenges across channels.
type OTPChallenge struct {
	ID          string    `db:"id" json:"id"`
	PrincipalID string    `db:"principal_id" json:"principal_id"`
	Channel     Channel   `db:"channel" json:"channel"`
	Destination string    `db:"destination" json:"destination"`
	Code        string    `db:"code" json:"code"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
	Verified    bool      `db:"verified" json:"verified"`
	Attempts    int       `db:"attempts" json:"attempts"`
}

// Expired reports whether the challenge is past its expiry. Expiry is
// checked before attempt counting, so an expired challenge is rejected
// regardless of how many attempts remain.
func (c *OTPChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ChallengeReceipt is returned by OTPService.Initiate. The destination is
// always masked; the raw destination never leaves the gateway.
type ChallengeReceipt struct {
	ChallengeID       string `json:"challenge_id"`
	MaskedDestination string `json:"masked_destination"`
	ExpiresInSeconds  int    `json:"expires_in_seconds"`
}
