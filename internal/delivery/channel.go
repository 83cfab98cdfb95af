// Package delivery abstracts the out-of-band providers that carry one-time
// codes to a principal. The gateway talks to a single Sender capability;
// channel-specific behavior lives behind it, never inside the gateway.
package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/kestrelsec/authguard/internal/models"
)

// Status of a delivery attempt as reported by the provider.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Payload carries the code and the rendered message for one dispatch.
type Payload struct {
	Code    string
	Message string
}

// Receipt is the provider's answer. Anything other than StatusSent is
// treated by the gateway as a delivery failure.
type Receipt struct {
	Status      Status
	ProviderRef string
}

// Sender dispatches a payload to a destination over a channel.
// Implementations must not retain the raw destination beyond the call.
type Sender interface {
	Send(ctx context.Context, channel models.Channel, destination string, payload Payload) (*Receipt, error)
}

// FormatMessage renders the human-readable message for a channel.
func FormatMessage(channel models.Channel, code string, expiresMinutes int) string {
	switch channel {
	case models.ChannelVoice:
		// Spoken digit by digit by the voice provider.
		return fmt.Sprintf("Your verification code is %s. This code expires in %d minutes.",
			strings.Join(strings.Split(code, ""), ", "), expiresMinutes)
	case models.ChannelEmail:
		return fmt.Sprintf("Your verification code is %s.\n\nThis code expires in %d minutes. If you did not request it, you can ignore this message.",
			code, expiresMinutes)
	default:
		return fmt.Sprintf("%s is your verification code. Expires in %d min.", code, expiresMinutes)
	}
}

// CompositeSender routes each channel to its registered provider.
type CompositeSender struct {
	providers map[models.Channel]Sender
}

// NewCompositeSender creates an empty channel router.
func NewCompositeSender() *CompositeSender {
	return &CompositeSender{
		providers: make(map[models.Channel]Sender),
	}
}

// Register binds a provider to a channel, replacing any previous binding.
func (c *CompositeSender) Register(channel models.Channel, sender Sender) {
	c.providers[channel] = sender
}

// Send dispatches through the provider registered for the channel.
func (c *CompositeSender) Send(ctx context.Context, channel models.Channel, destination string, payload Payload) (*Receipt, error) {
	provider, ok := c.providers[channel]
	if !ok {
		return &Receipt{Status: StatusFailed}, fmt.Errorf("no provider registered for channel %q", channel)
	}
	return provider.Send(ctx, channel, destination, payload)
}
