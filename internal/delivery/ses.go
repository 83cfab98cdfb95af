package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/kestrelsec/authguard/internal/models"
	pkglogger "github.com/kestrelsec/authguard/pkg/logger"
)

// SESSender delivers email-channel codes using AWS SES.
type SESSender struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewSESSender creates an SES email sender for the given region.
func NewSESSender(region, fromAddress string, logger *slog.Logger) (*SESSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// Send dispatches the payload as a plain-text email. Only the email
// channel is supported; the composite router keeps other channels away.
func (s *SESSender) Send(ctx context.Context, channel models.Channel, destination string, payload Payload) (*Receipt, error) {
	if channel != models.ChannelEmail {
		return &Receipt{Status: StatusFailed}, fmt.Errorf("ses sender supports only the email channel, got %q", channel)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{destination},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String("Your verification code"),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(payload.Message),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("ses send failed",
			slog.String("destination", pkglogger.MaskEmail(destination)),
			slog.Any("error", err))
		return &Receipt{Status: StatusFailed}, fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("verification email sent",
		slog.String("destination", pkglogger.MaskEmail(destination)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return &Receipt{
		Status:      StatusSent,
		ProviderRef: aws.ToString(result.MessageId),
	}, nil
}
