// internal/mailer/mailer.go
package mailer

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	appErrors "github.com/roshaldsouza/Email-Scheduler/internal/errors"
	"github.com/roshaldsouza/Email-Scheduler/internal/service"
)

// New builds the transport named by kind: "resend", "amqp" or "log".
func New(kind, resendAPIKey, amqpURL string, logger zerolog.Logger) (service.Transport, error) {
	switch kind {
	case "resend":
		if resendAPIKey == "" {
			return nil, fmt.Errorf("TRANSPORT=resend requires RESEND_API_KEY")
		}
		return NewResendTransport(resendAPIKey, logger), nil
	case "amqp":
		return DialAMQPTransport(amqpURL, logger)
	case "log":
		return &LogTransport{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

// ResendTransport delivers through the Resend API.
type ResendTransport struct {
	client *resend.Client
	logger zerolog.Logger
}

func NewResendTransport(apiKey string, logger zerolog.Logger) *ResendTransport {
	return &ResendTransport{
		client: resend.NewClient(apiKey),
		logger: logger.With().Str("transport", "resend").Logger(),
	}
}

func (t *ResendTransport) Send(ctx context.Context, from, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}

	sent, err := t.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return appErrors.NewTransport(to, err)
	}

	t.logger.Info().Str("message_id", sent.Id).Str("to", to).Msg("handed off to resend")
	return nil
}

// LogTransport is the dev-mode sink: it only logs what would have been sent.
type LogTransport struct {
	Logger zerolog.Logger
}

func (t *LogTransport) Send(_ context.Context, from, to, subject, _ string) error {
	t.Logger.Info().Str("from", from).Str("to", to).Str("subject", subject).
		Msg("log transport: pretending to send")
	return nil
}

var (
	_ service.Transport = (*ResendTransport)(nil)
	_ service.Transport = (*LogTransport)(nil)
)
