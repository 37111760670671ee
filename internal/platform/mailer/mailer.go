// Package mailer sends transactional email. Delivery is fire-and-forget:
// failures are logged and never surfaced to the end user.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Mailer delivers a plain-text message to one or more recipients.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPMailer delivers through an SMTP relay using go-mail.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

func NewSMTP(host string, port int, user, password, from string) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTimeout(15 * time.Second),
	}
	if user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: from}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return fmt.Errorf("set recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// Nop is used when no SMTP relay is configured; sends succeed silently.
type Nop struct{}

func (Nop) Send(context.Context, []string, string, string) error { return nil }

// NotifyAsync sends in the background. Errors are logged, never retried and
// never returned to the caller.
func NotifyAsync(logger zerolog.Logger, m Mailer, to []string, subject, body string) {
	if len(to) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.Send(ctx, to, subject, body); err != nil {
			logger.Error().Err(err).Str("subject", subject).Msg("mail delivery failed")
		}
	}()
}
