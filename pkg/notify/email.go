package notify

import (
	"context"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/backoffice-suite/boar/pkg/config"
)

// EmailService sends multipart transactional email (plain-text fallback
// plus HTML body). Nil-safe: all methods are no-ops returning false when
// the service is nil, so callers never need to guard against missing SMTP
// configuration.
type EmailService struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

// NewEmailService returns nil when no SMTP host is configured.
func NewEmailService(cfg config.SMTPConfig) *EmailService {
	if cfg.Host == "" {
		slog.Warn("No SMTP host configured, email notifications disabled")
		return nil
	}
	return &EmailService{
		cfg:    cfg,
		logger: slog.Default().With("component", "email-service"),
	}
}

// Send delivers one message. Failures are logged and reported as false;
// they never propagate as errors.
func (e *EmailService) Send(ctx context.Context, to, subject, text, html string) bool {
	if e == nil {
		return false
	}

	msg := mail.NewMsg()
	if err := msg.From(e.cfg.FromEmail); err != nil {
		e.logger.Error("Invalid sender address", "from", e.cfg.FromEmail, "error", err)
		return false
	}
	if err := msg.To(to); err != nil {
		e.logger.Error("Invalid recipient address", "to", to, "error", err)
		return false
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	if html != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, html)
	}

	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithTimeout(e.cfg.Timeout),
	}
	if e.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.User),
			mail.WithPassword(e.cfg.Password),
		)
	}

	client, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		e.logger.Error("Failed to build SMTP client", "host", e.cfg.Host, "error", err)
		return false
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		e.logger.Error("Failed to send email", "to", to, "subject", subject, "error", err)
		return false
	}

	e.logger.Info("Email sent", "to", to, "subject", subject)
	return true
}
