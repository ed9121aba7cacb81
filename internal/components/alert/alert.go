// Package alert notifies the hotel staff by email when a sync breaks.
package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"otelms-backend/internal/config"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/components/alert")

type API interface {
	Send(ctx context.Context, subject, body string) error
}

// New returns an SMTP sender, or a NoopAPI when no smtp server or
// recipient is configured.
func New(cfg config.SmtpConfig) API {
	if cfg.Server == "" || len(cfg.Recipients) == 0 {
		return NoopAPI{}
	}
	return SMTP{cfg: cfg}
}

type NoopAPI struct{}

func (NoopAPI) Send(context.Context, string, string) error { return nil }

type SMTP struct {
	cfg config.SmtpConfig
}

func (s SMTP) addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)
}

func (s SMTP) Send(ctx context.Context, subject, body string) error {
	_, span := tracer.Start(ctx, "alert.Send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("otelms sync <%s>", s.cfg.EmailAddress)
	mail.To = s.cfg.Recipients
	mail.Subject = subject
	mail.Text = []byte(body)

	err := mail.Send(s.addr(), smtp.PlainAuth("", s.cfg.EmailAddress, s.cfg.Password, s.cfg.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(s.addr(), nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return fmt.Errorf("alert: send %q: %w", subject, err)
	}
	return nil
}
