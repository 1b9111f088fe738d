// Package mailer delivers rendered notifications over SMTP. The dispatcher
// is constructed once at process start and injected; nothing here holds
// global state.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/certsentry/certsentry/internal/config"
)

// Dispatcher accepts a rendered message and a recipient.
type Dispatcher interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPDispatcher struct {
	host     string
	port     int
	from     string
	username string
	password string
	logger   *zap.Logger
}

func NewSMTPDispatcher(cfg config.SMTPConfig, logger *zap.Logger) *SMTPDispatcher {
	return &SMTPDispatcher{
		host:     cfg.Host,
		port:     cfg.Port,
		from:     cfg.From,
		username: cfg.Username,
		password: cfg.Password,
		logger:   logger,
	}
}

func (d *SMTPDispatcher) Send(ctx context.Context, to, subject, body string) error {
	if d.host == "" || d.from == "" {
		return fmt.Errorf("smtp dispatcher not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMessage(d.from, to, subject, body)
	addr := fmt.Sprintf("%s:%d", d.host, d.port)

	var auth smtp.Auth
	if d.username != "" {
		auth = smtp.PlainAuth("", d.username, d.password, d.host)
	}

	if err := smtp.SendMail(addr, auth, d.from, []string{to}, msg); err != nil {
		d.logger.Error("failed to send mail",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	d.logger.Info("mail sent",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
