// Package notifier delivers OTP codes to a user's contact address,
// either directly over SMTP or by handing the job to a mailer fleet
// through Kafka.
package notifier

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/util"
)

// SMTPNotifier sends the OTP mail itself. The message carries plain
// and HTML alternatives.
type SMTPNotifier struct {
	cfg    config.SMTPConfig
	from   *mail.Address
	logger *zap.Logger
}

func NewSMTPNotifier(cfg config.SMTPConfig, logger *zap.Logger) (*SMTPNotifier, error) {
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", cfg.From, err)
	}
	if logger == nil {
		logger = util.Get()
	}
	return &SMTPNotifier{cfg: cfg, from: from, logger: logger}, nil
}

func (n *SMTPNotifier) SendOTP(ctx context.Context, address, code string) error {
	to, err := mail.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	msg := buildOTPMessage(n.from, to, code)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, n.from.Address, []string{to.Address}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			n.logger.Error("OTP mail delivery failed", zap.Error(err))
			return fmt.Errorf("failed to send OTP mail: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("OTP mail delivery canceled: %w", ctx.Err())
	}

	n.logger.Info("OTP mail sent")
	return nil
}

func buildOTPMessage(from, to *mail.Address, code string) []byte {
	const boundary = "otp-boundary"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	b.WriteString("Subject: Your one-time passcode\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Your one-time passcode is: %s\r\n\r\n", code)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "<p>Your one-time passcode is: <strong>%s</strong></p>\r\n\r\n", code)

	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}
