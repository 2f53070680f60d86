// Package email delivers account mail over SMTP.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
)

// SMTPSender sends mail through a plain SMTP server.
type SMTPSender struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// SendVerificationCode mails the 6-digit signup code.
func (s *SMTPSender) SendVerificationCode(ctx context.Context, email, code string) error {
	body := fmt.Sprintf("Your verification code is %s.\r\n\r\nIt expires when a new code is requested.", code)
	return s.send(ctx, email, "Verify your email", body)
}

// SendWelcome mails the post-verification welcome note.
func (s *SMTPSender) SendWelcome(ctx context.Context, email string) error {
	return s.send(ctx, email, "Welcome", "Your email is verified. Welcome aboard!")
}

func (s *SMTPSender) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if s.Username != "" {
		host, _, err := net.SplitHostPort(s.Addr)
		if err != nil {
			return fmt.Errorf("split smtp addr: %w", err)
		}
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}
	if err := smtp.SendMail(s.Addr, auth, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogSender writes mail to the log instead of sending it. Used when no SMTP
// server is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) SendVerificationCode(_ context.Context, email, code string) error {
	s.Logger.Info("Verification mail (not sent)", "email", email, "code", code)
	return nil
}

func (s *LogSender) SendWelcome(_ context.Context, email string) error {
	s.Logger.Info("Welcome mail (not sent)", "email", email)
	return nil
}
