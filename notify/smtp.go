// Package notify delivers one-time codes by email over SMTP.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deskops/deskauth"
	"gopkg.in/gomail.v2"
)

// Dialer sends composed messages. *gomail.Dialer implements it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid smtp port %d", c.Port)
	}
	if strings.TrimSpace(c.From) == "" {
		return errors.New("smtp from address is required")
	}
	return nil
}

// SMTPSender is a deskauth.EmailSender backed by gomail.
type SMTPSender struct {
	dialer Dialer
	from   string
}

var _ deskauth.EmailSender = (*SMTPSender)(nil)

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From), nil
}

// NewSender wraps an existing dialer.
func NewSender(dialer Dialer, from string) *SMTPSender {
	return &SMTPSender{dialer: dialer, from: from}
}

// Send delivers a plain-text message. gomail has no context support, so ctx
// is only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
