package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/dispatch-api/pkg/logger"
)

type Service interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Dialer is the part of gomail.Dialer the sender uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	dialer Dialer
	from   string
	logger *logger.Logger
}

// NewSMTPService sends mail through an SMTP relay. With no host configured
// it returns a sender that only logs.
func NewSMTPService(cfg Config, log *logger.Logger) Service {
	if cfg.Host == "" {
		return &logService{logger: log.With("email")}
	}
	return NewService(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, log)
}

func NewService(dialer Dialer, from string, log *logger.Logger) Service {
	return &smtpService{dialer: dialer, from: from, logger: log.With("email")}
}

func (s *smtpService) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Debug("Email sent", "to", to, "subject", subject)
	return nil
}

type logService struct {
	logger *logger.Logger
}

func (s *logService) Send(_ context.Context, to, subject, _ string) error {
	s.logger.Info("SMTP not configured, email skipped", "to", to, "subject", subject)
	return nil
}
