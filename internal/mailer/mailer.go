package mailer

import (
	"context"
	"fmt"
	"io"

	"github.com/go-gomail/gomail"
	"github.com/rs/zerolog"

	"careconnect-server/internal/config"
)

// Attachment is a file sent along with an email.
type Attachment struct {
	Name string
	Data []byte
}

// Email is a plain-text message.
type Email struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer sends emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SMTPMailer delivers email through an SMTP relay with gomail.
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTPMailer creates a new SMTPMailer.
func NewSMTPMailer(cfg config.MailerConfig) *SMTPMailer {
	from := cfg.DefaultFrom
	if from == "" {
		from = cfg.Username
	}
	return &SMTPMailer{
		from:   from,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Body)

	for _, a := range email.Attachments {
		data := a.Data
		msg.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email to %s: %w", email.To, err)
	}
	return nil
}

// LogMailer logs emails instead of sending them. It is used when no SMTP
// credentials are configured.
type LogMailer struct {
	Logger zerolog.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(_ context.Context, email Email) error {
	m.Logger.Info().
		Str("to", email.To).
		Str("subject", email.Subject).
		Int("attachments", len(email.Attachments)).
		Msg("email (not delivered, no smtp credentials)")
	return nil
}

// New returns an SMTPMailer when credentials are configured and a LogMailer
// otherwise.
func New(cfg config.MailerConfig, logger zerolog.Logger) Mailer {
	if cfg.Username == "" || cfg.Password == "" {
		return LogMailer{Logger: logger}
	}
	return NewSMTPMailer(cfg)
}
