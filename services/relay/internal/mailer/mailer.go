// Package mailer sends the best-effort email copy of a stored contract.
// Failures here never fail the HTTP request that delivered the contract;
// the caller records the outcome on the receipt instead.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	mail "github.com/wneessen/go-mail"
)

// Config holds SMTP settings for the relay's outgoing copies.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer delivers signed-contract copies over SMTP.
type Mailer struct {
	client *mail.Client
	from   string
}

// New constructs the mailer. Credentials are optional; hosts that accept
// unauthenticated relay from the local network are common in small shops.
func New(cfg Config) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("mailer: host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mailer: from address is required")
	}
	opts := []mail.Option{mail.WithTimeout(10 * time.Second)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	return &Mailer{client: client, from: cfg.From}, nil
}

// SendContractCopy emails one signed contract PDF to the recipient.
func (m *Mailer) SendContractCopy(ctx context.Context, to, signerName, templateName, filename string, pdf []byte) error {
	msg, err := m.buildMessage(to, signerName, templateName, filename, pdf)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send contract copy: %w", err)
	}
	return nil
}

func (m *Mailer) buildMessage(to, signerName, templateName, filename string, pdf []byte) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(fmt.Sprintf("Signed contract: %s (%s)", templateName, signerName))
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Hello %s,\n\nAttached is your signed copy of %q.\n\nThis message was sent automatically; replies are not monitored.\n",
		signerName, templateName))
	if err := msg.AttachReader(filename, bytes.NewReader(pdf)); err != nil {
		return nil, fmt.Errorf("attach document: %w", err)
	}
	return msg, nil
}
