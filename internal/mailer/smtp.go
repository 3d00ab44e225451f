// Package mailer delivers notification emails over SMTP.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// Message is a single plain-text notification.
type Message struct {
	FromName string
	From     string
	To       string
	ReplyTo  []string
	Subject  string
	Body     string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds the SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender sends each message over its own STARTTLS connection.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates a sender for cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send dials the server, authenticates when a username is configured and
// delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := buildMsg(msg, s.cfg.Username)
	if err != nil {
		return err
	}
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client for %s: %w", s.cfg.Host, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	return nil
}

// buildMsg turns msg into a go-mail message. The sender address defaults to
// the SMTP username and Reply-To defaults to the recipient.
func buildMsg(msg Message, username string) (*mail.Msg, error) {
	from := msg.From
	if from == "" {
		from = username
	}
	m := mail.NewMsg()
	if err := m.FromFormat(msg.FromName, from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	replyTo := msg.ReplyTo
	if len(replyTo) == 0 {
		replyTo = []string{msg.To}
	}
	m.SetGenHeader(mail.HeaderReplyTo, strings.Join(replyTo, ", "))
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}
