package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig addresses an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender submits rendered messages to an SMTP relay.
type SMTPSender struct {
	config SMTPConfig
	now    func() time.Time
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns a sender for cfg. PLAIN auth is used when Username is
// set.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("mail: smtp host and from address required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{config: cfg, now: time.Now, send: smtp.SendMail}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to string, kind Kind, payload Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	subject, body, err := Render(kind, payload)
	if err != nil {
		return "", err
	}

	now := s.now()
	id := NewMessageID(now)
	msg := buildMessage(s.config.From, to, subject, body, id, s.config.Host, now)

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	if err := s.send(addr, auth, s.config.From, []string{to}, msg); err != nil {
		return "", fmt.Errorf("mail: smtp send: %w", err)
	}
	return id, nil
}

func buildMessage(from, to, subject, body, id, host string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: <" + id + "@" + host + ">\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
