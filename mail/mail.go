// Package mail delivers the transactional emails of the authentication flows.
//
// The Engine only sees [Sender]. [LogSender] writes messages to a structured
// logger and is meant for development; [SMTPSender] renders the built-in
// templates and submits them to an SMTP relay.
package mail

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind selects the message template.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindOTP           Kind = "otp"
	KindPasswordReset Kind = "password_reset"
	KindWelcome       Kind = "welcome"
)

// Payload keys understood by the templates.
const (
	FieldCode      = "code"
	FieldExpiresIn = "expires_in"
	FieldToken     = "token"
	FieldLink      = "link"
)

// Payload carries the template values for one message.
type Payload map[string]string

// ErrUnknownKind is returned for a Kind without a template.
var ErrUnknownKind = errors.New("mail: unknown kind")

// Sender delivers one message and returns its message id.
type Sender interface {
	Send(ctx context.Context, to string, kind Kind, payload Payload) (string, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to string, kind Kind, payload Payload) (string, error)

func (f SenderFunc) Send(ctx context.Context, to string, kind Kind, payload Payload) (string, error) {
	return f(ctx, to, kind, payload)
}

type templates struct {
	subject string
	body    *template.Template
}

var catalog = map[Kind]templates{
	KindVerification: {
		subject: "Verify your email address",
		body: template.Must(template.New("verification").Parse(
			"Your verification code is {{.code}}.\nIt expires in {{.expires_in}}.\n")),
	},
	KindOTP: {
		subject: "Your new verification code",
		body: template.Must(template.New("otp").Parse(
			"Your new verification code is {{.code}}.\nIt expires in {{.expires_in}}. Earlier codes no longer work.\n")),
	},
	KindPasswordReset: {
		subject: "Reset your password",
		body: template.Must(template.New("password_reset").Parse(
			"Use the link below to choose a new password:\n\n{{if .link}}{{.link}}{{else}}{{.token}}{{end}}\n\nIt expires in {{.expires_in}}. If you did not ask for this, ignore this email.\n")),
	},
	KindWelcome: {
		subject: "Welcome",
		body: template.Must(template.New("welcome").Parse(
			"Your email address is verified and your account is ready.\n")),
	},
}

// Render returns the subject and body for kind.
func Render(kind Kind, payload Payload) (string, string, error) {
	t, ok := catalog[kind]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	var buf bytes.Buffer
	if err := t.body.Execute(&buf, map[string]string(payload)); err != nil {
		return "", "", fmt.Errorf("mail: render %s: %w", kind, err)
	}
	return t.subject, buf.String(), nil
}

// NewMessageID returns a sortable unique message id.
func NewMessageID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
