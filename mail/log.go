package mail

import (
	"context"
	"log/slog"
	"time"
)

// LogSender logs messages instead of delivering them. Codes, tokens and links
// are redacted unless RevealSecrets is set.
type LogSender struct {
	Logger        *slog.Logger
	RevealSecrets bool
	Now           func() time.Time
}

func (s *LogSender) Send(ctx context.Context, to string, kind Kind, payload Payload) (string, error) {
	subject, _, err := Render(kind, payload)
	if err != nil {
		return "", err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := NewMessageID(now())
	attrs := []any{
		slog.String("message_id", id),
		slog.String("to", to),
		slog.String("kind", string(kind)),
		slog.String("subject", subject),
	}
	for _, key := range []string{FieldCode, FieldToken, FieldLink} {
		v, ok := payload[key]
		if !ok {
			continue
		}
		if !s.RevealSecrets {
			v = "[redacted]"
		}
		attrs = append(attrs, slog.String(key, v))
	}
	logger.InfoContext(ctx, "mail sent", attrs...)
	return id, nil
}
