// Package mailer defines the outbound email transport used for
// notification emails, with an SMTP implementation and a logging
// implementation for development.
package mailer

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNoRecipient is returned when a message has no destination address.
var ErrNoRecipient = errors.New("message has no recipient")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Transport delivers a message. Implementations may be slow and may fail;
// callers bound them with a context deadline.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport writes messages to the log instead of delivering them.
type LogTransport struct {
	From string
}

// Send logs the message.
func (t LogTransport) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context error is returned as-is
	}
	slog.Info("mail: message",
		"from", t.From,
		"to", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
	)
	return nil
}

// Verify interface compliance.
var _ Transport = LogTransport{}
