package common

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Email is one outgoing HTML message.
type Email struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

// EmailSender delivers messages. Implementations must be safe for concurrent use.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// InMemoryEmail keeps every message it is given. Tests read them back with Sent.
type InMemoryEmail struct {
	mu   sync.Mutex
	sent []Email
}

func (m *InMemoryEmail) Send(_ context.Context, msg Email) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *InMemoryEmail) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

// LogEmailSender records an outbox line instead of delivering.
type LogEmailSender struct {
	Logger zerolog.Logger
}

func (l LogEmailSender) Send(_ context.Context, msg Email) error {
	l.Logger.Info().
		Str("to", msg.To).
		Str("reply_to", msg.ReplyTo).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTML)).
		Msg("email_outbox")
	return nil
}
