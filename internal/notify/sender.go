package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sender delivers a single rendered email.
type Sender interface {
	Send(to, subject, html string) error
}

// LogSender writes messages to the log instead of a mail server.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(to, subject, _ string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Msg("email")
	return nil
}

// Message is one email captured by an Outbox.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Outbox records messages in memory.
type Outbox struct {
	mu       sync.Mutex
	Messages []Message
}

func (o *Outbox) Send(to, subject, html string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Messages = append(o.Messages, Message{To: to, Subject: subject, HTML: html})
	return nil
}
