// Package outbox delivers outbound messages best-effort and records every
// message in the audit log.
package outbox

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"party-doorman/internal/models"
)

// BotAddress is the from/to value recorded for the bot's own side of a message.
const BotAddress = "bot"

// Messenger is the outbound transport.
type Messenger interface {
	SendMessage(ctx context.Context, phone, text string) error
}

// MessageLogger persists audit-trail entries.
type MessageLogger interface {
	LogMessage(ctx context.Context, m *models.MessageLog) error
}

// Outbox sends through a Messenger and logs through a MessageLogger.
// Neither failure is ever returned to the caller.
type Outbox struct {
	messenger Messenger
	store     MessageLogger
	log       zerolog.Logger
}

// New creates a new outbox. A nil messenger turns Send into log-only.
func New(m Messenger, store MessageLogger, log zerolog.Logger) *Outbox {
	return &Outbox{
		messenger: m,
		store:     store,
		log:       log.With().Str("component", "Outbox").Logger(),
	}
}

// Send delivers text to phone and reports whether the transport accepted it.
func (o *Outbox) Send(ctx context.Context, eventID int64, phone, text string) bool {
	o.record(ctx, eventID, BotAddress, phone, text, models.Outbound)
	if o.messenger == nil {
		return false
	}
	if err := o.messenger.SendMessage(ctx, phone, text); err != nil {
		o.log.Warn().Err(err).Str("to", phone).Msg("Failed to send message")
		return false
	}
	return true
}

// LogInbound records a message received from phone. eventID 0 means no active event.
func (o *Outbox) LogInbound(ctx context.Context, eventID int64, phone, text string) {
	o.record(ctx, eventID, phone, BotAddress, text, models.Inbound)
}

// LogReply records a reply that the caller delivers itself.
func (o *Outbox) LogReply(ctx context.Context, eventID int64, phone, text string) {
	o.record(ctx, eventID, BotAddress, phone, text, models.Outbound)
}

func (o *Outbox) record(ctx context.Context, eventID int64, from, to, text string, dir models.MessageDirection) {
	if o.store == nil {
		return
	}
	m := &models.MessageLog{FromPhone: from, ToPhone: to, Body: text, Direction: dir}
	if eventID != 0 {
		m.EventID = &eventID
	}
	if err := o.store.LogMessage(ctx, m); err != nil {
		o.log.Warn().Err(err).Str("direction", string(dir)).Msg("Failed to log message")
	}
}

// Message is a message captured by a Recorder.
type Message struct {
	Phone string
	Text  string
}

// Recorder is a Messenger that keeps messages in memory instead of sending
// them. Tests use it in place of a transport.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	// Fail, when set, is returned by every SendMessage call.
	Fail error
}

func (r *Recorder) SendMessage(_ context.Context, phone, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.sent = append(r.sent, Message{Phone: phone, Text: text})
	return nil
}

// Sent returns a copy of every recorded message.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

// To returns the texts recorded for phone, in order.
func (r *Recorder) To(phone string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.sent {
		if m.Phone == phone {
			out = append(out, m.Text)
		}
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
