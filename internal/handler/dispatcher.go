// Package handler routes inbound messages: host commands for the event host,
// the conversation state machine for guests, and a fixed reply for strangers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"party-doorman/internal/intent"
	"party-doorman/internal/llm"
	"party-doorman/internal/location"
	"party-doorman/internal/models"
	"party-doorman/internal/outbox"
	"party-doorman/internal/phone"
	"party-doorman/internal/storage"
)

// maxAttempts bounds how often a guest message is re-decided after losing a
// state version race.
const maxAttempts = 3

// Answerer is the open-domain fallback for free text.
type Answerer interface {
	AnswerGuest(ctx context.Context, question string, ev *models.Event, g *models.Guest) (llm.Answer, error)
	AnswerHost(ctx context.Context, text string, ev *models.Event) (string, error)
	AnswerStranger(ctx context.Context, text string) (string, error)
	RewriteHostAnswer(ctx context.Context, answer, question string) (string, error)
}

// Social is the background social-graph worker as seen by the dispatcher.
type Social interface {
	Enqueue(target models.ScrapeTarget) bool
	Summary(ctx context.Context, eventID int64) (string, error)
}

// ContactSync writes names into the transport's contact directory.
type ContactSync interface {
	PutContactName(ctx context.Context, phone, name string) error
}

type Config struct {
	Region          string
	HostDisplayName string
	BotName         string
}

// Inbound is one message received from the transport.
type Inbound struct {
	From string
	Text string
	// VCard holds raw vCard content when the message is a contact card.
	VCard string
}

// Reply is the dispatcher's answer to an Inbound.
type Reply struct {
	EventID int64
	To      string
	Text    string
}

// Dispatcher classifies senders and routes their messages.
type Dispatcher struct {
	store    *storage.Store
	out      *outbox.Outbox
	patterns intent.Patterns
	fallback intent.Classifier
	answerer Answerer
	social   Social
	contacts ContactSync
	drops    *location.Dropper
	cfg      Config
	log      zerolog.Logger
}

type Option func(*Dispatcher)

// WithClassifiers sets the classifiers consulted, in order, when pattern
// matching is inconclusive.
func WithClassifiers(cs ...intent.Classifier) Option {
	return func(d *Dispatcher) { d.fallback = intent.Chain(cs) }
}

func WithAnswerer(a Answerer) Option {
	return func(d *Dispatcher) { d.answerer = a }
}

func WithSocial(s Social) Option {
	return func(d *Dispatcher) { d.social = s }
}

func WithContacts(c ContactSync) Option {
	return func(d *Dispatcher) { d.contacts = c }
}

func WithDropper(dr *location.Dropper) Option {
	return func(d *Dispatcher) { d.drops = dr }
}

// NewDispatcher creates a new message dispatcher
func NewDispatcher(store *storage.Store, out *outbox.Outbox, cfg Config, log zerolog.Logger, opts ...Option) *Dispatcher {
	if cfg.Region == "" {
		cfg.Region = "US"
	}
	if cfg.BotName == "" {
		cfg.BotName = "Max"
	}
	if cfg.HostDisplayName == "" {
		cfg.HostDisplayName = "The host"
	}
	d := &Dispatcher{
		store:    store,
		out:      out,
		patterns: intent.Patterns{Region: cfg.Region},
		fallback: intent.Chain(nil),
		cfg:      cfg,
		log:      log.With().Str("component", "Dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Respond handles the message and sends the reply through the outbox.
func (d *Dispatcher) Respond(ctx context.Context, in Inbound) Reply {
	r := d.Handle(ctx, in)
	if r.Text != "" {
		d.out.Send(ctx, r.EventID, r.To, r.Text)
	}
	return r
}

// Handle routes one inbound message and returns the reply without sending
// it. Side messages (invites, relays, notices) are still sent.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) (reply Reply) {
	log := d.log.With().Str("request_id", uuid.NewString()).Logger()
	ctx = log.WithContext(ctx)
	reply.To = in.From

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("Panic while handling message")
			reply.Text = msgApology
		}
	}()

	from, err := phone.Normalize(in.From, d.cfg.Region)
	if err != nil {
		log.Warn().Str("from", in.From).Msg("Unrecognised sender number")
		reply.Text = msgBadNumber
		return reply
	}
	reply.To = from

	ev, err := d.store.ActiveEvent(ctx)
	if errors.Is(err, storage.ErrNoActiveEvent) {
		d.out.LogInbound(ctx, 0, from, in.Text)
		reply.Text = msgNoActiveEvent
		return reply
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load active event")
		reply.Text = msgApology
		return reply
	}
	reply.EventID = ev.ID
	d.out.LogInbound(ctx, ev.ID, from, in.Text)

	var card phone.Card
	if in.VCard != "" {
		card = phone.ParseVCard(in.VCard, d.cfg.Region)
	}

	start := time.Now()
	text, route, err := d.route(ctx, ev, from, in.Text, card)
	if err != nil {
		log.Error().Err(err).Str("route", route).Str("from", phone.Mask(from)).Msg("Failed to handle message")
		text = msgApology
	}
	log.Debug().Str("route", route).Dur("took", time.Since(start)).Msg("Handled message")
	reply.Text = text
	return reply
}

func (d *Dispatcher) route(ctx context.Context, ev *models.Event, from, text string, card phone.Card) (string, string, error) {
	if from == ev.HostPhone {
		reply, err := d.handleHost(ctx, ev, text, card)
		return reply, "host", err
	}
	g, err := d.store.GuestByPhone(ctx, ev.ID, from)
	if errors.Is(err, storage.ErrNotFound) {
		return d.handleStranger(ctx, text), "stranger", nil
	}
	if err != nil {
		return "", "guest", fmt.Errorf("failed to look up guest: %w", err)
	}
	reply, err := d.handleGuest(ctx, ev, g, text, card)
	return reply, "guest", err
}

func (d *Dispatcher) handleStranger(ctx context.Context, text string) string {
	if d.answerer != nil {
		if reply, err := d.answerer.AnswerStranger(ctx, text); err == nil && reply != "" {
			return reply
		}
	}
	return msgStranger
}

// classify runs pattern matching and, when that is inconclusive, the
// fallback classifiers. faq is set when patterns were inconclusive and the
// text is a recognised event question; the fallback is then skipped.
func (d *Dispatcher) classify(ctx context.Context, text string, kind intent.Kind) (r intent.Result, faq intent.FAQ) {
	r, _ = d.patterns.Classify(ctx, text, kind)
	if r.Conclusive(kind) {
		return r, ""
	}
	if faq = intent.DetectFAQ(text); faq != "" {
		return intent.Result{}, faq
	}
	r, err := d.fallback.Classify(ctx, text, kind)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Fallback classifier failed")
		return intent.Result{}, ""
	}
	return r, ""
}

func (d *Dispatcher) displayPhone(p string) string {
	return phone.Display(p, d.cfg.Region)
}
