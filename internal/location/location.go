// Package location runs the two-phase location drop: a warning to every
// confirmed guest now, the address after a delay.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"party-doorman/internal/models"
	"party-doorman/internal/outbox"
)

// ErrNoRecipients is returned when the event has no confirmed guests.
var ErrNoRecipients = errors.New("no confirmed guests")

// Details is what the host supplies for a drop.
type Details struct {
	Address       string
	ArrivalWindow string
	Notes         string
}

// ParseDetails reads "address | arrival window | notes". The address is required.
func ParseDetails(text string) (Details, bool) {
	parts := strings.Split(text, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	d := Details{Address: parts[0]}
	if len(parts) > 1 {
		d.ArrivalWindow = parts[1]
	}
	if len(parts) > 2 {
		d.Notes = strings.Join(parts[2:], " | ")
	}
	return d, d.Address != ""
}

// GuestLister returns an event's guests by status.
type GuestLister interface {
	ListGuests(ctx context.Context, eventID int64, status models.GuestStatus) ([]models.Guest, error)
}

// Dropper schedules location reveals. At most one drop is pending at a time.
type Dropper struct {
	guests GuestLister
	out    *outbox.Outbox
	delay  time.Duration
	log    zerolog.Logger

	mu      sync.Mutex
	pending *Drop
}

// NewDropper creates a new location dropper
func NewDropper(guests GuestLister, out *outbox.Outbox, delay time.Duration, log zerolog.Logger) *Dropper {
	return &Dropper{
		guests: guests,
		out:    out,
		delay:  delay,
		log:    log.With().Str("component", "LocationDrop").Logger(),
	}
}

// Delay is the time between the warning and the reveal.
func (d *Dropper) Delay() time.Duration {
	return d.delay
}

// Drop is a scheduled reveal.
type Drop struct {
	Recipients int
	FireAt     time.Time

	timer *time.Timer
	done  chan struct{}
}

// Cancel stops the reveal and reports whether it had not fired yet.
func (p *Drop) Cancel() bool {
	return p.timer.Stop()
}

// Done is closed after the reveal has been sent.
func (p *Drop) Done() <-chan struct{} {
	return p.done
}

// Trigger sends the warning to every confirmed guest and schedules the
// reveal. A previously pending drop is cancelled first.
func (d *Dropper) Trigger(ctx context.Context, ev *models.Event, det Details) (*Drop, error) {
	guests, err := d.guests.ListGuests(ctx, ev.ID, models.GuestConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed guests: %w", err)
	}
	if len(guests) == 0 {
		return nil, ErrNoRecipients
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil && d.pending.Cancel() {
		d.log.Info().Msg("Replaced pending location drop")
	}

	warning := WarningText(ev, d.delay)
	for _, g := range guests {
		d.out.Send(ctx, ev.ID, g.Phone, warning)
	}

	reveal := RevealText(ev, det)
	drop := &Drop{
		Recipients: len(guests),
		FireAt:     time.Now().Add(d.delay),
		done:       make(chan struct{}),
	}
	// The reveal outlives the request that triggered it.
	bg := context.WithoutCancel(ctx)
	drop.timer = time.AfterFunc(d.delay, func() {
		defer close(drop.done)
		for _, g := range guests {
			d.out.Send(bg, ev.ID, g.Phone, reveal)
		}
		d.log.Info().Int("recipients", len(guests)).Msg("Location revealed")
		d.mu.Lock()
		if d.pending == drop {
			d.pending = nil
		}
		d.mu.Unlock()
	})
	d.pending = drop

	d.log.Info().Int("recipients", len(guests)).Dur("delay", d.delay).Msg("Location drop scheduled")
	return drop, nil
}

// Cancel stops the pending reveal, if any, and reports whether one was stopped.
func (d *Dropper) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return false
	}
	stopped := d.pending.Cancel()
	d.pending = nil
	return stopped
}

// WarningText is the first-phase message.
func WarningText(ev *models.Event, delay time.Duration) string {
	return fmt.Sprintf("🎉 %s\n\nLocation drops in %s.\nGet ready!", ev.Name, HumanDelay(delay))
}

// RevealText is the second-phase message carrying the address.
func RevealText(ev *models.Event, det Details) string {
	parts := []string{"📍 " + ev.Name, det.Address}
	if det.ArrivalWindow != "" {
		parts = append(parts, "Arrival: "+det.ArrivalWindow)
	}
	if det.Notes != "" {
		parts = append(parts, det.Notes)
	}
	parts = append(parts, "See you there!")
	return strings.Join(parts, "\n\n")
}

// HumanDelay renders a drop delay as "5 minutes".
func HumanDelay(d time.Duration) string {
	switch m := int(d.Round(time.Minute) / time.Minute); {
	case m > 1:
		return fmt.Sprintf("%d minutes", m)
	case m == 1:
		return "1 minute"
	}
	return "a moment"
}
