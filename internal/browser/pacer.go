package browser

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Pacer spaces out navigations: consecutive Waits return at least min plus
// a random share of jitter apart.
type Pacer struct {
	min    time.Duration
	jitter time.Duration

	mu   sync.Mutex
	last time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPacer(min, jitter time.Duration) *Pacer {
	return &Pacer{min: min, jitter: jitter, now: time.Now, sleep: sleepCtx}
}

// Wait blocks until the next navigation is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		gap := p.min
		if p.jitter > 0 {
			gap += rand.N(p.jitter)
		}
		if wait := gap - p.now().Sub(p.last); wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	p.last = p.now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
