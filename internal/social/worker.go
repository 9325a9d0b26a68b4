// Package social follows guests' Instagram handles, scrapes who they follow,
// and tells confirmed guests when someone they follow gets on the list.
package social

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"party-doorman/internal/config"
	"party-doorman/internal/models"
	"party-doorman/internal/outbox"
	"party-doorman/internal/storage"
)

// ErrRunning is returned by Run when another consumer is already draining the queue.
var ErrRunning = errors.New("social worker already running")

// Automation is the rate-limited browser session. It is never used by more
// than one goroutine at a time.
type Automation interface {
	Follow(ctx context.Context, handle string) (models.FollowResult, error)
	// ScrapeFollowing returns the handles the account follows. ok is false
	// when the list is not visible yet, typically a private account.
	ScrapeFollowing(ctx context.Context, handle string) (following []string, ok bool, err error)
}

type jobKind string

const (
	jobFollow jobKind = "follow"
	jobRescan jobKind = "rescan"
)

type job struct {
	id     string
	kind   jobKind
	target models.ScrapeTarget
}

// Worker is the single consumer of the social job queue.
type Worker struct {
	store   *storage.Store
	auto    Automation
	out     *outbox.Outbox
	cfg     config.SocialConfig
	queue   chan job
	running atomic.Bool
	log     zerolog.Logger

	// sleep waits between follow and scrape. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new social-graph worker
func New(store *storage.Store, auto Automation, out *outbox.Outbox, cfg config.SocialConfig, log zerolog.Logger) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Minute
	}
	return &Worker{
		store: store,
		auto:  auto,
		out:   out,
		cfg:   cfg,
		queue: make(chan job, cfg.QueueSize),
		log:   log.With().Str("component", "Social").Logger(),
		sleep: sleepCtx,
	}
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

// Enqueue schedules a follow-and-scrape job and never blocks. A full queue
// drops the job; the durable pending row brings it back on an idle sweep.
func (w *Worker) Enqueue(t models.ScrapeTarget) bool {
	return w.enqueue(jobFollow, t)
}

func (w *Worker) enqueue(kind jobKind, t models.ScrapeTarget) bool {
	j := job{id: uuid.NewString(), kind: kind, target: t}
	select {
	case w.queue <- j:
		w.log.Debug().Str("job_id", j.id).Str("kind", string(kind)).Str("handle", t.Handle).Msg("Job queued")
		return true
	default:
		w.log.Warn().Str("kind", string(kind)).Str("handle", t.Handle).Msg("Queue full, dropping job")
		return false
	}
}

// Recover re-queues work that a previous process left unfinished: follows
// never attempted and follows whose scrape is still outstanding.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	follows, err := w.store.PendingFollows(ctx, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending follows: %w", err)
	}
	rescans, err := w.store.PendingRescans(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending rescans: %w", err)
	}
	var n int
	for _, t := range follows {
		if w.enqueue(jobFollow, t) {
			n++
		}
	}
	for _, t := range rescans {
		if w.enqueue(jobRescan, t) {
			n++
		}
	}
	if n > 0 {
		w.log.Info().Int("jobs", n).Msg("Recovered social jobs")
	}
	return n, nil
}

// Run drains the queue until ctx is done. When the queue stays empty for
// IdleTimeout it sweeps the store for rescans and stale follows.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer w.running.Store(false)

	w.log.Info().Msg("Social worker started")
	idle := time.NewTimer(w.cfg.IdleTimeout)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Social worker stopped")
			return ctx.Err()
		case j := <-w.queue:
			w.process(ctx, j)
		case <-idle.C:
			w.sweep(ctx)
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(w.cfg.IdleTimeout)
	}
}

func (w *Worker) sweep(ctx context.Context) {
	rescans, err := w.store.PendingRescans(ctx, w.cfg.RescanCooldown)
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list pending rescans")
	}
	for _, t := range rescans {
		w.enqueue(jobRescan, t)
	}

	stale, err := w.store.PendingFollows(ctx, w.store.Now().Add(-w.cfg.RescanCooldown))
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list stale follows")
	}
	for _, t := range stale {
		w.enqueue(jobFollow, t)
	}
	if len(rescans)+len(stale) > 0 {
		w.log.Info().Int("rescans", len(rescans)).Int("follows", len(stale)).Msg("Idle sweep queued jobs")
	}
}

func (w *Worker) process(ctx context.Context, j job) {
	log := w.log.With().Str("job_id", j.id).Str("kind", string(j.kind)).Str("handle", j.target.Handle).Logger()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("Social job panicked")
		}
	}()

	start := time.Now()
	var err error
	switch j.kind {
	case jobFollow:
		err = w.followAndScrape(ctx, j.target, log)
	case jobRescan:
		err = w.scrape(ctx, j.target, log)
	}
	if err != nil {
		log.Error().Err(err).Msg("Social job failed")
		return
	}
	log.Debug().Dur("took", time.Since(start)).Msg("Social job done")
}

func (w *Worker) followAndScrape(ctx context.Context, t models.ScrapeTarget, log zerolog.Logger) error {
	fs, err := w.store.GetFollowStatus(ctx, t.EventID, t.GuestID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Debug().Msg("Follow row gone, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	// The idle sweep and Recover can queue a row more than once; only the
	// first job for the current handle follows.
	if fs.Status != models.FollowPending || !strings.EqualFold(fs.Handle, t.Handle) {
		log.Debug().Str("status", string(fs.Status)).Str("current_handle", fs.Handle).Msg("Follow already handled, skipping")
		return nil
	}

	result, err := w.auto.Follow(ctx, t.Handle)
	var errMsg string
	switch {
	case err != nil:
		result, errMsg = models.FollowError, err.Error()
	case result == models.FollowNotFound:
		errMsg = "profile not found"
	case result != models.FollowFollowed && result != models.FollowRequested:
		result, errMsg = models.FollowError, fmt.Sprintf("unexpected follow result %q", result)
	}
	if err := w.store.RecordFollowResult(ctx, t.EventID, t.GuestID, result, errMsg); err != nil {
		return err
	}
	log.Info().Str("result", string(result)).Msg("Follow attempted")
	if result == models.FollowNotFound || result == models.FollowError {
		return nil
	}

	if err := w.sleep(ctx, w.scrapeDelay()); err != nil {
		return err
	}
	return w.scrape(ctx, t, log)
}

func (w *Worker) scrapeDelay() time.Duration {
	d := w.cfg.ScrapeDelay
	if w.cfg.ScrapeJitter > 0 {
		d += rand.N(w.cfg.ScrapeJitter)
	}
	return d
}

func (w *Worker) scrape(ctx context.Context, t models.ScrapeTarget, log zerolog.Logger) error {
	following, ok, err := w.auto.ScrapeFollowing(ctx, t.Handle)
	if err != nil {
		log.Warn().Err(err).Msg("Scrape failed")
	}
	if err != nil || !ok {
		return w.store.MarkScrapePending(ctx, t.EventID, t.GuestID)
	}

	added, err := w.store.StoreFollowing(ctx, t.EventID, t.GuestID, t.Handle, following)
	if err != nil {
		return err
	}
	if err := w.store.MarkScraped(ctx, t.EventID, t.GuestID, len(following)); err != nil {
		return err
	}
	notified, err := w.crossReference(ctx, t)
	if err != nil {
		return err
	}
	log.Info().Int("following", len(following)).Int("new_edges", added).Int("notified", notified).Msg("Scraped")
	return nil
}

// crossReference tells every confirmed guest who follows t's handle that t
// is on the list. Each ordered pair is notified at most once.
func (w *Worker) crossReference(ctx context.Context, t models.ScrapeTarget) (int, error) {
	g, err := w.store.GetGuest(ctx, t.GuestID)
	if err != nil {
		return 0, err
	}
	followers, err := w.store.FindFollowersOf(ctx, t.EventID, t.Handle, t.GuestID)
	if err != nil {
		return 0, err
	}

	name := g.DisplayName("@" + t.Handle)
	var n int
	for _, f := range followers {
		claimed, err := w.store.RecordNotification(ctx, t.EventID, f.GuestID, g.ID)
		if err != nil {
			return n, err
		}
		if !claimed {
			continue
		}
		w.out.Send(ctx, t.EventID, f.Phone, fmt.Sprintf("Heads up - %s just got on the list.", name))
		n++
	}
	return n, nil
}

// Summary renders the event's guest-to-guest connections for the host.
func (w *Worker) Summary(ctx context.Context, eventID int64) (string, error) {
	conns, err := w.store.SocialGraph(ctx, eventID)
	if err != nil {
		return "", err
	}
	st, err := w.store.SocialStats(ctx, eventID)
	if err != nil {
		return "", err
	}
	if len(conns) == 0 && st.WithHandle == 0 {
		return "No guests have shared an Instagram handle yet.", nil
	}

	graph := map[string][]models.Connection{}
	for _, c := range conns {
		graph[c.GuestHandle] = append(graph[c.GuestHandle], c)
	}
	followers := make([]string, 0, len(graph))
	for h := range graph {
		followers = append(followers, h)
	}
	sort.Strings(followers)

	lines := []string{"🕸 Instagram connections", ""}
	for _, h := range followers {
		lines = append(lines, "@"+h+" follows:")
		for _, c := range graph[h] {
			line := "  → @" + c.FollowedHandle
			if c.FollowedName != "" {
				line += " (" + c.FollowedName + ")"
			}
			lines = append(lines, line)
		}
		lines = append(lines, "")
	}
	lines = append(lines,
		fmt.Sprintf("%d guests with IG | %d scraped | %d pending", st.WithHandle, st.Scraped, st.Pending),
		fmt.Sprintf("%d connections between guests", st.Connections))
	return strings.Join(lines, "\n"), nil
}
