// Package browser drives a logged-in Instagram session in Chrome: following a
// profile and reading who it follows.
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"party-doorman/internal/config"
	"party-doorman/internal/models"
)

const baseURL = "https://www.instagram.com"

var (
	ErrBadHandle  = errors.New("invalid instagram handle")
	ErrLoggedOut  = errors.New("instagram session is logged out")
	validHandle   = regexp.MustCompile(`^[a-z0-9._]{1,30}$`)
	reservedPaths = map[string]bool{"explore": true, "reels": true, "direct": true, "accounts": true}
)

// Profile page states reported by profileStateJS.
const (
	pageNotFound  = "not_found"
	pageFollowing = "following"
	pageRequested = "requested"
	pagePrivate   = "private"
	pageFollow    = "follow"
)

const profileStateJS = `(() => {
	const text = document.body ? document.body.innerText : '';
	if (text.includes("Sorry, this page isn't available")) return 'not_found';
	const labels = Array.from(document.querySelectorAll('button')).map(b => b.innerText.trim());
	if (labels.includes('Following')) return 'following';
	if (labels.includes('Requested')) return 'requested';
	if (text.includes('This account is private')) return 'private';
	if (labels.includes('Follow') || labels.includes('Follow Back')) return 'follow';
	return 'unknown';
})()`

const clickFollowJS = `(() => {
	const b = Array.from(document.querySelectorAll('button'))
		.find(b => ['Follow', 'Follow Back'].includes(b.innerText.trim()));
	if (!b) return false;
	b.click();
	return true;
})()`

const clickFollowingJS = `(() => {
	const a = document.querySelector('a[href="/%s/following/"]');
	if (!a) return false;
	a.click();
	return true;
})()`

// collectFollowingJS scrolls the following dialog until it stops growing.
const collectFollowingJS = `(async () => {
	const delay = ms => new Promise(r => setTimeout(r, ms));
	const dialog = document.querySelector('div[role="dialog"]');
	if (!dialog) return { error: 'no dialog' };
	let scrollable = null;
	for (const d of dialog.querySelectorAll('div')) {
		const style = window.getComputedStyle(d);
		if ((style.overflowY === 'scroll' || style.overflowY === 'auto') && d.scrollHeight > d.clientHeight) {
			scrollable = d;
			break;
		}
	}
	if (!scrollable) return { error: 'no scrollable list' };
	const handles = new Set();
	let prev = 0, stalls = 0;
	for (let i = 0; i < 800 && stalls < 10; i++) {
		for (const link of dialog.querySelectorAll('a[role="link"]')) {
			const href = link.getAttribute('href') || '';
			const parts = href.split('/').filter(Boolean);
			if (href.startsWith('/') && parts.length === 1) handles.add(parts[0].toLowerCase());
		}
		stalls = handles.size === prev ? stalls + 1 : 0;
		prev = handles.size;
		scrollable.scrollTop = scrollable.scrollHeight;
		await delay(600 + Math.random() * 800);
	}
	return { handles: Array.from(handles) };
})()`

type collectResult struct {
	Handles []string `json:"handles"`
	Error   string   `json:"error"`
}

// Instagram is a single Chrome tab on a persistent profile. Calls are
// serialised; the browser starts on first use and lives until Close.
type Instagram struct {
	cfg   config.BrowserConfig
	pacer *Pacer
	log   zerolog.Logger
	start func() (context.Context, context.CancelFunc, error)

	mu     sync.Mutex
	tab    context.Context
	cancel context.CancelFunc
}

// New creates a new Instagram driver
func New(cfg config.BrowserConfig, log zerolog.Logger) *Instagram {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	b := &Instagram{
		cfg:   cfg,
		pacer: NewPacer(cfg.NavDelay, cfg.NavJitter),
		log:   log.With().Str("component", "Instagram").Logger(),
	}
	b.start = b.startBrowser
	return b
}

func allocatorOptions(cfg config.BrowserConfig, headless bool) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	return append(opts,
		chromedp.UserDataDir(cfg.ProfileDir),
		chromedp.Flag("headless", headless),
		chromedp.WindowSize(1280, 900),
	)
}

// startBrowser launches Chrome and opens the tab. The first Run on a chromedp
// context allocates the browser and binds its lifetime to that context, so it
// must not carry a deadline.
func (b *Instagram) startBrowser() (context.Context, context.CancelFunc, error) {
	alloc, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(b.cfg, b.cfg.Headless)...)
	tab, cancelTab := chromedp.NewContext(alloc)
	cancel := func() {
		cancelTab()
		cancelAlloc()
	}
	if err := chromedp.Run(tab); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	b.log.Info().Str("profile", b.cfg.ProfileDir).Bool("headless", b.cfg.Headless).Msg("Browser started")
	return tab, cancel, nil
}

// ensure returns the live tab, starting the browser when there is none or
// the previous one died. Callers hold mu.
func (b *Instagram) ensure() (context.Context, error) {
	if b.tab != nil {
		if b.tab.Err() == nil {
			return b.tab, nil
		}
		b.log.Warn().Msg("Browser went away, restarting")
		b.cancel()
		b.tab, b.cancel = nil, nil
	}
	tab, cancel, err := b.start()
	if err != nil {
		return nil, err
	}
	b.tab, b.cancel = tab, cancel
	return tab, nil
}

// Close shuts the browser down. The next call starts a fresh one.
func (b *Instagram) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	b.tab, b.cancel = nil, nil
}

// callContext derives a context on the tab that ends at the per-call timeout
// or when ctx is done. Cancelling it leaves the browser running.
func (b *Instagram) callContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	tab, err := b.ensure()
	if err != nil {
		return nil, nil, err
	}
	tctx, cancel := context.WithTimeout(tab, b.cfg.Timeout)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}, nil
}

func (b *Instagram) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel, err := b.callContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

// openProfile navigates to handle's profile and reports its state.
func (b *Instagram) openProfile(ctx context.Context, handle string) (string, error) {
	if err := b.pacer.Wait(ctx); err != nil {
		return "", err
	}
	var (
		location string
		state    string
	)
	err := b.run(ctx,
		chromedp.Navigate(fmt.Sprintf("%s/%s/", baseURL, handle)),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&location),
		chromedp.Evaluate(profileStateJS, &state),
	)
	if err != nil {
		return "", fmt.Errorf("failed to open profile: %w", err)
	}
	if strings.Contains(location, "/accounts/login") || strings.Contains(location, "/challenge") {
		return "", ErrLoggedOut
	}
	return state, nil
}

func cleanHandle(handle string) (string, error) {
	h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	if !validHandle.MatchString(h) {
		return "", fmt.Errorf("%w: %q", ErrBadHandle, handle)
	}
	return h, nil
}

// Follow follows handle. An account that is already followed counts as followed.
func (b *Instagram) Follow(ctx context.Context, handle string) (models.FollowResult, error) {
	h, err := cleanHandle(handle)
	if err != nil {
		return models.FollowNotFound, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	state, err := b.openProfile(ctx, h)
	if err != nil {
		return models.FollowError, err
	}
	switch state {
	case pageNotFound:
		return models.FollowNotFound, nil
	case pageFollowing:
		return models.FollowFollowed, nil
	case pageRequested:
		return models.FollowRequested, nil
	case pageFollow, pagePrivate:
	default:
		return models.FollowError, fmt.Errorf("unrecognised profile page %q", state)
	}

	var clicked bool
	err = b.run(ctx,
		chromedp.Evaluate(clickFollowJS, &clicked),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(profileStateJS, &state),
	)
	if err != nil {
		return models.FollowError, fmt.Errorf("failed to click follow: %w", err)
	}
	if !clicked {
		return models.FollowError, errors.New("no follow button")
	}
	switch state {
	case pageFollowing:
		return models.FollowFollowed, nil
	case pageRequested:
		return models.FollowRequested, nil
	}
	return models.FollowError, fmt.Errorf("follow not confirmed, page shows %q", state)
}

// ScrapeFollowing reads the accounts handle follows. ok is false when the
// list is not visible: a private account, a missing profile, or a dialog
// that did not open.
func (b *Instagram) ScrapeFollowing(ctx context.Context, handle string) ([]string, bool, error) {
	h, err := cleanHandle(handle)
	if err != nil {
		return nil, false, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	state, err := b.openProfile(ctx, h)
	if err != nil {
		return nil, false, err
	}
	if state == pageNotFound || state == pagePrivate {
		return nil, false, nil
	}

	var (
		clicked bool
		res     collectResult
	)
	if err := b.run(ctx, chromedp.Evaluate(fmt.Sprintf(clickFollowingJS, h), &clicked)); err != nil {
		return nil, false, fmt.Errorf("failed to open following list: %w", err)
	}
	if !clicked {
		return nil, false, nil
	}
	err = b.run(ctx,
		chromedp.Sleep(3*time.Second),
		chromedp.Evaluate(collectFollowingJS, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read following list: %w", err)
	}
	if res.Error != "" {
		b.log.Warn().Str("handle", h).Str("reason", res.Error).Msg("Following list unavailable")
		return nil, false, nil
	}
	return filterHandles(res.Handles), true, nil
}

func filterHandles(raw []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(raw))
	for _, h := range raw {
		h = strings.ToLower(strings.TrimSpace(h))
		if !validHandle.MatchString(h) || reservedPaths[h] || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// Login opens a visible browser on the persistent profile at the login page
// and keeps it open until done returns. The session stays in the profile.
func Login(ctx context.Context, cfg config.BrowserConfig, done func() error) error {
	alloc, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg, false)...)
	defer cancelAlloc()
	tab, cancelTab := chromedp.NewContext(alloc)
	defer cancelTab()

	if err := chromedp.Run(tab, chromedp.Navigate(baseURL+"/accounts/login/")); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	return done()
}
