// Package expiry closes invites nobody answered and plus-one windows nobody used.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"party-doorman/internal/config"
	"party-doorman/internal/models"
	"party-doorman/internal/outbox"
	"party-doorman/internal/phone"
	"party-doorman/internal/storage"
)

const (
	msgInviteWarning  = "Hey, your invite expires in 15 minutes. You in?"
	msgInviteExpired  = "Your invite expired. Maybe next time."
	msgPlusOneWarning = "You've got 15 minutes left to use your invites."
	msgPlusOneRevoked = "Time's up on your invites. They've been revoked."
)

func refundText(invitee string) string {
	return fmt.Sprintf("Your invite to %s expired, so you have an invite back.", invitee)
}

// Report counts what one sweep did.
type Report struct {
	InviteWarnings  int
	Expired         int
	Refunds         int
	PlusOneWarnings int
	Revoked         int
}

func (r Report) empty() bool {
	return r == Report{}
}

// Sweeper applies the invite and plus-one windows to the active event.
type Sweeper struct {
	store  *storage.Store
	out    *outbox.Outbox
	cfg    config.ExpiryConfig
	region string
	log    zerolog.Logger
}

// New creates a new sweeper
func New(store *storage.Store, out *outbox.Outbox, cfg config.ExpiryConfig, region string, log zerolog.Logger) *Sweeper {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Sweeper{
		store:  store,
		out:    out,
		cfg:    cfg,
		region: region,
		log:    log.With().Str("component", "Expiry").Logger(),
	}
}

// Run sweeps once immediately and then every SweepInterval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.cfg.SweepInterval).Msg("Expiry sweeper started")
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		s.Sweep(ctx, s.store.Now())
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs both checks as of now. A failure is logged and skips only the
// guest or check it belongs to. Running it twice back to back changes nothing
// the second time.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) Report {
	var r Report
	ev, err := s.store.ActiveEvent(ctx)
	if errors.Is(err, storage.ErrNoActiveEvent) {
		return r
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load active event")
		return r
	}

	if err := s.checkInvites(ctx, ev, now, &r); err != nil {
		s.log.Error().Err(err).Msg("Invite expiry check failed")
	}
	if err := s.checkPlusOnes(ctx, ev, now, &r); err != nil {
		s.log.Error().Err(err).Msg("Plus-one expiry check failed")
	}
	if !r.empty() {
		s.log.Info().Interface("report", r).Msg("Expiry sweep")
	}
	return r
}

// covered reports whether the policy applies to something anchored at t.
func (s *Sweeper) covered(t time.Time) bool {
	return s.cfg.PolicySince.IsZero() || !t.Before(s.cfg.PolicySince)
}

func (s *Sweeper) checkInvites(ctx context.Context, ev *models.Event, now time.Time, r *Report) error {
	pending, err := s.store.ListPendingInvites(ctx, ev.ID)
	if err != nil {
		return err
	}
	for _, gs := range pending {
		if !s.covered(gs.InvitedAt) {
			continue
		}
		elapsed := now.Sub(gs.InvitedAt)
		switch {
		case elapsed >= s.cfg.InviteExpireAfter:
			if err := s.expire(ctx, ev, gs.ID, r); err != nil {
				s.log.Error().Err(err).Int64("guest_id", gs.ID).Msg("Failed to expire invite")
			}
		case elapsed >= s.cfg.InviteWarningAfter && !gs.Context.Bool(models.CtxInviteWarningSent):
			marked, err := s.store.MarkContextFlag(ctx, ev.ID, gs.Phone, models.CtxInviteWarningSent)
			if err != nil {
				s.log.Error().Err(err).Int64("guest_id", gs.ID).Msg("Failed to mark invite warning")
				continue
			}
			if marked {
				s.out.Send(ctx, ev.ID, gs.Phone, msgInviteWarning)
				r.InviteWarnings++
			}
		}
	}
	return nil
}

func (s *Sweeper) expire(ctx context.Context, ev *models.Event, guestID int64, r *Report) error {
	res, err := s.store.ExpireInvite(ctx, guestID)
	if errors.Is(err, storage.ErrNotPending) {
		// Answered between the scan and now.
		return nil
	}
	if err != nil {
		return err
	}
	r.Expired++
	s.log.Info().Int64("guest_id", guestID).Msg("Invite expired")
	s.out.Send(ctx, ev.ID, res.Guest.Phone, msgInviteExpired)

	if res.Inviter != nil {
		r.Refunds++
		invitee := res.Guest.DisplayName(phone.Display(res.Guest.Phone, s.region))
		s.out.Send(ctx, ev.ID, res.Inviter.Phone, refundText(invitee))
	}
	return nil
}

func (s *Sweeper) checkPlusOnes(ctx context.Context, ev *models.Event, now time.Time, r *Report) error {
	holders, err := s.store.ListQuotaHolders(ctx, ev.ID)
	if err != nil {
		return err
	}
	for _, gs := range holders {
		anchor := *gs.QuotaWindowAt
		if !s.covered(anchor) {
			continue
		}
		elapsed := now.Sub(anchor)
		switch {
		case elapsed >= s.cfg.PlusOneExpireAfter:
			res, err := s.store.RevokeQuota(ctx, gs.ID)
			if err != nil {
				s.log.Error().Err(err).Int64("guest_id", gs.ID).Msg("Failed to revoke plus-one invites")
				continue
			}
			if !res.Revoked {
				continue
			}
			r.Revoked++
			s.log.Info().Int64("guest_id", gs.ID).Bool("notified", res.Notify).Msg("Plus-one invites revoked")
			if res.Notify {
				s.out.Send(ctx, ev.ID, gs.Phone, msgPlusOneRevoked)
			}
		case elapsed >= s.cfg.PlusOneWarningAfter && !gs.Context.Bool(models.CtxPlusOneWarningSent) && !gs.State.Onboarding():
			marked, err := s.store.MarkContextFlag(ctx, ev.ID, gs.Phone, models.CtxPlusOneWarningSent)
			if err != nil {
				s.log.Error().Err(err).Int64("guest_id", gs.ID).Msg("Failed to mark plus-one warning")
				continue
			}
			if marked {
				s.out.Send(ctx, ev.ID, gs.Phone, msgPlusOneWarning)
				r.PlusOneWarnings++
			}
		}
	}
	return nil
}
