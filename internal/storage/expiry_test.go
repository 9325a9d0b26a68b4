package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"party-doorman/internal/models"
)

func TestExpireInviteRefundsOnce(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)
	inviter := confirmedGuest(t, s, ev, "+15551110001")
	invitee, err := s.SpendQuota(ctx, inviter.ID, "+15552220001")
	if err != nil {
		t.Fatalf("SpendQuota() error: %v", err)
	}
	if _, err := s.MarkContextFlag(ctx, ev.ID, inviter.Phone, models.CtxPlusOneWarningSent); err != nil {
		t.Fatalf("MarkContextFlag() error: %v", err)
	}

	clock.Advance(time.Hour)
	res, err := s.ExpireInvite(ctx, invitee.ID)
	if err != nil {
		t.Fatalf("ExpireInvite() error: %v", err)
	}
	if res.Inviter == nil || res.Inviter.QuotaUsed != 0 {
		t.Fatalf("refunded inviter = %+v, want quota_used 0", res.Inviter)
	}
	if !res.Inviter.QuotaWindowAt.Equal(clock.Now().Truncate(time.Second)) {
		t.Errorf("quota_window_at = %v, want %v", res.Inviter.QuotaWindowAt, clock.Now())
	}
	st, _ := s.GetState(ctx, ev.ID, inviter.Phone)
	if st.Context.Bool(models.CtxPlusOneWarningSent) {
		t.Error("refund should clear the inviter's plus-one warning flag")
	}

	if _, err := s.ExpireInvite(ctx, invitee.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second ExpireInvite() error = %v, want ErrNotPending", err)
	}
	g, _ := s.GetGuest(ctx, inviter.ID)
	if g.QuotaUsed != 0 {
		t.Errorf("quota_used = %d after second expiry, want 0", g.QuotaUsed)
	}

	ist, _ := s.GetState(ctx, ev.ID, invitee.Phone)
	if ist.State != models.StateIdle || !ist.Context.Bool(models.CtxExpired) {
		t.Errorf("expired invitee state = %+v", ist)
	}
}

func TestExpireInviteLosesToConfirm(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)
	g := confirmedGuest(t, s, ev, "+15551110001")

	if _, err := s.ExpireInvite(ctx, g.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("ExpireInvite() error = %v, want ErrNotPending", err)
	}
	g, _ = s.GetGuest(ctx, g.ID)
	if g.Status != models.GuestConfirmed {
		t.Errorf("status = %q, want confirmed", g.Status)
	}
}

func TestRevokeQuota(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)

	onboarding := confirmedGuest(t, s, ev, "+15551110001")
	res, err := s.RevokeQuota(ctx, onboarding.ID)
	if err != nil {
		t.Fatalf("RevokeQuota() error: %v", err)
	}
	if !res.Revoked || res.Notify {
		t.Errorf("onboarding revoke = %+v, want revoked silently", res)
	}
	st, _ := s.GetState(ctx, ev.ID, onboarding.Phone)
	if st.State != models.StateCollectingName {
		t.Errorf("onboarding state = %q, want unchanged collecting_name", st.State)
	}

	done := confirmedGuest(t, s, ev, "+15551110002")
	st, _ = s.GetState(ctx, ev.ID, done.Phone)
	if err := s.Transition(ctx, ev.ID, done.Phone, st.Version, models.StateOfferingPlusOne, nil, nil); err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	res, err = s.RevokeQuota(ctx, done.ID)
	if err != nil {
		t.Fatalf("RevokeQuota() error: %v", err)
	}
	if !res.Revoked || !res.Notify {
		t.Errorf("revoke = %+v, want revoked with notice", res)
	}
	st, _ = s.GetState(ctx, ev.ID, done.Phone)
	if st.State != models.StateIdle {
		t.Errorf("state = %q, want idle", st.State)
	}

	res, err = s.RevokeQuota(ctx, done.ID)
	if err != nil {
		t.Fatalf("second RevokeQuota() error: %v", err)
	}
	if res.Revoked {
		t.Error("second revoke should be a no-op")
	}
}

func TestListSweepCandidates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)

	if _, _, err := s.InviteGuest(ctx, ev.ID, "+15551110001"); err != nil {
		t.Fatalf("InviteGuest() error: %v", err)
	}
	holder := confirmedGuest(t, s, ev, "+15551110002")

	pending, err := s.ListPendingInvites(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ListPendingInvites() error: %v", err)
	}
	if len(pending) != 1 || pending[0].Phone != "+15551110001" || pending[0].State != models.StateAwaitingRSVP {
		t.Errorf("ListPendingInvites() = %+v", pending)
	}

	holders, err := s.ListQuotaHolders(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ListQuotaHolders() error: %v", err)
	}
	if len(holders) != 1 || holders[0].ID != holder.ID {
		t.Errorf("ListQuotaHolders() = %+v", holders)
	}
}
