package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"party-doorman/internal/models"
)

func TestSpendQuotaConcurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)
	inviter := confirmedGuest(t, s, ev, "+15551110001")

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
		other     []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.SpendQuota(ctx, inviter.ID, fmt.Sprintf("+1555222%04d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrQuotaExhausted):
				exhausted++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if succeeded != models.QuotaCap {
		t.Errorf("succeeded = %d, want %d", succeeded, models.QuotaCap)
	}
	if exhausted != attempts-models.QuotaCap {
		t.Errorf("exhausted = %d, want %d", exhausted, attempts-models.QuotaCap)
	}

	g, _ := s.GetGuest(ctx, inviter.ID)
	if g.QuotaUsed != models.QuotaCap {
		t.Errorf("quota_used = %d, want %d", g.QuotaUsed, models.QuotaCap)
	}
	invitees, _ := s.ListGuests(ctx, ev.ID, models.GuestPending)
	if len(invitees) != models.QuotaCap {
		t.Errorf("pending invitees = %d, want %d", len(invitees), models.QuotaCap)
	}
}

func TestSpendQuotaErrors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)
	pending, _, _ := s.InviteGuest(ctx, ev.ID, "+15551110009")
	inviter := confirmedGuest(t, s, ev, "+15551110001")

	tests := []struct {
		name      string
		inviterID int64
		phone     string
		want      error
	}{
		{"unknown inviter", 9999, "+15552220001", ErrNotFound},
		{"pending inviter", pending.ID, "+15552220001", ErrNotConfirmed},
		{"invitee already on list", inviter.ID, pending.Phone, ErrAlreadyInvited},
		{"self invite", inviter.ID, inviter.Phone, ErrAlreadyInvited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.SpendQuota(ctx, tt.inviterID, tt.phone); !errors.Is(err, tt.want) {
				t.Fatalf("SpendQuota() error = %v, want %v", err, tt.want)
			}
		})
	}

	g, _ := s.GetGuest(ctx, inviter.ID)
	if g.QuotaUsed != 0 {
		t.Errorf("failed spends changed quota_used to %d", g.QuotaUsed)
	}
}

func TestSpendQuotaReactivatesExpiredInvitee(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)
	inviter := confirmedGuest(t, s, ev, "+15551110001")

	invitee, err := s.SpendQuota(ctx, inviter.ID, "+15552220001")
	if err != nil {
		t.Fatalf("SpendQuota() error: %v", err)
	}
	if invitee.InvitedByPhone != inviter.Phone {
		t.Errorf("invited_by = %q, want %q", invitee.InvitedByPhone, inviter.Phone)
	}
	if _, err := s.ExpireInvite(ctx, invitee.ID); err != nil {
		t.Fatalf("ExpireInvite() error: %v", err)
	}
	g, _ := s.GetGuest(ctx, inviter.ID)
	if g.QuotaUsed != 0 {
		t.Fatalf("quota_used after refund = %d, want 0", g.QuotaUsed)
	}

	again, err := s.SpendQuota(ctx, inviter.ID, invitee.Phone)
	if err != nil {
		t.Fatalf("re-invite SpendQuota() error: %v", err)
	}
	if again.ID != invitee.ID || again.Status != models.GuestPending {
		t.Errorf("re-invite = %+v, want reactivated row %d", again, invitee.ID)
	}
	g, _ = s.GetGuest(ctx, inviter.ID)
	if g.QuotaUsed != 1 {
		t.Errorf("re-invite should consume a slot, quota_used = %d", g.QuotaUsed)
	}
	st, _ := s.GetState(ctx, ev.ID, invitee.Phone)
	if st.State != models.StateAwaitingRSVP {
		t.Errorf("invitee state = %q, want awaiting_rsvp", st.State)
	}
}

func TestQuotaGuard(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)
	g := confirmedGuest(t, s, ev, "+15551110001")

	if _, err := s.db.ExecContext(ctx, `UPDATE guests SET quota_used = 3 WHERE id = ?`, g.ID); err == nil {
		t.Fatal("schema accepted quota_used = 3")
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE guests SET quota_used = 2 WHERE id = ?`, g.ID); err != nil {
		t.Fatalf("schema rejected quota_used = 2: %v", err)
	}
}
