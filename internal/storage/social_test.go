package storage

import (
	"context"
	"testing"
	"time"

	"party-doorman/internal/models"
)

func TestStoreFollowingDedup(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)
	g := confirmedGuest(t, s, ev, "+15551110001")

	n, err := s.StoreFollowing(ctx, ev.ID, g.ID, "sam", []string{"alex", "@Alex", "jo", ""})
	if err != nil {
		t.Fatalf("StoreFollowing() error: %v", err)
	}
	if n != 2 {
		t.Errorf("added = %d, want 2", n)
	}
	n, _ = s.StoreFollowing(ctx, ev.ID, g.ID, "sam", []string{"jo"})
	if n != 0 {
		t.Errorf("re-store added = %d, want 0", n)
	}
}

func TestFindFollowersOf(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)
	sam := confirmedGuest(t, s, ev, "+15551110001")
	alex := confirmedGuest(t, s, ev, "+15551110002")
	pending, _, _ := s.InviteGuest(ctx, ev.ID, "+15551110003")

	s.StoreFollowing(ctx, ev.ID, sam.ID, "sam", []string{"alex"})
	s.StoreFollowing(ctx, ev.ID, alex.ID, "alex", []string{"alex"})
	s.StoreFollowing(ctx, ev.ID, pending.ID, "pat", []string{"alex"})

	followers, err := s.FindFollowersOf(ctx, ev.ID, "Alex", alex.ID)
	if err != nil {
		t.Fatalf("FindFollowersOf() error: %v", err)
	}
	if len(followers) != 1 || followers[0].GuestID != sam.ID {
		t.Errorf("FindFollowersOf() = %+v, want only sam", followers)
	}
}

func TestRecordNotificationOnce(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)

	first, err := s.RecordNotification(ctx, ev.ID, 1, 2)
	if err != nil || !first {
		t.Fatalf("RecordNotification() = %v, %v; want true", first, err)
	}
	again, err := s.RecordNotification(ctx, ev.ID, 1, 2)
	if err != nil || again {
		t.Fatalf("repeat RecordNotification() = %v, %v; want false", again, err)
	}
	reverse, _ := s.RecordNotification(ctx, ev.ID, 2, 1)
	if !reverse {
		t.Error("reverse pair should be recorded separately")
	}
}

func TestPendingRescansCooldown(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)
	g := confirmedGuest(t, s, ev, "+15551110001")

	err := s.inTx(ctx, func(tx *Tx) error { return tx.SetGuestHandle(ctx, g.ID, "Sam") })
	if err != nil {
		t.Fatalf("SetGuestHandle() error: %v", err)
	}
	pend, _ := s.PendingFollows(ctx, time.Time{})
	if len(pend) != 1 || pend[0].Handle != "sam" {
		t.Fatalf("PendingFollows() = %+v", pend)
	}

	if err := s.RecordFollowResult(ctx, ev.ID, g.ID, models.FollowRequested, ""); err != nil {
		t.Fatalf("RecordFollowResult() error: %v", err)
	}
	if err := s.MarkScrapePending(ctx, ev.ID, g.ID); err != nil {
		t.Fatalf("MarkScrapePending() error: %v", err)
	}

	clock.Advance(10 * time.Minute)
	if got, _ := s.PendingRescans(ctx, 30*time.Minute); len(got) != 0 {
		t.Errorf("rescans inside cool-down = %+v", got)
	}
	clock.Advance(25 * time.Minute)
	got, err := s.PendingRescans(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("PendingRescans() error: %v", err)
	}
	if len(got) != 1 || got[0].GuestID != g.ID {
		t.Errorf("PendingRescans() = %+v", got)
	}

	fs, _ := s.GetFollowStatus(ctx, ev.ID, g.ID)
	if fs.ScrapedAt != nil || fs.ErrorMessage != ScrapePendingMessage {
		t.Errorf("follow status = %+v", fs)
	}

	s.MarkScraped(ctx, ev.ID, g.ID, 12)
	clock.Advance(time.Hour)
	if got, _ := s.PendingRescans(ctx, 30*time.Minute); len(got) != 0 {
		t.Errorf("scraped row still pending rescan: %+v", got)
	}
}

func TestSocialGraphAndStats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ev := newTestEvent(t, s)
	sam := confirmedGuest(t, s, ev, "+15551110001")
	alex := confirmedGuest(t, s, ev, "+15551110002")
	s.inTx(ctx, func(tx *Tx) error {
		if err := tx.SetGuestHandle(ctx, sam.ID, "sam"); err != nil {
			return err
		}
		return tx.SetGuestHandle(ctx, alex.ID, "alex")
	})
	s.StoreFollowing(ctx, ev.ID, sam.ID, "sam", []string{"alex", "celebrity"})
	s.MarkScraped(ctx, ev.ID, sam.ID, 2)

	graph, err := s.SocialGraph(ctx, ev.ID)
	if err != nil {
		t.Fatalf("SocialGraph() error: %v", err)
	}
	if len(graph) != 1 || graph[0].GuestHandle != "sam" || graph[0].FollowedHandle != "alex" {
		t.Errorf("SocialGraph() = %+v", graph)
	}

	st, err := s.SocialStats(ctx, ev.ID)
	if err != nil {
		t.Fatalf("SocialStats() error: %v", err)
	}
	want := models.SocialStats{WithHandle: 2, Scraped: 1, Pending: 1, Connections: 1}
	if *st != want {
		t.Errorf("SocialStats() = %+v, want %+v", *st, want)
	}
}
