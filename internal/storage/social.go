package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"party-doorman/internal/models"
)

// ScrapePendingMessage marks a follow row whose following list could not be read yet.
const ScrapePendingMessage = "scrape pending"

func ensureFollowPending(ctx context.Context, q querier, eventID, guestID int64, handle string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO follow_status (event_id, guest_id, handle, status, queued_at)
		 VALUES (?, ?, ?, 'pending', ?)
		 ON CONFLICT (event_id, guest_id) DO UPDATE SET
		   handle = excluded.handle,
		   status = 'pending',
		   queued_at = excluded.queued_at,
		   followed_at = NULL,
		   scraped_at = NULL,
		   following_count = 0,
		   error_message = ''`,
		eventID, guestID, strings.ToLower(handle), unix(now))
	if err != nil {
		return fmt.Errorf("failed to queue follow: %w", err)
	}
	return nil
}

// GetFollowStatus returns the follow row for a guest, or ErrNotFound.
func (s *Store) GetFollowStatus(ctx context.Context, eventID, guestID int64) (*models.FollowStatus, error) {
	var (
		fs                  models.FollowStatus
		followedAt, scraped sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT event_id, guest_id, handle, status, followed_at, scraped_at, following_count, error_message
		 FROM follow_status WHERE event_id = ? AND guest_id = ?`, eventID, guestID).
		Scan(&fs.EventID, &fs.GuestID, &fs.Handle, &fs.Status, &followedAt, &scraped, &fs.FollowingCount, &fs.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan follow status: %w", err)
	}
	fs.FollowedAt = nullTime(followedAt)
	fs.ScrapedAt = nullTime(scraped)
	return &fs, nil
}

// RecordFollowResult stores the outcome of a follow attempt.
func (s *Store) RecordFollowResult(ctx context.Context, eventID, guestID int64, result models.FollowResult, errMsg string) error {
	now := unix(s.now())
	var followedAt sql.NullInt64
	if result == models.FollowFollowed || result == models.FollowRequested {
		followedAt = sql.NullInt64{Int64: now, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE follow_status SET status = ?, followed_at = ?, queued_at = ?, error_message = ?
		 WHERE event_id = ? AND guest_id = ?`,
		result, followedAt, now, errMsg, eventID, guestID)
	if err != nil {
		return fmt.Errorf("failed to record follow result: %w", err)
	}
	return nil
}

// MarkScraped records a successful scrape.
func (s *Store) MarkScraped(ctx context.Context, eventID, guestID int64, count int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE follow_status SET scraped_at = ?, following_count = ?, error_message = ''
		 WHERE event_id = ? AND guest_id = ?`, unix(s.now()), count, eventID, guestID)
	if err != nil {
		return fmt.Errorf("failed to mark scraped: %w", err)
	}
	return nil
}

// MarkScrapePending records an unavailable scrape. scraped_at stays NULL so a
// later rescan picks the row up; queued_at restarts the cool-down.
func (s *Store) MarkScrapePending(ctx context.Context, eventID, guestID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE follow_status SET error_message = ?, queued_at = ?
		 WHERE event_id = ? AND guest_id = ? AND scraped_at IS NULL`,
		ScrapePendingMessage, unix(s.now()), eventID, guestID)
	if err != nil {
		return fmt.Errorf("failed to mark scrape pending: %w", err)
	}
	return nil
}

// StoreFollowing records every handle the guest follows and returns how many were new.
func (s *Store) StoreFollowing(ctx context.Context, eventID, guestID int64, guestHandle string, handles []string) (int, error) {
	var added int
	err := s.inTx(ctx, func(tx *Tx) error {
		stmt, err := tx.tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO following_edges (event_id, guest_id, guest_handle, followed_handle, scraped_at)
			 VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare edge insert: %w", err)
		}
		defer stmt.Close()

		gh := strings.ToLower(guestHandle)
		for _, h := range handles {
			h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
			if h == "" {
				continue
			}
			res, err := stmt.ExecContext(ctx, eventID, guestID, gh, h, unix(tx.now))
			if err != nil {
				return fmt.Errorf("failed to insert edge: %w", err)
			}
			n, err := rowsAffected(res)
			if err != nil {
				return err
			}
			added += int(n)
		}
		return nil
	})
	return added, err
}

// FindFollowersOf returns confirmed guests, other than exclude, whose stored
// following list contains handle.
func (s *Store) FindFollowersOf(ctx context.Context, eventID int64, handle string, exclude int64) ([]models.Follower, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.phone, fe.guest_handle
		 FROM following_edges fe
		 JOIN guests g ON g.id = fe.guest_id AND g.event_id = fe.event_id
		 WHERE fe.event_id = ? AND fe.followed_handle = ? AND g.status = 'confirmed' AND g.id != ?
		 ORDER BY g.id`, eventID, strings.ToLower(handle), exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to query followers: %w", err)
	}
	defer rows.Close()

	var out []models.Follower
	for rows.Next() {
		var f models.Follower
		if err := rows.Scan(&f.GuestID, &f.Name, &f.Phone, &f.GuestHandle); err != nil {
			return nil, fmt.Errorf("failed to scan follower: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecordNotification claims the (notified, about) pair. It reports false when
// the pair was already recorded.
func (s *Store) RecordNotification(ctx context.Context, eventID, notified, about int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications_sent (event_id, notified_guest_id, about_guest_id, sent_at)
		 VALUES (?, ?, ?, ?)`, eventID, notified, about, unix(s.now()))
	if err != nil {
		return false, fmt.Errorf("failed to record notification: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func queryTargets(ctx context.Context, q querier, query string, args ...any) ([]models.ScrapeTarget, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query follow rows: %w", err)
	}
	defer rows.Close()

	var out []models.ScrapeTarget
	for rows.Next() {
		var t models.ScrapeTarget
		if err := rows.Scan(&t.EventID, &t.GuestID, &t.Handle); err != nil {
			return nil, fmt.Errorf("failed to scan follow row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PendingRescans returns requested-or-followed rows with no scrape yet whose
// last attempt is older than cooldown.
func (s *Store) PendingRescans(ctx context.Context, cooldown time.Duration) ([]models.ScrapeTarget, error) {
	cutoff := unix(s.now().Add(-cooldown))
	return queryTargets(ctx, s.db,
		`SELECT event_id, guest_id, handle FROM follow_status
		 WHERE status IN ('requested', 'followed') AND scraped_at IS NULL
		   AND followed_at < ? AND queued_at < ?
		 ORDER BY followed_at`, cutoff, cutoff)
}

// PendingFollows returns rows whose follow was never attempted. A zero
// queuedBefore returns all of them.
func (s *Store) PendingFollows(ctx context.Context, queuedBefore time.Time) ([]models.ScrapeTarget, error) {
	if queuedBefore.IsZero() {
		return queryTargets(ctx, s.db,
			`SELECT event_id, guest_id, handle FROM follow_status WHERE status = 'pending' ORDER BY queued_at`)
	}
	return queryTargets(ctx, s.db,
		`SELECT event_id, guest_id, handle FROM follow_status
		 WHERE status = 'pending' AND queued_at < ? ORDER BY queued_at`, unix(queuedBefore))
}

// SocialGraph returns the edges between guests of the event.
func (s *Store) SocialGraph(ctx context.Context, eventID int64) ([]models.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fe.guest_handle, g.name, fe.followed_handle, g2.name
		 FROM following_edges fe
		 JOIN guests g ON g.id = fe.guest_id
		 JOIN guests g2 ON g2.event_id = fe.event_id AND g2.handle = fe.followed_handle AND g2.handle != ''
		 WHERE fe.event_id = ?
		 ORDER BY fe.guest_handle, fe.followed_handle`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query social graph: %w", err)
	}
	defer rows.Close()

	var out []models.Connection
	for rows.Next() {
		var c models.Connection
		if err := rows.Scan(&c.GuestHandle, &c.FollowerName, &c.FollowedHandle, &c.FollowedName); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SocialStats summarises social-graph progress.
func (s *Store) SocialStats(ctx context.Context, eventID int64) (*models.SocialStats, error) {
	var st models.SocialStats
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM guests WHERE event_id = ?1 AND handle != ''),
		   (SELECT COUNT(*) FROM follow_status WHERE event_id = ?1 AND scraped_at IS NOT NULL),
		   (SELECT COUNT(*) FROM follow_status WHERE event_id = ?1 AND scraped_at IS NULL
		      AND status NOT IN ('not_found', 'error')),
		   (SELECT COUNT(*) FROM following_edges fe
		      JOIN guests g2 ON g2.event_id = fe.event_id AND g2.handle = fe.followed_handle AND g2.handle != ''
		      WHERE fe.event_id = ?1)`, eventID).
		Scan(&st.WithHandle, &st.Scraped, &st.Pending, &st.Connections)
	if err != nil {
		return nil, fmt.Errorf("failed to compute social stats: %w", err)
	}
	return &st, nil
}
