package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"party-doorman/internal/models"
)

const guestColumns = `id, event_id, phone, name, handle, status, invited_by_phone, quota_used, invited_at, responded_at, quota_window_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGuest(sc scanner) (*models.Guest, error) {
	var (
		g                     models.Guest
		invitedBy             sql.NullString
		invitedAt             int64
		respondedAt, windowAt sql.NullInt64
	)
	err := sc.Scan(&g.ID, &g.EventID, &g.Phone, &g.Name, &g.Handle, &g.Status,
		&invitedBy, &g.QuotaUsed, &invitedAt, &respondedAt, &windowAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan guest: %w", err)
	}
	g.InvitedByPhone = invitedBy.String
	g.InvitedAt = fromUnix(invitedAt)
	g.RespondedAt = nullTime(respondedAt)
	g.QuotaWindowAt = nullTime(windowAt)
	return &g, nil
}

func getGuest(ctx context.Context, q querier, id int64) (*models.Guest, error) {
	return scanGuest(q.QueryRowContext(ctx, `SELECT `+guestColumns+` FROM guests WHERE id = ?`, id))
}

func guestByPhone(ctx context.Context, q querier, eventID int64, phone string) (*models.Guest, error) {
	return scanGuest(q.QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE event_id = ? AND phone = ?`, eventID, phone))
}

func queryGuests(ctx context.Context, q querier, query string, args ...any) ([]models.Guest, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query guests: %w", err)
	}
	defer rows.Close()

	var guests []models.Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, err
		}
		guests = append(guests, *g)
	}
	return guests, rows.Err()
}

// GetGuest retrieves a guest by id
func (s *Store) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	return getGuest(ctx, s.db, id)
}

// GuestByPhone retrieves a guest by event and E.164 phone
func (s *Store) GuestByPhone(ctx context.Context, eventID int64, phone string) (*models.Guest, error) {
	return guestByPhone(ctx, s.db, eventID, phone)
}

// ListGuests returns the event's guests in invite order, optionally filtered by status.
func (s *Store) ListGuests(ctx context.Context, eventID int64, status models.GuestStatus) ([]models.Guest, error) {
	if status == "" {
		return queryGuests(ctx, s.db,
			`SELECT `+guestColumns+` FROM guests WHERE event_id = ? ORDER BY invited_at, id`, eventID)
	}
	return queryGuests(ctx, s.db,
		`SELECT `+guestColumns+` FROM guests WHERE event_id = ? AND status = ? ORDER BY invited_at, id`, eventID, status)
}

// SearchGuests matches the query against name, phone and handle.
func (s *Store) SearchGuests(ctx context.Context, eventID int64, query string) ([]models.Guest, error) {
	like := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	return queryGuests(ctx, s.db,
		`SELECT `+guestColumns+` FROM guests
		 WHERE event_id = ? AND (LOWER(name) LIKE ? OR phone LIKE ? OR handle LIKE ?)
		 ORDER BY invited_at, id`, eventID, like, like, like)
}

// InviteGuest puts phone on the event's list as a direct host invite. An
// expired or declined guest is reset to pending; reinvited reports that case.
// Any other existing guest yields ErrAlreadyInvited.
func (s *Store) InviteGuest(ctx context.Context, eventID int64, phone string) (guest *models.Guest, reinvited bool, err error) {
	err = s.inTx(ctx, func(tx *Tx) error {
		now := unix(tx.now)
		existing, err := guestByPhone(ctx, tx.tx, eventID, phone)
		switch {
		case errors.Is(err, ErrNotFound):
			res, err := tx.tx.ExecContext(ctx,
				`INSERT INTO guests (event_id, phone, status, invited_at) VALUES (?, ?, 'pending', ?)`,
				eventID, phone, now)
			if err != nil {
				return fmt.Errorf("failed to insert guest: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			guest, err = getGuest(ctx, tx.tx, id)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		case existing.Status == models.GuestExpired || existing.Status == models.GuestDeclined:
			if _, err := tx.tx.ExecContext(ctx,
				`UPDATE guests SET status = 'pending', invited_by_phone = NULL, invited_at = ?,
				 responded_at = NULL, quota_window_at = NULL, quota_used = 0 WHERE id = ?`,
				now, existing.ID); err != nil {
				return fmt.Errorf("failed to reactivate guest: %w", err)
			}
			reinvited = true
			guest, err = getGuest(ctx, tx.tx, existing.ID)
			if err != nil {
				return err
			}
		default:
			guest = existing
			return ErrAlreadyInvited
		}
		return resetState(ctx, tx.tx, eventID, phone, models.StateAwaitingRSVP, models.Context{}, tx.now)
	})
	if err != nil {
		return guest, false, err
	}
	return guest, reinvited, nil
}

// EventStats counts guests per status.
func (s *Store) EventStats(ctx context.Context, eventID int64) (*models.EventStats, error) {
	var st models.EventStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(status = 'confirmed'), 0),
		        COALESCE(SUM(status = 'pending'), 0),
		        COALESCE(SUM(status = 'declined'), 0),
		        COALESCE(SUM(status = 'expired'), 0),
		        COALESCE(SUM(invited_by_phone IS NOT NULL AND status != 'expired'), 0)
		 FROM guests WHERE event_id = ?`, eventID).
		Scan(&st.Total, &st.Confirmed, &st.Pending, &st.Declined, &st.Expired, &st.PlusOnesUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return &st, nil
}

// Guest re-reads a guest inside the transaction.
func (t *Tx) Guest(ctx context.Context, id int64) (*models.Guest, error) {
	return getGuest(ctx, t.tx, id)
}

// ConfirmGuest moves a pending guest to confirmed and opens the plus-one window.
func (t *Tx) ConfirmGuest(ctx context.Context, id int64) error {
	now := unix(t.now)
	return t.respond(ctx,
		`UPDATE guests SET status = 'confirmed', responded_at = ?, quota_window_at = ?
		 WHERE id = ? AND status = 'pending'`, now, now, id)
}

// DeclineGuest moves a pending guest to declined.
func (t *Tx) DeclineGuest(ctx context.Context, id int64) error {
	return t.respond(ctx,
		`UPDATE guests SET status = 'declined', responded_at = ? WHERE id = ? AND status = 'pending'`,
		unix(t.now), id)
}

func (t *Tx) respond(ctx context.Context, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update guest status: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// SetGuestName stores the guest's name.
func (t *Tx) SetGuestName(ctx context.Context, id int64, name string) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE guests SET name = ? WHERE id = ?`, name, id); err != nil {
		return fmt.Errorf("failed to set name: %w", err)
	}
	return nil
}

// SetGuestHandle stores the guest's handle and queues a pending follow row for it.
func (t *Tx) SetGuestHandle(ctx context.Context, id int64, handle string) error {
	g, err := getGuest(ctx, t.tx, id)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE guests SET handle = ? WHERE id = ?`, handle, id); err != nil {
		return fmt.Errorf("failed to set handle: %w", err)
	}
	return ensureFollowPending(ctx, t.tx, g.EventID, id, handle, t.now)
}
