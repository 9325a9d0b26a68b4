package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"party-doorman/internal/models"
)

// GuestState pairs a guest with their conversation state.
type GuestState struct {
	models.Guest
	State   models.State
	Context models.Context
}

func queryGuestStates(ctx context.Context, q querier, query string, args ...any) ([]GuestState, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query guests: %w", err)
	}
	defer rows.Close()

	var out []GuestState
	for rows.Next() {
		var (
			gs                    GuestState
			invitedBy             sql.NullString
			invitedAt             int64
			respondedAt, windowAt sql.NullInt64
			raw                   string
		)
		if err := rows.Scan(&gs.ID, &gs.EventID, &gs.Phone, &gs.Name, &gs.Handle, &gs.Status,
			&invitedBy, &gs.QuotaUsed, &invitedAt, &respondedAt, &windowAt, &gs.State, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan guest state: %w", err)
		}
		gs.InvitedByPhone = invitedBy.String
		gs.InvitedAt = fromUnix(invitedAt)
		gs.RespondedAt = nullTime(respondedAt)
		gs.QuotaWindowAt = nullTime(windowAt)
		if err := json.Unmarshal([]byte(raw), &gs.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
		if gs.Context == nil {
			gs.Context = models.Context{}
		}
		out = append(out, gs)
	}
	return out, rows.Err()
}

const guestStateSelect = `SELECT g.id, g.event_id, g.phone, g.name, g.handle, g.status, g.invited_by_phone,
	g.quota_used, g.invited_at, g.responded_at, g.quota_window_at,
	COALESCE(cs.state, 'idle'), COALESCE(cs.context, '{}')
	FROM guests g
	LEFT JOIN conversation_state cs ON cs.event_id = g.event_id AND cs.phone = g.phone`

// ListPendingInvites returns pending guests still waiting to answer their invite.
func (s *Store) ListPendingInvites(ctx context.Context, eventID int64) ([]GuestState, error) {
	return queryGuestStates(ctx, s.db,
		guestStateSelect+` WHERE g.event_id = ? AND g.status = 'pending' AND cs.state = ? ORDER BY g.invited_at`,
		eventID, models.StateAwaitingRSVP)
}

// ListQuotaHolders returns confirmed guests with unused invite slots and an open window.
func (s *Store) ListQuotaHolders(ctx context.Context, eventID int64) ([]GuestState, error) {
	return queryGuestStates(ctx, s.db,
		guestStateSelect+` WHERE g.event_id = ? AND g.status = 'confirmed' AND g.quota_used < ?
		  AND g.responded_at IS NOT NULL AND g.quota_window_at IS NOT NULL ORDER BY g.quota_window_at`,
		eventID, models.QuotaCap)
}

// ExpireResult describes an expired invite.
type ExpireResult struct {
	Guest *models.Guest
	// Inviter is the refunded inviter, nil for a direct host invite.
	Inviter *models.Guest
}

// ExpireInvite expires a guest that is still pending, resets their
// conversation to idle and refunds one slot to their inviter. It returns
// ErrNotPending when the guest answered in the meantime.
func (s *Store) ExpireInvite(ctx context.Context, guestID int64) (*ExpireResult, error) {
	var result ExpireResult
	err := s.inTx(ctx, func(tx *Tx) error {
		g, err := getGuest(ctx, tx.tx, guestID)
		if err != nil {
			return err
		}
		if g.Status != models.GuestPending {
			return ErrNotPending
		}
		if _, err := tx.tx.ExecContext(ctx,
			`UPDATE guests SET status = 'expired' WHERE id = ? AND status = 'pending'`, guestID); err != nil {
			return fmt.Errorf("failed to expire guest: %w", err)
		}
		if err := resetState(ctx, tx.tx, g.EventID, g.Phone, models.StateIdle,
			models.Context{models.CtxExpired: true}, tx.now); err != nil {
			return err
		}
		g.Status = models.GuestExpired
		result.Guest = g

		if g.InvitedByPhone == "" {
			return nil
		}
		res, err := tx.tx.ExecContext(ctx,
			`UPDATE guests SET quota_used = quota_used - 1, quota_window_at = ?
			 WHERE event_id = ? AND phone = ? AND quota_used > 0`,
			unix(tx.now), g.EventID, g.InvitedByPhone)
		if err != nil {
			return fmt.Errorf("failed to refund inviter: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil || n == 0 {
			return err
		}
		if err := clearContextFlag(ctx, tx.tx, g.EventID, g.InvitedByPhone, models.CtxPlusOneWarningSent, tx.now); err != nil {
			return err
		}
		inviter, err := guestByPhone(ctx, tx.tx, g.EventID, g.InvitedByPhone)
		if err != nil {
			return err
		}
		result.Inviter = inviter
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RevokeResult describes a plus-one window closing.
type RevokeResult struct {
	Revoked bool
	// Notify is false when the guest never finished onboarding; their
	// conversation is left untouched.
	Notify bool
	Guest  *models.Guest
}

// RevokeQuota forces a confirmed guest's unused slots to spent. Guests that
// finished onboarding are also reset to idle.
func (s *Store) RevokeQuota(ctx context.Context, guestID int64) (*RevokeResult, error) {
	var result RevokeResult
	err := s.inTx(ctx, func(tx *Tx) error {
		g, err := getGuest(ctx, tx.tx, guestID)
		if err != nil {
			return err
		}
		res, err := tx.tx.ExecContext(ctx,
			`UPDATE guests SET quota_used = ? WHERE id = ? AND status = 'confirmed' AND quota_used < ?`,
			models.QuotaCap, guestID, models.QuotaCap)
		if err != nil {
			return fmt.Errorf("failed to revoke quota: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil || n == 0 {
			return err
		}
		g.QuotaUsed = models.QuotaCap
		result.Revoked = true
		result.Guest = g

		st, err := getState(ctx, tx.tx, g.EventID, g.Phone)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if st != nil && st.State.Onboarding() {
			return nil
		}
		result.Notify = true
		return resetState(ctx, tx.tx, g.EventID, g.Phone, models.StateIdle,
			models.Context{models.CtxPlusOneExpired: true}, tx.now)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
