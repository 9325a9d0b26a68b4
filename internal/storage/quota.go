package storage

import (
	"context"
	"errors"
	"fmt"

	"party-doorman/internal/models"
)

// SpendQuota atomically consumes one of the inviter's invite slots and puts
// inviteePhone on the list as their plus-one. Either both writes happen or
// neither does.
//
// Errors: ErrNotFound (no such inviter), ErrNotConfirmed, ErrQuotaExhausted,
// ErrAlreadyInvited (invitee is on the list and not expired).
func (s *Store) SpendQuota(ctx context.Context, inviterID int64, inviteePhone string) (*models.Guest, error) {
	var invitee *models.Guest
	err := s.inTx(ctx, func(tx *Tx) error {
		var err error
		invitee, err = tx.SpendQuota(ctx, inviterID, inviteePhone)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invitee, nil
}

// SpendQuota is the transactional form of Store.SpendQuota, for callers that
// need the spend to commit together with a conversation transition.
func (t *Tx) SpendQuota(ctx context.Context, inviterID int64, inviteePhone string) (*models.Guest, error) {
	inviter, err := getGuest(ctx, t.tx, inviterID)
	if err != nil {
		return nil, err
	}
	if err := quotaError(inviter); err != nil {
		return nil, err
	}

	existing, err := guestByPhone(ctx, t.tx, inviter.EventID, inviteePhone)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status != models.GuestExpired {
		return nil, ErrAlreadyInvited
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE guests SET quota_used = quota_used + 1
		 WHERE id = ? AND status = 'confirmed' AND quota_used < ?`, inviterID, models.QuotaCap)
	if err != nil {
		return nil, fmt.Errorf("failed to spend quota: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		fresh, err := getGuest(ctx, t.tx, inviterID)
		if err != nil {
			return nil, err
		}
		if err := quotaError(fresh); err != nil {
			return nil, err
		}
		return nil, ErrQuotaExhausted
	}

	now := unix(t.now)
	var inviteeID int64
	if existing != nil {
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE guests SET status = 'pending', invited_by_phone = ?, invited_at = ?,
			 responded_at = NULL, quota_window_at = NULL, quota_used = 0 WHERE id = ?`,
			inviter.Phone, now, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to reactivate invitee: %w", err)
		}
		inviteeID = existing.ID
	} else {
		res, err := t.tx.ExecContext(ctx,
			`INSERT INTO guests (event_id, phone, status, invited_by_phone, invited_at)
			 VALUES (?, ?, 'pending', ?, ?)`, inviter.EventID, inviteePhone, inviter.Phone, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert invitee: %w", err)
		}
		if inviteeID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}

	if err := resetState(ctx, t.tx, inviter.EventID, inviteePhone, models.StateAwaitingRSVP, models.Context{}, t.now); err != nil {
		return nil, err
	}
	return getGuest(ctx, t.tx, inviteeID)
}

func quotaError(g *models.Guest) error {
	if g.Status != models.GuestConfirmed {
		return ErrNotConfirmed
	}
	if g.QuotaUsed >= models.QuotaCap {
		return ErrQuotaExhausted
	}
	return nil
}
