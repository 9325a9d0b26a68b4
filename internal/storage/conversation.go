package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"party-doorman/internal/models"
)

func getState(ctx context.Context, q querier, eventID int64, phone string) (*models.ConversationState, error) {
	var (
		st      models.ConversationState
		raw     string
		lastMsg int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT event_id, phone, state, context, version, last_message_at
		 FROM conversation_state WHERE event_id = ? AND phone = ?`, eventID, phone).
		Scan(&st.EventID, &st.Phone, &st.State, &raw, &st.Version, &lastMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation state: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &st.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	if st.Context == nil {
		st.Context = models.Context{}
	}
	st.LastMessageAt = fromUnix(lastMsg)
	return &st, nil
}

// GetState returns the conversation state for (event, phone). A missing row
// is reported as an idle state with version 0.
func (s *Store) GetState(ctx context.Context, eventID int64, phone string) (*models.ConversationState, error) {
	st, err := getState(ctx, s.db, eventID, phone)
	if errors.Is(err, ErrNotFound) {
		return &models.ConversationState{
			EventID: eventID,
			Phone:   phone,
			State:   models.StateIdle,
			Context: models.Context{},
		}, nil
	}
	return st, err
}

func writeState(ctx context.Context, q querier, eventID int64, phone string, state models.State, c models.Context, now time.Time) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO conversation_state (event_id, phone, state, context, version, last_message_at)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT (event_id, phone) DO UPDATE SET
		   state = excluded.state,
		   context = excluded.context,
		   version = conversation_state.version + 1,
		   last_message_at = excluded.last_message_at`,
		eventID, phone, state, string(raw), unix(now))
	if err != nil {
		return fmt.Errorf("failed to write conversation state: %w", err)
	}
	return nil
}

// resetState replaces state and context wholesale, dropping sticky keys.
func resetState(ctx context.Context, q querier, eventID int64, phone string, state models.State, c models.Context, now time.Time) error {
	if c == nil {
		c = models.Context{}
	}
	return writeState(ctx, q, eventID, phone, state, c, now)
}

// ResetState unconditionally replaces the conversation state and context.
func (s *Store) ResetState(ctx context.Context, eventID int64, phone string, state models.State, c models.Context) error {
	return s.inTx(ctx, func(tx *Tx) error {
		return resetState(ctx, tx.tx, eventID, phone, state, c, tx.now)
	})
}

// ResetState replaces the conversation state inside the transaction.
func (t *Tx) ResetState(ctx context.Context, eventID int64, phone string, state models.State, c models.Context) error {
	return resetState(ctx, t.tx, eventID, phone, state, c, t.now)
}

// Transition applies mutate and moves (event, phone) to next, but only if the
// stored version still equals expect. Otherwise nothing is written and
// ErrStateConflict is returned. Sticky context keys are carried over.
func (s *Store) Transition(ctx context.Context, eventID int64, phone string, expect int64, next models.State, c models.Context, mutate func(*Tx) error) error {
	return s.inTx(ctx, func(tx *Tx) error {
		cur, err := getState(ctx, tx.tx, eventID, phone)
		var version int64
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			version = cur.Version
		}
		if version != expect {
			return ErrStateConflict
		}

		if mutate != nil {
			if err := mutate(tx); err != nil {
				return err
			}
		}

		merged := models.Context{}
		if cur != nil {
			for _, k := range models.StickyKeys {
				if v, ok := cur.Context[k]; ok {
					merged[k] = v
				}
			}
		}
		for k, v := range c {
			merged[k] = v
		}
		return writeState(ctx, tx.tx, eventID, phone, next, merged, tx.now)
	})
}

// MarkContextFlag sets key to true in the conversation context. It reports
// false without writing when the flag was already set, so callers can use it
// to do something at most once.
func (s *Store) MarkContextFlag(ctx context.Context, eventID int64, phone, key string) (bool, error) {
	var marked bool
	err := s.inTx(ctx, func(tx *Tx) error {
		cur, err := getState(ctx, tx.tx, eventID, phone)
		if err != nil {
			return err
		}
		if cur.Context.Bool(key) {
			return nil
		}
		cur.Context[key] = true
		marked = true
		return writeState(ctx, tx.tx, eventID, phone, cur.State, cur.Context, tx.now)
	})
	return marked, err
}

func clearContextFlag(ctx context.Context, q querier, eventID int64, phone, key string, now time.Time) error {
	cur, err := getState(ctx, q, eventID, phone)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, ok := cur.Context[key]; !ok {
		return nil
	}
	delete(cur.Context, key)
	return writeState(ctx, q, eventID, phone, cur.State, cur.Context, now)
}
