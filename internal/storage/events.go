package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"party-doorman/internal/models"
)

const eventColumns = `id, name, event_date, time_window, location_drop_time, rules, host_phone, status, created_at, updated_at`

// CreateEvent completes any active event and inserts ev as the new active one.
func (s *Store) CreateEvent(ctx context.Context, ev *models.Event) (*models.Event, error) {
	rules, err := json.Marshal(ev.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules: %w", err)
	}
	if ev.Rules == nil {
		rules = []byte("[]")
	}

	var id int64
	err = s.inTx(ctx, func(tx *Tx) error {
		now := unix(tx.now)
		if _, err := tx.tx.ExecContext(ctx,
			`UPDATE events SET status = 'completed', updated_at = ? WHERE status = 'active'`, now); err != nil {
			return fmt.Errorf("failed to complete previous event: %w", err)
		}
		res, err := tx.tx.ExecContext(ctx,
			`INSERT INTO events (name, event_date, time_window, location_drop_time, rules, host_phone, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?)`,
			ev.Name, ev.Date, ev.TimeWindow, ev.LocationDropTime, string(rules), ev.HostPhone, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetEvent(ctx, id)
}

// GetEvent returns the event with the given id.
func (s *Store) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// ActiveEvent returns the single active event, or ErrNoActiveEvent.
func (s *Store) ActiveEvent(ctx context.Context) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE status = 'active' ORDER BY created_at DESC, id DESC LIMIT 1`)
	ev, err := scanEvent(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoActiveEvent
	}
	return ev, err
}

// CompleteEvent marks an event completed.
func (s *Store) CompleteEvent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = 'completed', updated_at = ? WHERE id = ?`, unix(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to complete event: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEvent(row *sql.Row) (*models.Event, error) {
	var (
		ev               models.Event
		rules            string
		created, updated int64
	)
	err := row.Scan(&ev.ID, &ev.Name, &ev.Date, &ev.TimeWindow, &ev.LocationDropTime,
		&rules, &ev.HostPhone, &ev.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &ev.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	ev.CreatedAt = fromUnix(created)
	ev.UpdatedAt = fromUnix(updated)
	return &ev, nil
}
