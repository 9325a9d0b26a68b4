package storage

import (
	"context"
	"database/sql"
	"fmt"

	"party-doorman/internal/models"
)

// LogMessage appends an entry to the message audit trail.
func (s *Store) LogMessage(ctx context.Context, m *models.MessageLog) error {
	var eventID sql.NullInt64
	if m.EventID != nil {
		eventID = sql.NullInt64{Int64: *m.EventID, Valid: true}
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_log (event_id, from_phone, to_phone, body, direction, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		eventID, m.FromPhone, m.ToPhone, m.Body, m.Direction, unix(created))
	if err != nil {
		return fmt.Errorf("failed to log message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest messages to or from phone, newest first.
func (s *Store) RecentMessages(ctx context.Context, phone string, limit int) ([]models.MessageLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, from_phone, to_phone, body, direction, created_at
		 FROM message_log WHERE from_phone = ? OR to_phone = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, phone, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []models.MessageLog
	for rows.Next() {
		var (
			m       models.MessageLog
			eventID sql.NullInt64
			created int64
		)
		if err := rows.Scan(&m.ID, &eventID, &m.FromPhone, &m.ToPhone, &m.Body, &m.Direction, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if eventID.Valid {
			id := eventID.Int64
			m.EventID = &id
		}
		m.CreatedAt = fromUnix(created)
		out = append(out, m)
	}
	return out, rows.Err()
}
