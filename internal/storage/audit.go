package storage

import (
	"context"
	"fmt"
	"time"
)

// DefaultListLimit and MaxListLimit bound ListEvents.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// RecordEvent appends an event to the audit log and returns its ID.
// CreatedAt is set to the current time when zero.
func (s *SQLiteStorage) RecordEvent(ctx context.Context, e *Event) (int64, error) {
	if e.Kind == "" {
		return 0, ErrInvalidEvent
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (kind, subject, detail, outcome, remote_addr, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Kind, e.Subject, e.Detail, e.Outcome, e.RemoteAddr, e.RequestID, e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to record audit event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert ID: %w", err)
	}
	e.ID = id
	return id, nil
}

// ListEvents returns the most recent events, newest first.
// limit <= 0 selects DefaultListLimit; values above MaxListLimit are clamped.
func (s *SQLiteStorage) ListEvents(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, subject, detail, outcome, remote_addr, request_id, created_at
		 FROM audit_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	events := make([]*Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.Subject, &e.Detail, &e.Outcome, &e.RemoteAddr, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}
