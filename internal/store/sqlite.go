package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/akamgm/arlog/internal/event"
)

// SQLite backs the store with a local database file, the default mode of
// operation.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an open database handle and applies the schema.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			arlo_event_id TEXT UNIQUE NOT NULL,
			device_name TEXT,
			event_type TEXT,
			timestamp TEXT,
			description TEXT,
			raw_json TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_events_device ON events(device_name);`,
		`CREATE TABLE IF NOT EXISTS poll_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			polled_at TEXT NOT NULL DEFAULT (datetime('now')),
			events_total INTEGER NOT NULL,
			events_new INTEGER NOT NULL,
			success INTEGER NOT NULL DEFAULT 1,
			error TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// InsertEvents stores the batch inside one transaction. Identity conflicts
// are skipped via ON CONFLICT DO NOTHING and detected through RowsAffected,
// so duplicates within the batch and across process restarts collapse the
// same way.
func (s *SQLite) InsertEvents(ctx context.Context, events []event.Event) (int, []event.Event, error) {
	if len(events) == 0 {
		return 0, nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback()

	var inserted []event.Event
	for _, ev := range events {
		rawJSON, err := json.Marshal(ev.Raw)
		if err != nil {
			// Raw payloads come out of a JSON decode, so this is effectively
			// unreachable; treat it like an invalid record and move on.
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (arlo_event_id, device_name, event_type, timestamp, description, raw_json)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(arlo_event_id) DO NOTHING`,
			ev.ID, ev.DeviceName, ev.EventType, ev.Timestamp, ev.Description, string(rawJSON),
		)
		if err != nil {
			return 0, nil, fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			inserted = append(inserted, ev)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit insert tx: %w", err)
	}
	return len(inserted), inserted, nil
}

// RecordPoll appends one audit row.
func (s *SQLite) RecordPoll(ctx context.Context, rec PollRecord) error {
	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO poll_log (polled_at, events_total, events_new, success, error)
		 VALUES (COALESCE(?, datetime('now')), ?, ?, ?, ?)`,
		timeOrNil(rec.PolledAt), rec.EventsTotal, rec.EventsNew, boolToInt(rec.Success), errText,
	)
	if err != nil {
		return fmt.Errorf("record poll: %w", err)
	}
	return nil
}

// ListEvents returns the most recently stored events.
func (s *SQLite) ListEvents(ctx context.Context, limit int) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT arlo_event_id, device_name, event_type, timestamp, description, raw_json, created_at
		 FROM events ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			ev        event.Event
			rawJSON   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.DeviceName, &ev.EventType, &ev.Timestamp, &ev.Description, &rawJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if rawJSON.Valid {
			_ = json.Unmarshal([]byte(rawJSON.String), &ev.Raw)
		}
		ev.CreatedAt = parseStoredTime(createdAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter events: %w", err)
	}
	return events, nil
}

// ListPolls returns the most recent audit rows.
func (s *SQLite) ListPolls(ctx context.Context, limit int) ([]PollRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT polled_at, events_total, events_new, success, error
		 FROM poll_log ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	var recs []PollRecord
	for rows.Next() {
		var (
			rec      PollRecord
			polledAt string
			success  int
			errText  sql.NullString
		)
		if err := rows.Scan(&polledAt, &rec.EventsTotal, &rec.EventsNew, &success, &errText); err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		rec.PolledAt = parseStoredTime(polledAt)
		rec.Success = success != 0
		rec.Error = errText.String
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter polls: %w", err)
	}
	return recs, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
