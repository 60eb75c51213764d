package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akamgm/arlog/internal/event"
)

// Postgres backs the store with a pgx connection pool, selected when the
// database location is a postgres:// DSN.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the DSN and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			arlo_event_id TEXT UNIQUE NOT NULL,
			device_name TEXT,
			event_type TEXT,
			timestamp TEXT,
			description TEXT,
			raw_json TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_events_device ON events(device_name);`,
		`CREATE TABLE IF NOT EXISTS poll_log (
			id BIGSERIAL PRIMARY KEY,
			polled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			events_total INTEGER NOT NULL,
			events_new INTEGER NOT NULL,
			success BOOLEAN NOT NULL DEFAULT TRUE,
			error TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// InsertEvents mirrors the SQLite contract: one transaction per batch,
// conflicts skipped, newly inserted subset returned in order.
func (p *Postgres) InsertEvents(ctx context.Context, events []event.Event) (int, []event.Event, error) {
	if len(events) == 0 {
		return 0, nil, nil
	}
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, nil, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted []event.Event
	for _, ev := range events {
		rawJSON, err := json.Marshal(ev.Raw)
		if err != nil {
			continue
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO events (arlo_event_id, device_name, event_type, timestamp, description, raw_json)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (arlo_event_id) DO NOTHING`,
			ev.ID, ev.DeviceName, ev.EventType, ev.Timestamp, ev.Description, string(rawJSON),
		)
		if err != nil {
			return 0, nil, fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, ev)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("commit insert tx: %w", err)
	}
	return len(inserted), inserted, nil
}

// RecordPoll appends one audit row.
func (p *Postgres) RecordPoll(ctx context.Context, rec PollRecord) error {
	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO poll_log (polled_at, events_total, events_new, success, error)
		 VALUES (COALESCE($1, now()), $2, $3, $4, $5)`,
		timeOrNilPG(rec), rec.EventsTotal, rec.EventsNew, rec.Success, errText,
	)
	if err != nil {
		return fmt.Errorf("record poll: %w", err)
	}
	return nil
}

func timeOrNilPG(rec PollRecord) any {
	if rec.PolledAt.IsZero() {
		return nil
	}
	return rec.PolledAt.UTC()
}

// ListEvents returns the most recently stored events.
func (p *Postgres) ListEvents(ctx context.Context, limit int) ([]event.Event, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT arlo_event_id, device_name, event_type, timestamp, description, raw_json, created_at
		 FROM events ORDER BY id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			ev      event.Event
			rawJSON *string
		)
		if err := rows.Scan(&ev.ID, &ev.DeviceName, &ev.EventType, &ev.Timestamp, &ev.Description, &rawJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if rawJSON != nil {
			_ = json.Unmarshal([]byte(*rawJSON), &ev.Raw)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter events: %w", err)
	}
	return events, nil
}

// ListPolls returns the most recent audit rows.
func (p *Postgres) ListPolls(ctx context.Context, limit int) ([]PollRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT polled_at, events_total, events_new, success, error
		 FROM poll_log ORDER BY id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	var recs []PollRecord
	for rows.Next() {
		var (
			rec     PollRecord
			errText *string
		)
		if err := rows.Scan(&rec.PolledAt, &rec.EventsTotal, &rec.EventsNew, &rec.Success, &errText); err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		if errText != nil {
			rec.Error = *errText
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter polls: %w", err)
	}
	return recs, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
