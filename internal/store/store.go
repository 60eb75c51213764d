// Package store owns the durable events and poll_log tables. It is the
// sole writer for both and the single authority on event deduplication.
package store

import (
	"context"
	"time"

	"github.com/akamgm/arlog/internal/event"
)

// PollRecord is one append-only audit row describing a poll cycle.
type PollRecord struct {
	PolledAt    time.Time `json:"polled_at"`
	EventsTotal int       `json:"events_total"`
	EventsNew   int       `json:"events_new"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
}

// Store persists events exactly once per identity and keeps the poll audit
// trail. InsertEvents commits the whole batch in one transaction; an event
// whose identity already exists is skipped without failing the batch, and
// the returned slice holds only newly inserted events in input order.
// RecordPoll must never silently drop a row: an error from it is treated
// as fatal by the caller.
type Store interface {
	InsertEvents(ctx context.Context, events []event.Event) (int, []event.Event, error)
	RecordPoll(ctx context.Context, rec PollRecord) error
	ListEvents(ctx context.Context, limit int) ([]event.Event, error)
	ListPolls(ctx context.Context, limit int) ([]PollRecord, error)
	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
