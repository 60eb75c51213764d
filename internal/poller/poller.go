// Package poller drives the poll lifecycle: acquire events, persist new
// ones, notify, and append an audit record, once per tick.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akamgm/arlog/internal/event"
	"github.com/akamgm/arlog/internal/metrics"
	"github.com/akamgm/arlog/internal/store"
)

// Acquirer produces one poll cycle's worth of canonical events.
type Acquirer interface {
	Scrape(ctx context.Context) ([]event.Event, error)
}

// Sender delivers notifications for newly inserted events.
type Sender interface {
	Dispatch(ctx context.Context, events []event.Event) int
}

// Poller owns the cycle loop and its failure containment: acquisition and
// insert errors mark the cycle failed and the loop continues; only an
// audit-write failure is allowed to stop the process.
type Poller struct {
	acquirer Acquirer
	store    store.Store
	sender   Sender
	interval time.Duration
	logger   *slog.Logger
}

func New(acquirer Acquirer, st store.Store, sender Sender, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		acquirer: acquirer,
		store:    st,
		sender:   sender,
		interval: interval,
		logger:   logger.With("component", "poller"),
	}
}

// Run polls immediately, then on every tick until ctx is cancelled. A
// cycle already in flight finishes; cancellation is observed between
// cycles. The returned error is always a fatal storage error.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poll loop started", "interval", p.interval)
	if err := p.PollOnce(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopped", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// PollOnce runs a single cycle. Every completed cycle appends exactly one
// poll_log row, success or failure.
func (p *Poller) PollOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	events, err := p.acquirer.Scrape(ctx)
	if err != nil {
		return p.recordFailure(ctx, fmt.Errorf("scrape feed: %w", err))
	}

	count, inserted, err := p.store.InsertEvents(ctx, events)
	if err != nil {
		return p.recordFailure(ctx, fmt.Errorf("insert events: %w", err))
	}

	sent := 0
	if len(inserted) > 0 {
		sent = p.sender.Dispatch(ctx, inserted)
	}

	metrics.PollsTotal.WithLabelValues("success").Inc()
	metrics.EventsSeen.Add(float64(len(events)))
	metrics.EventsNew.Add(float64(count))
	metrics.NotificationsSent.Add(float64(sent))

	p.logger.Info("poll complete", "events_total", len(events), "events_new", count, "notified", sent)

	if err := p.store.RecordPoll(ctx, store.PollRecord{
		EventsTotal: len(events),
		EventsNew:   count,
		Success:     true,
	}); err != nil {
		return fmt.Errorf("audit log unavailable: %w", err)
	}
	return nil
}

// recordFailure logs a failed cycle and appends its audit row. A shutdown
// that interrupted the cycle is not a failure and gets no row.
func (p *Poller) recordFailure(ctx context.Context, cause error) error {
	if errors.Is(cause, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	p.logger.Error("poll cycle failed", "error", cause)
	metrics.PollsTotal.WithLabelValues("failure").Inc()

	if err := p.store.RecordPoll(ctx, store.PollRecord{
		Success: false,
		Error:   cause.Error(),
	}); err != nil {
		return fmt.Errorf("audit log unavailable: %w", err)
	}
	return nil
}
