// Package notify delivers best-effort notifications for newly stored
// events. Delivery failures never propagate to the poll cycle.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/akamgm/arlog/internal/event"
)

// Notifier sends one outbound message for one event.
type Notifier interface {
	Name() string
	Send(ctx context.Context, ev event.Event) error
}

// Dispatcher fans new events out to every configured notifier.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
}

func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		logger:    logger.With("component", "notify"),
	}
}

// Dispatch sends one message per event per notifier. Each failure is
// logged and contained; the return value counts events that reached at
// least one destination. With no notifiers configured it returns 0
// without any I/O.
func (d *Dispatcher) Dispatch(ctx context.Context, events []event.Event) int {
	if len(d.notifiers) == 0 || len(events) == 0 {
		return 0
	}
	sent := 0
	for _, ev := range events {
		delivered := false
		for _, n := range d.notifiers {
			if err := n.Send(ctx, ev); err != nil {
				d.logger.Error("notification failed", "notifier", n.Name(), "event_id", ev.ID, "error", err)
				continue
			}
			delivered = true
		}
		if delivered {
			sent++
		}
	}
	return sent
}

// title and body render an event for human delivery.
func title(ev event.Event) string {
	return fmt.Sprintf("Arlo: %s %s", or(ev.DeviceName, "Unknown device"), or(ev.EventType, "event"))
}

func body(ev event.Event) string {
	var b strings.Builder
	b.WriteString(or(ev.DeviceName, "Unknown device"))
	b.WriteString(": ")
	b.WriteString(or(ev.EventType, "event"))
	if ev.Description != "" {
		b.WriteString(" — ")
		b.WriteString(ev.Description)
	}
	if ev.Timestamp != "" {
		b.WriteString("\n")
		b.WriteString(ev.Timestamp)
	}
	return b.String()
}

func or(s, fallback string) string {
	if s == "" || s == event.Unknown {
		return fallback
	}
	return s
}
