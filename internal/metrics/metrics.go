// Package metrics exposes Prometheus counters for poll health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollsTotal counts completed poll cycles by outcome ("success"/"failure").
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arlog_polls_total",
		Help: "Completed poll cycles by outcome.",
	}, []string{"outcome"})

	// EventsSeen counts events returned by acquisition, duplicates included.
	EventsSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arlog_events_seen_total",
		Help: "Events returned by feed acquisition, including duplicates.",
	})

	// EventsNew counts events actually inserted by the store.
	EventsNew = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arlog_events_new_total",
		Help: "Events newly inserted into the store.",
	})

	// NotificationsSent counts events delivered to at least one notifier.
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arlog_notifications_sent_total",
		Help: "Events for which a notification was delivered.",
	})
)
