package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akamgm/arlog/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type flakyNotifier struct {
	failIDs map[string]bool
	sent    []string
}

func (f *flakyNotifier) Name() string { return "flaky" }

func (f *flakyNotifier) Send(_ context.Context, ev event.Event) error {
	if f.failIDs[ev.ID] {
		return errors.New("delivery refused")
	}
	f.sent = append(f.sent, ev.ID)
	return nil
}

func TestDispatchNoNotifiersConfigured(t *testing.T) {
	d := NewDispatcher(testLogger())
	assert.Zero(t, d.Dispatch(context.Background(), []event.Event{{ID: "A"}}))
}

func TestDispatchContainsPerEventFailures(t *testing.T) {
	n := &flakyNotifier{failIDs: map[string]bool{"B": true}}
	d := NewDispatcher(testLogger(), n)

	sent := d.Dispatch(context.Background(), []event.Event{{ID: "A"}, {ID: "B"}, {ID: "C"}})

	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"A", "C"}, n.sent, "a failed delivery must not abort the remaining sends")
}

func TestNtfySendRequestShape(t *testing.T) {
	var gotPath, gotTitle, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNtfy(srv.URL, "arlo-alerts")
	err := n.Send(context.Background(), event.Event{
		ID:          "E1",
		DeviceName:  "Front Door",
		EventType:   "motion",
		Timestamp:   "2024-01-01T10:00:00Z",
		Description: "Person detected",
	})
	require.NoError(t, err)

	assert.Equal(t, "/arlo-alerts", gotPath)
	assert.Equal(t, "Arlo: Front Door motion", gotTitle)
	assert.Contains(t, gotBody, "Front Door: motion")
	assert.Contains(t, gotBody, "Person detected")
	assert.Contains(t, gotBody, "2024-01-01T10:00:00Z")
}

func TestNtfySendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewNtfy(srv.URL, "arlo-alerts")
	err := n.Send(context.Background(), event.Event{ID: "E1"})
	require.Error(t, err)
}

func TestBodyFallsBackToSentinels(t *testing.T) {
	b := body(event.Event{DeviceName: event.Unknown, EventType: ""})
	assert.Equal(t, "Unknown device: event", b)
}
