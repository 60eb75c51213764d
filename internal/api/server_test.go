package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akamgm/arlog/internal/event"
	"github.com/akamgm/arlog/internal/store"
)

type fakeStore struct {
	events []event.Event
	polls  []store.PollRecord
	err    error
}

func (f *fakeStore) InsertEvents(context.Context, []event.Event) (int, []event.Event, error) {
	return 0, nil, nil
}

func (f *fakeStore) RecordPoll(context.Context, store.PollRecord) error { return nil }

func (f *fakeStore) ListEvents(_ context.Context, limit int) ([]event.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeStore) ListPolls(_ context.Context, limit int) ([]store.PollRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.polls) {
		return f.polls[:limit], nil
	}
	return f.polls, nil
}

func (f *fakeStore) Close() error { return nil }

func newTestServer(st store.Store) *httptest.Server {
	srv := NewServer(st, slog.New(slog.NewTextHandler(testWriter{}, nil)))
	return httptest.NewServer(srv.Router())
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestHealthz(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestListEvents(t *testing.T) {
	st := &fakeStore{events: []event.Event{
		{ID: "E1", DeviceName: "Front Door", EventType: "motion", Timestamp: "2:41 PM"},
		{ID: "E2", DeviceName: "Backyard Cam", EventType: "person", Timestamp: "2:45 PM"},
	}}
	ts := newTestServer(st)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Events []event.Event `json:"events"`
		Count  int           `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Events, 2)
	assert.Equal(t, "E1", body.Events[0].ID)
	assert.Equal(t, "Front Door", body.Events[0].DeviceName)
}

func TestListEventsLimit(t *testing.T) {
	st := &fakeStore{events: []event.Event{{ID: "E1"}, {ID: "E2"}, {ID: "E3"}}}
	ts := newTestServer(st)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
}

func TestListPolls(t *testing.T) {
	st := &fakeStore{polls: []store.PollRecord{
		{PolledAt: time.Now(), EventsTotal: 3, EventsNew: 2, Success: true},
	}}
	ts := newTestServer(st)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/polls")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Polls []store.PollRecord `json:"polls"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, 3, body.Polls[0].EventsTotal)
	assert.True(t, body.Polls[0].Success)
}

func TestStoreErrorReturns500(t *testing.T) {
	ts := newTestServer(&fakeStore{err: errors.New("db locked")})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "db locked")
}
