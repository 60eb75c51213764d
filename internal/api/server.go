// Package api exposes a read-only status surface over the store: recent
// events, the poll audit trail, and Prometheus metrics. The store remains
// the sole writer; nothing here mutates state.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akamgm/arlog/internal/store"
)

// Server serves the status API.
type Server struct {
	store  store.Store
	logger *slog.Logger
}

func NewServer(st store.Store, logger *slog.Logger) *Server {
	return &Server{store: st, logger: logger.With("component", "api")}
}

// Router configures all status routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleListEvents)
		r.Get("/polls", s.handleListPolls)
	})

	return r
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	events, err := s.store.ListEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("list events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list events: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	polls, err := s.store.ListPolls(r.Context(), limit)
	if err != nil {
		s.logger.Error("list polls failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list polls: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"polls": polls, "count": len(polls)})
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{"error": fmt.Sprintf(format, args...)})
}
