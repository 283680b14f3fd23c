// Package server exposes the engine's HTTP surface: the event-source
// webhook that triggers runs, a health endpoint, and run status lookup for
// merge-check UIs.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vk/mergegate/internal/ctxlog"
	"github.com/vk/mergegate/internal/event"
	"github.com/vk/mergegate/internal/run"
)

// Server routes HTTP traffic to the run coordinator.
type Server struct {
	coord  *run.Coordinator
	router chi.Router
}

// New builds the router around a coordinator.
func New(coord *run.Coordinator) *Server {
	s := &Server{coord: coord}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Post("/events", s.handleEvent)
	r.Get("/runs/{runID}", s.handleRunStatus)
	s.router = r

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(r.Context()).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// handleEvent accepts a trigger event and starts a run asynchronously,
// answering with the run ID for later polling.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())

	var ev event.TriggerEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding event: %w", err))
		return
	}

	id, err := s.coord.TriggerAsync(r.Context(), &ev)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	logger.Info("Trigger event accepted.", "runID", id, "ref", ev.Ref, "sha", ev.SHA)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"run_id": id})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	rec, ok := s.coord.Snapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown run %q", id))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
