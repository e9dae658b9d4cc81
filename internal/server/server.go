// Package server exposes the memory engine over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memgarden/memgarden/internal/engine"
	"github.com/memgarden/memgarden/internal/notify"
	"github.com/memgarden/memgarden/internal/store"
)

// Server is the memgarden HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	hub     *notify.Hub
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server. hub may be nil, disabling the websocket route.
func New(db *store.DB, eng *engine.Engine, hub *notify.Hub, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		hub:     hub,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/sessions/init", s.handleSessionInit)
		r.Post("/sessions/{sessionID}/messages", s.handleAddMessage)
		r.Post("/sessions/{sessionID}/complete", s.handleCompleteSession)
		r.Post("/sessions/{sessionID}/clear", s.handleClearMemory)

		r.Post("/tend", s.handleTend)
		r.Get("/context", s.handleRetrieveContext)
		r.Post("/recall", s.handleRecall)
		r.Get("/concepts/history", s.handleConceptHistory)
		r.Get("/search", s.handleSearch)
		r.Get("/topics", s.handleTopics)
		r.Get("/timeline", s.handleTimeline)

		r.Post("/gc", s.handleGC)
		r.Post("/gc/restore", s.handleRestore)
	})

	if s.hub != nil {
		r.Get("/ws/{sessionID}", s.handleWS)
	}
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db.Ping() == nil
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.hub.ServeWS(w, r, sessionID); err != nil {
		// Upgrade failures already wrote a response.
		return
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
