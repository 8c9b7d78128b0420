// Package api pkg/api/server.go serves a read-only HTTP view of the
// health registry and the telemetry cache.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/agrolink/fieldgate/pkg/cache"
	"github.com/agrolink/fieldgate/pkg/health"
	"github.com/agrolink/fieldgate/pkg/models"
)

const readHeaderTimeout = 5 * time.Second

// Server exposes health and cache snapshots over HTTP. Handlers only
// call lock-safe read methods.
type Server struct {
	monitor *health.Monitor
	cache   *cache.TelemetryCache
	router  *mux.Router
	srv     *http.Server
}

// NewServer creates the status API over the given registry and cache.
func NewServer(monitor *health.Monitor, telemetryCache *cache.TelemetryCache) *Server {
	s := &Server{
		monitor: monitor,
		cache:   telemetryCache,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/health", s.getHealth).Methods("GET")
	s.router.HandleFunc("/api/telemetry/{channel}", s.getTelemetry).Methods("GET")
}

// Start binds the listen address and serves in the background. Bind
// errors are returned synchronously.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("status_api: serve failed: %v", err)
		}
	}()

	log.Printf("status_api: listening on %s", addr)

	return nil
}

// Stop shuts the HTTP server down.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		log.Printf("status_api: shutdown failed: %v", err)
	}
}

// Handler returns the route handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.monitor.Snapshot())
}

func (s *Server) getTelemetry(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["channel"]

	channel, ok := models.ParseChannel(name)
	if !ok {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}

	readings := s.cache.Snapshot(channel)

	s.writeJSON(w, map[string]any{
		"channel":  channel,
		"readings": readings,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("status_api: encode failed: %v", err)
	}
}
