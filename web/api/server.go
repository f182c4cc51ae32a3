// Package api exposes the dashboard over HTTP: JSON endpoints for
// repository state, stuck alerts, detection config and intents, plus a
// server-sent event feed mirroring the live stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/alerthistory"
	"github.com/hochfrequenz/claude-session-monitor/internal/dashboard"
)

// Server is the dashboard HTTP API server.
type Server struct {
	session *dashboard.Session
	history *alerthistory.Store // nil disables history endpoints
	addr    string
	mux     *http.ServeMux
	sseHub  *SSEHub

	// now is swappable so display durations are testable.
	now func() time.Time
}

// NewServer creates the API server around a dashboard session.
func NewServer(session *dashboard.Session, history *alerthistory.Store, addr string) *Server {
	s := &Server{
		session: session,
		history: history,
		addr:    addr,
		mux:     http.NewServeMux(),
		sseHub:  NewSSEHub(),
		now:     time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/repos", s.listReposHandler())
	s.mux.HandleFunc("/api/repos/", s.repoActionHandler())
	s.mux.HandleFunc("/api/stuck", s.stuckStatusHandler())
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/config", s.configHandler())
	s.mux.HandleFunc("/api/config/reset", s.configResetHandler())
	s.mux.HandleFunc("/api/history/", s.historyHandler())
	s.mux.HandleFunc("/api/reconnect", s.reconnectHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())

	// Static files (dashboard UI build output)
	s.mux.Handle("/", http.FileServer(http.Dir("web/ui/build")))
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.sseHub.Run(ctx)

	srv := &http.Server{Addr: s.addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Broadcast sends an event to all SSE clients.
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
