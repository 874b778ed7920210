// Package web provides an HTTP status server for the sprinkler daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/sprinkler-controller/internal/history"
	"github.com/sweeney/sprinkler-controller/internal/status"
)

const historyTimeout = 2 * time.Second

// RunLister returns the most recent completed runs, newest first.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	runs       RunLister
}

// New creates a Server that reads state from the given tracker. runs may be
// nil, in which case /history.json returns 404.
func New(addr string, tracker *status.Tracker, runs RunLister) *Server {
	s := &Server{tracker: tracker, runs: runs}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/history.json", s.handleHistory)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleHistory serves recent runs. ?limit=N bounds the list; the store
// clamps it.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.NotFound(w, r)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
	defer cancel()
	runs, err := s.runs.Recent(ctx, limit)
	if err != nil {
		http.Error(w, "history unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(formatHistory(runs))
}
