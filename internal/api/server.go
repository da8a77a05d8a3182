// Package api serves the live run status and the run history over HTTP.
// Every endpoint is read-only.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/speedrunner/internal/engine"
	"github.com/talgya/speedrunner/internal/persistence"
)

// StatusSource reports the live state of the decision loop.
type StatusSource interface {
	Status() engine.Status
}

// RunStore reads the recorded run history.
type RunStore interface {
	Run(id string) (engine.RunSummary, error)
	RecentRuns(limit int) ([]engine.RunSummary, error)
	Ticks(runID string) ([]engine.TickRecord, error)
	GetMeta(key string) (string, error)
}

// Server serves the decision loop over HTTP.
type Server struct {
	Loop StatusSource
	DB   RunStore // nil disables the history endpoints
	Addr string

	// Requests per minute per client on the history endpoints. Zero means 60.
	HistoryRate int
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	rate := s.HistoryRate
	if rate <= 0 {
		rate = 60
	}
	historyLimiter := NewRateLimiter(rate, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/runs", RateLimitMiddleware(historyLimiter, s.handleRuns))
	mux.HandleFunc("GET /api/v1/runs/{id}", RateLimitMiddleware(historyLimiter, s.handleRun))
	mux.HandleFunc("GET /api/v1/runs/{id}/ticks", RateLimitMiddleware(historyLimiter, s.handleTicks))
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	return corsMiddleware(mux)
}

// Start begins serving in a goroutine. The returned server can be shut down.
func (s *Server) Start() *http.Server {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "history", s.DB != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed dashboard origins.
// CORS_ORIGINS adds a comma-separated list to the localhost dev servers.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Loop.Status())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.history(w) {
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	runs, err := s.DB.RecentRuns(limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []engine.RunSummary{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.history(w) {
		return
	}
	run, err := s.DB.Run(r.PathValue("id"))
	if errors.Is(err, persistence.ErrUnknownRun) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("load run failed", "run", r.PathValue("id"), "error", err)
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	if !s.history(w) {
		return
	}
	id := r.PathValue("id")
	if _, err := s.DB.Run(id); errors.Is(err, persistence.ErrUnknownRun) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	ticks, err := s.DB.Ticks(id)
	if err != nil {
		slog.Error("load ticks failed", "run", id, "error", err)
		http.Error(w, "failed to load ticks", http.StatusInternalServerError)
		return
	}
	if ticks == nil {
		ticks = []engine.TickRecord{}
	}
	writeJSON(w, ticks)
}

// handleStats reports the outcome counters kept alongside the run history.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.history(w) {
		return
	}
	stats := map[string]int{}
	for _, key := range []string{"runs_finished", "runs_won", "runs_budget_exhausted", "runs_stopped"} {
		v, err := s.DB.GetMeta(key)
		if err != nil {
			stats[key] = 0
			continue
		}
		n, _ := strconv.Atoi(v)
		stats[key] = n
	}
	writeJSON(w, stats)
}

func (s *Server) history(w http.ResponseWriter) bool {
	if s.DB == nil {
		http.Error(w, "run history disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
