package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/cohortsim/internal/engine"
	"github.com/lazypower/cohortsim/internal/sink"
	"github.com/lazypower/cohortsim/internal/store"
)

// defaultMaxAgents bounds runs started over HTTP, which execute inside the
// request.
const defaultMaxAgents = 20000

// Options configure optional server behavior.
type Options struct {
	Logger *slog.Logger
	// Defaults are the parameters a POST /runs body is decoded over.
	Defaults *engine.Params
	// Sink, when set, receives runs started with "push": true.
	Sink      *sink.Client
	MaxAgents int
	// RequestLog enables chi's request logger.
	RequestLog bool
}

// Server is the cohortsim HTTP API server.
type Server struct {
	db        *store.DB
	router    chi.Router
	version   string
	started   time.Time
	logger    *slog.Logger
	defaults  engine.Params
	sink      *sink.Client
	maxAgents int
}

// New creates a new Server with the given database and version string.
func New(db *store.DB, version string, opts Options) *Server {
	s := &Server{
		db:        db,
		version:   version,
		started:   time.Now(),
		logger:    opts.Logger,
		defaults:  engine.DefaultParams(),
		sink:      opts.Sink,
		maxAgents: opts.MaxAgents,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if opts.Defaults != nil {
		s.defaults = *opts.Defaults
	}
	if s.maxAgents <= 0 {
		s.maxAgents = defaultMaxAgents
	}
	s.routes(opts.RequestLog)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(requestLog bool) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	if requestLog {
		r.Use(middleware.Logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/runs", s.handleListRuns)
		r.Post("/runs", s.handleCreateRun)
		r.Route("/runs/{runID}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Get("/agents", s.handleRunAgents)
			r.Get("/events", s.handleRunEvents)
			r.Get("/analytics", s.handleRunAnalytics)
			r.Get("/snapshots", s.handleRunSnapshots)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
		"sink":    s.sink != nil,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
