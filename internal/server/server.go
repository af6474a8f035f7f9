package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/takeback/takeback/internal/config"
	"github.com/takeback/takeback/internal/engine"
	"github.com/takeback/takeback/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server represents the HTTP server for the takeback web dashboard.
// It only observes: runs are started from the CLI, the dashboard reads
// snapshots and history.
type Server struct {
	rebuilder  *engine.Rebuilder
	store      *store.Store
	config     *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	templates  *template.Template
}

// NewServer creates a new Server instance. The store may be nil, in which
// case run history endpoints return empty results.
func NewServer(reb *engine.Rebuilder, st *store.Store, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		rebuilder: reb,
		store:     st,
		config:    cfg,
		logger:    logger,
	}
}

// Start starts the HTTP server on the given listen address.
func (s *Server) Start(listenAddr string) error {
	var err error
	s.templates, err = template.New("").Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	mux := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        listenAddr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the SSE stream stays open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", listenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes registers all HTTP routes on a new ServeMux.
// Uses Go 1.22+ enhanced routing with method prefixes and path variables.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Page routes
	mux.HandleFunc("GET /dashboard", s.handleDashboard)

	// API routes
	mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	mux.HandleFunc("GET /api/runs", s.handleAPIRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleAPIRunDetail)
	mux.HandleFunc("GET /api/progress/stream", s.handleProgressStream)

	// Root redirect
	mux.HandleFunc("GET /{$}", s.handleRedirectDashboard)

	return mux
}
