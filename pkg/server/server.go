package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/jobs"
	"github.com/virupakshb/TrialMonitor/pkg/server/middleware"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/health"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/tracing"
)

// Options carries the components the API serves.
type Options struct {
	Manager *jobs.Manager
	Health  *health.Checker

	// Metrics serves MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string

	// Tracer wraps the API in a server span per request when non-nil.
	Tracer *tracing.Tracer

	Version   string
	Commit    string
	BuildTime string
}

// Server is the TrialMonitor HTTP API server.
type Server struct {
	config       *config.ServerConfig
	opts         Options
	httpServer   *http.Server
	logger       *slog.Logger
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         string
}

// New creates an API server. The manager is required.
func New(cfg *config.ServerConfig, opts Options) *Server {
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultMetricsPath
	}
	return &Server{
		config: cfg,
		opts:   opts,
		logger: slog.Default().With("component", "server"),
	}
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress, err)
	}
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.addr = ln.Addr().String()
	s.isRunning = true
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "address", s.addr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errCh:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown stops accepting connections and waits for active requests, up
// to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		s.logger.Info("API server stopped")
	})
	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listen address once Start has been called.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the API handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.routes()
	if s.opts.Tracer != nil {
		handler = s.opts.Tracer.HTTPMiddleware(handler)
	}
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(s.logger)(handler)
	return handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	h := &handlers{manager: s.opts.Manager, logger: s.logger}

	mux.HandleFunc("POST /api/evaluate/batch", h.submitBatch)
	mux.HandleFunc("GET /api/evaluate/batch/{job_id}", h.jobStatus)
	mux.HandleFunc("POST /api/evaluate/batch/{job_id}/cancel", h.cancelJob)
	mux.HandleFunc("POST /api/evaluate/subject/{subject_id}", h.evaluateSubject)
	mux.HandleFunc("POST /api/evaluate/subject/{subject_id}/rule/{rule_id}", h.evaluateRule)
	mux.HandleFunc("GET /api/jobs", h.listJobs)

	mux.HandleFunc("GET /api/results", h.listResults)
	mux.HandleFunc("GET /api/results/{job_id}", h.getResult)
	mux.HandleFunc("GET /api/results/{job_id}/violations", h.resultViolations)
	mux.HandleFunc("GET /api/violations", h.violations)
	mux.HandleFunc("GET /api/subjects/{subject_id}/violations", h.subjectViolations)

	mux.HandleFunc("GET /api/rules", h.listRules)
	mux.HandleFunc("GET /api/usage", h.usage)
	mux.HandleFunc("POST /api/usage/reset", h.resetUsage)

	health.Register(mux, s.opts.Health, s.opts.Version, s.opts.Commit, s.opts.BuildTime)
	if s.opts.Metrics != nil {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.Metrics)
	}
	return mux
}
