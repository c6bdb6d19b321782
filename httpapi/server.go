package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/isdmx/polyrun/config"
	"github.com/isdmx/polyrun/languages"
	"github.com/isdmx/polyrun/sandbox"
)

// bodyOverhead is the JSON envelope allowance on top of the source limit.
const bodyOverhead = 64 << 10

// Server serves the REST API.
type Server struct {
	config   *config.Config
	logger   *zap.Logger
	executor sandbox.SandboxExecutor
	registry *languages.Registry
	router   *chi.Mux

	httpServer *http.Server
}

// New creates a Server with all routes mounted.
func New(cfg *config.Config, logger *zap.Logger, executor sandbox.SandboxExecutor, registry *languages.Registry) *Server {
	s := &Server{
		config:   cfg,
		logger:   logger,
		executor: executor,
		registry: registry,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/execute", s.handleExecute)
		r.Get("/languages", s.handleLanguages)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the configured port and serves in the background. Bind
// errors are returned; later serve errors are logged.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Server.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// WriteTimeout must outlast the slowest execution: compile plus run.
	writeTimeout := s.config.CompileTimeout() + time.Duration(s.config.Sandbox.MaxTimeoutSec)*time.Second + 15*time.Second
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting REST API", zap.String("addr", listener.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("REST API stopped", zap.Error(err))
		}
	}()

	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("stopping REST API")
	return s.httpServer.Shutdown(ctx)
}
