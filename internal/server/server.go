// Package server exposes the authority's HTTP surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/fieldtally/fieldtally/internal/errors"
	"github.com/fieldtally/fieldtally/internal/server/handlers"
	"github.com/fieldtally/fieldtally/internal/server/middleware"
)

// Server is the authority HTTP server.
type Server struct {
	host   string
	port   int
	router chi.Router
	http   *http.Server

	authority handlers.ResultAuthority
	logger    *zap.Logger
	rateRPS   float64
	rateBurst int
}

// Option customizes a Server.
type Option func(*Server)

// WithAuthority registers the committed-results store and its routes.
func WithAuthority(store handlers.ResultAuthority) Option {
	return func(s *Server) { s.authority = store }
}

// WithLogger enables request logging.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRateLimit bounds request throughput.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

// New builds a Server listening on host:port.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{host: host, port: port}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	if s.logger != nil {
		r.Use(middleware.Logging(s.logger))
	}
	if s.rateRPS > 0 {
		r.Use(middleware.RateLimit(s.rateRPS, s.rateBurst))
	}

	r.NotFound(apperrors.NotFoundHandler)
	r.MethodNotAllowed(apperrors.MethodNotAllowedHandler)

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	if s.authority != nil {
		sh := handlers.NewSessionHandlers(s.authority)
		r.Post("/v1/sessions/{id}/results:commit", sh.CommitBatch)
		r.Get("/v1/sessions/{id}/results", sh.ListResults)
		r.Delete("/v1/sessions/{id}", sh.DeleteSession)
	}

	return r
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
