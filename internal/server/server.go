// Package server provides the HTTP API for SoulSync.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/soulsync/internal/config"
	"github.com/hyperjump/soulsync/internal/journey"
	"github.com/hyperjump/soulsync/internal/metrics"
)

// Server is the HTTP server for the SoulSync API.
type Server struct {
	service *journey.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
	server  *http.Server

	cfgMu sync.RWMutex
	cfg   *config.Config
}

// NewServer creates a server with the given dependencies. m may be nil, in which case
// /metrics responds 404.
func NewServer(service *journey.Service, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: service,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
	}
}

// UpdateConfig swaps the config reported by /api/v1/status.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	timeout := 30 * time.Second
	if cfg := s.config(); cfg != nil && cfg.Server.RequestTimeout > 0 {
		timeout = cfg.Server.RequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", s.handleRegisterUser)
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Post("/verify", s.handleVerifyUser)
			r.Post("/deactivate", s.handleDeactivateUser)
			r.Put("/looking-for", s.handleSetLookingFor)
			r.Post("/answers", s.handleSubmitAnswer)
			r.Get("/matches", s.handleMatches)
		})
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := "localhost:8080"
	if cfg := s.config(); cfg != nil {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
