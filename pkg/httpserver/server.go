package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/solvex/mev-shield/internal/coordinator"
	"github.com/solvex/mev-shield/internal/events"
	"github.com/solvex/mev-shield/pkg/healthprobe"
	"go.uber.org/zap"
)

// Server provides HTTP endpoints for the protection API, metrics, health
// checks and the websocket event feed.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Coordinator   *coordinator.Coordinator
	Bus           *events.Bus
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Operational routes
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	// Protection API (if coordinator provided)
	if cfg.Coordinator != nil {
		h := NewProtectionHandler(cfg.Coordinator, cfg.Logger)
		r.Route("/api", func(r chi.Router) {
			r.Post("/orders/commit", h.HandleCommit)
			r.Post("/orders/reveal", h.HandleReveal)
			r.Post("/orders/timelock", h.HandleTimeLock)
			r.Post("/detect", h.HandleDetect)
			r.Get("/metrics/mev", h.HandleMevMetrics)
			r.Get("/config", h.HandleGetConfig)
			r.Patch("/config", h.HandleUpdateConfig)
		})
	}

	// Event feed for downstream alerting
	if cfg.Bus != nil {
		feed := NewEventFeed(cfg.Bus, cfg.Logger)
		r.Get("/ws/events", feed.Handle)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server:        server,
		logger:        cfg.Logger,
		healthChecker: cfg.HealthChecker,
	}
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
