package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/civicwatch/alertwatch/internal/alerts"
	mw "github.com/civicwatch/alertwatch/internal/api/middleware"
	v1 "github.com/civicwatch/alertwatch/internal/api/v1"
	"github.com/civicwatch/alertwatch/internal/identity"
	"github.com/civicwatch/alertwatch/internal/logger"
	"github.com/civicwatch/alertwatch/internal/observability"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker func(ctx context.Context) error

// Server is the HTTP server of alertwatch.
type Server struct {
	echo     *echo.Echo
	config   *Config
	log      logger.Logger
	service  *alerts.Service
	identity identity.Provider
	metrics  *observability.Metrics
	health   HealthChecker
	version  string

	apiController *v1.Controller
	startTime     time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheck sets the check behind GET /health, usually a database ping.
func WithHealthCheck(h HealthChecker) ServerOption {
	return func(s *Server) { s.health = h }
}

// WithVersion sets the version reported by GET /health.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// New creates a new HTTP server serving svc.
func New(config *Config, svc *alerts.Service, provider identity.Provider, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if svc == nil || provider == nil {
		return nil, fmt.Errorf("alert service and identity provider are required")
	}

	s := &Server{
		config:    config,
		service:   svc,
		identity:  provider,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	s.log = s.log.Module("api")

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.String("actor_header", config.ActorHeader),
		logger.Float64("rate_limit", config.RateLimit))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestID())
	s.echo.Use(mw.NewRequestLogger(s.log))
	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil && s.config.Metrics {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	opts := []v1.Option{v1.WithActorHeader(s.config.ActorHeader), v1.WithLogger(s.log)}
	if s.config.RateLimit > 0 {
		var onReject func()
		if s.metrics != nil {
			onReject = s.metrics.HTTP.RecordRateLimited
		}
		opts = append(opts, v1.WithRateLimiter(mw.NewRateLimiter(s.config.RateLimit, s.config.RateBurst, onReject)))
	}
	s.apiController = v1.New(s.echo, s.service, s.identity, opts...)
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	status, code := "healthy", http.StatusOK
	body := map[string]any{
		"version":        s.version,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
			body["error"] = "database unavailable"
			s.log.Warn("health check failed", logger.Error(err))
		}
	}
	body["status"] = status
	return c.JSON(code, body)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", s.config.Address()))
		if err := s.echo.Start(s.config.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutdown signal received, stopping HTTP server")
	if err := s.Shutdown(); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ServeHTTP lets the server be used directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
