// Package server exposes the credibility pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/metrics"
	"github.com/ppiankov/credence/internal/model"
)

const (
	defaultReadTimeout     = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	writeTimeoutSlack      = 15 * time.Second
)

// Checker runs one credibility check.
type Checker interface {
	Handle(ctx context.Context, actorID string, in model.RawInput) (*model.CredibilityReport, error)
}

// CacheReporter is implemented by checkers that cache reports.
type CacheReporter interface {
	CacheStats() (cache.Stats, bool)
}

// Config holds HTTP server settings
type Config struct {
	Addr            string
	Locale          string        // Default locale for user-facing messages
	Version         string        // Reported by /health
	MaxImageBytes   int64         // Largest accepted upload
	RequestTimeout  time.Duration // Upper bound of one check; the write timeout follows it
	ShutdownTimeout time.Duration

	TrustedProxies   []string // Proxies whose X-Forwarded-For is believed
	TrustActorHeader bool     // Use X-Actor-ID or actor_id as the rate-limit identity
}

// ConfigFrom maps the application config onto server settings.
func ConfigFrom(cfg model.Config, version string) Config {
	return Config{
		Addr:            cfg.Server.Addr,
		Locale:          cfg.Pipeline.Locale,
		Version:         version,
		MaxImageBytes:   int64(cfg.Limits.MaxImageBytes),
		RequestTimeout:  time.Duration(cfg.Pipeline.RequestTimeoutSeconds) * time.Second,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,

		TrustedProxies:   cfg.Server.TrustedProxies,
		TrustActorHeader: cfg.Server.TrustActorHeader,
	}
}

// Server wraps a gin engine and its http.Server.
type Server struct {
	cfg        Config
	router     *gin.Engine
	httpServer *http.Server
	log        logger.Logger
}

// New builds the server with its middleware and routes. Only the configured
// trusted proxies may set the client address through forwarding headers.
func New(cfg Config, checker Checker, m *metrics.Metrics, log logger.Logger) (*Server, error) {
	log = logger.OrNop(log)
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(
		RecoveryMiddleware(log),
		RequestIDMiddleware(),
		LoggerMiddleware(log),
	)

	h := newHandler(cfg, checker, log)
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	v1 := router.Group("/api/v1")
	v1.POST("/check", h.check)

	return &Server{
		cfg:    cfg,
		router: router,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: cfg.RequestTimeout + writeTimeoutSlack,
			IdleTimeout:  defaultIdleTimeout,
		},
		log: log,
	}, nil
}

// Handler returns the routed engine, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", logger.String("addr", s.cfg.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight checks.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down HTTP server", logger.Duration("grace", s.cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
