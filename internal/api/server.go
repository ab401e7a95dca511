//
//
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnonymousTalent/opsradar/internal/auth"
)

// Config holds listener settings and values advertised by capabilities.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string

	Modules      []string
	PushInterval time.Duration
	PollInterval time.Duration
	Version      string
}

// Server represents the HTTP API server.
type Server struct {
	cfg        Config
	telemetry  SnapshotPort
	simulation MapPort
	sessions   SessionsPort
	ledger     LedgerPort
	metrics    MetricsPort
	push       http.Handler
	authMW     *auth.Middleware
	log        zerolog.Logger
	startTime  time.Time

	once       sync.Once
	handler    http.Handler
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithSimulation serves /api/simulation-data from m.
func WithSimulation(m MapPort) Option { return func(s *Server) { s.simulation = m } }

// WithSessions serves /api/sessions and session counts from p.
func WithSessions(p SessionsPort) Option { return func(s *Server) { s.sessions = p } }

// WithLedger serves /api/dispatches from l.
func WithLedger(l LedgerPort) Option { return func(s *Server) { s.ledger = l } }

// WithMetrics mounts /metrics and records poll outcomes.
func WithMetrics(m MetricsPort) Option { return func(s *Server) { s.metrics = m } }

// WithPushHandler mounts h at /ws.
func WithPushHandler(h http.Handler) Option { return func(s *Server) { s.push = h } }

// WithAuth protects every route except health and metrics.
func WithAuth(m *auth.Middleware) Option { return func(s *Server) { s.authMW = m } }

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l.With().Str("component", "api").Logger() }
}

// NewServer creates a new API server.
func NewServer(cfg Config, telemetry SnapshotPort, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		telemetry: telemetry,
		log:       zerolog.Nop(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler, building it on first use.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() { s.handler = s.routes() })
	return s.handler
}

// Start listens on cfg.Addr and serves until Stop.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(l)
}

// Serve serves on l until Stop. It returns nil after a graceful shutdown,
// including one that happened before Serve was called.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info().Str("addr", l.Addr().String()).Msg("HTTP server listening")
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server within ctx.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
