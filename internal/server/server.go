// Package server exposes the latest received message over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mqtt-query-bridge/config"
	"mqtt-query-bridge/internal/logger"
	"mqtt-query-bridge/internal/stats"
	"mqtt-query-bridge/internal/store"
)

// Querier answers latest-message queries.
type Querier interface {
	LatestMessage() (store.Message, bool)
	LatestMessageFor(topic string) (store.Message, bool)
}

// Status reports broker connectivity for the readiness probe.
type Status interface {
	IsConnected() bool
}

// Server serves the query, health and stats endpoints.
type Server struct {
	config  config.HTTPConfig
	query   Querier
	status  Status
	stats   *stats.StatsCollector
	logger  *logger.Logger
	limiter *rate.Limiter
	origins map[string]bool
	server  *http.Server

	mu       sync.RWMutex
	listener net.Listener
}

// New creates a server. status and statsCollector may be nil.
func New(cfg config.HTTPConfig, q Querier, status Status, statsCollector *stats.StatsCollector, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		config:  cfg,
		query:   q,
		status:  status,
		stats:   statsCollector,
		logger:  log,
		origins: make(map[string]bool, len(cfg.AllowedOrigins)),
	}

	for _, origin := range cfg.AllowedOrigins {
		s.origins[origin] = true
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/message", s.handleMessage)
	mux.HandleFunc("/message/", s.handleMessage)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/stats", s.handleStats)

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.withCORS(s.withRateLimit(mux)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listener's network address.
// Returns "" if the server hasn't started listening yet.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Listen serves until ctx is done, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("starting http server", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("http server shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
			return err
		}

		s.logger.Info("http server stopped")
		return nil
	}
}
