// Package server implements the bin's HTTP control server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/internal/server/handlers"
)

// DefaultAddr is used when the config names no address.
const DefaultAddr = ":3000"

// Server is the control HTTP server.
type Server struct {
	router chi.Router
	addr   string
	logger *slog.Logger

	mu      sync.Mutex
	srv     *http.Server
	stopped bool
}

// Options configure a Server.
type Options struct {
	Addr   string
	APIKey string
	BinID  string
	Logger *slog.Logger
}

// New creates a new HTTP server. store may be nil when no event store is configured.
func New(ctrl handlers.Controller, store provider.Store, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{addr: opts.Addr, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(SlogMiddleware(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(APIKeyMiddleware(opts.APIKey))

	s.router = r
	s.registerRoutes(r, handlers.New(ctrl, store, opts.BinID, opts.Logger))
	return s
}

// Handler returns the router, for embedding in tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Stop is called. It returns nil after a clean shutdown,
// including when Stop ran first.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("control server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	srv := s.srv
	s.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
