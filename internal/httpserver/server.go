// Package httpserver serves install sessions over HTTP.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relicta-tech/installkit/internal/config"
	"github.com/relicta-tech/installkit/internal/httpserver/handlers"
	"github.com/relicta-tech/installkit/internal/httpserver/middleware"
	httpws "github.com/relicta-tech/installkit/internal/httpserver/websocket"
	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/observability"
)

const shutdownTimeout = 30 * time.Second

// Server is the session API server.
type Server struct {
	config     config.ServerConfig
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
	wsHub      *httpws.Hub
	api        *handlers.Handler
	limiter    *middleware.RateLimiter
	metrics    *observability.Metrics
}

// ServerDeps contains dependencies for creating a new server.
type ServerDeps struct {
	Config   config.ServerConfig
	Services app.Services
	Advisor  *app.UpdateAdvisor
	Metrics  *observability.Metrics
	Logger   *slog.Logger
	// MaxUploadBytes bounds local uploads; zero keeps the handler default.
	MaxUploadBytes int64
	SessionTTL     time.Duration
	Version        string
}

// NewServer creates a server. Nothing listens until Start.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:  deps.Config,
		logger:  logger,
		wsHub:   httpws.NewHub(logger),
		limiter: middleware.NewRateLimiter(deps.Config.RateLimit),
		metrics: deps.Metrics,
	}
	s.api = handlers.New(handlers.Options{
		Services:       deps.Services,
		Advisor:        deps.Advisor,
		Events:         httpws.NewBroadcaster(s.wsHub),
		Sessions:       handlers.NewSessionStore(deps.SessionTTL),
		Logger:         logger,
		MaxUploadBytes: deps.MaxUploadBytes,
		Version:        deps.Version,
	})
	s.router = s.setupRouter()

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads and WebSocket streams have no write deadline.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Start listens and serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go s.wsHub.Run(ctx)
	s.logger.Info("session API listening", "addr", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx) //nolint:contextcheck // new context for graceful shutdown
	case err := <-errChan:
		s.api.Close()
		_ = s.limiter.Close()
		return err
	}
}

// Shutdown stops accepting requests, cancels every session and waits for
// running installs to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Close()
	err := s.httpServer.Shutdown(ctx)
	s.api.Close()
	_ = s.limiter.Close()
	return err
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Addr
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *httpws.Hub {
	return s.wsHub
}
