package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/listvault/internal/config"
)

// Server represents the API server
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, handlers *Handlers, health *HealthChecker) *Server {
	h := SetupRoutes(handlers, health, cfg.AllowedOrigins)
	return &Server{
		handler: h,
		server: &http.Server{
			Addr:    cfg.Addr(),
			Handler: h,
			// Uploads and streamed exports can run for minutes.
			ReadTimeout:       5 * time.Minute,
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      30 * time.Minute,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
