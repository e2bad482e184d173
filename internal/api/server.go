package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/socialforge/outreach/internal/auth"
)

// Server is the HTTP front of the outreach engine.
type Server struct {
	handler     http.Handler
	handlers    *Handlers
	server      *http.Server
	authManager *auth.Manager
	router      *chi.Mux
	apiRouter   chi.Router // /api subtree, carries the auth middleware
}

// NewServer assembles the router. authManager may be nil for deployments
// without SSO (the /api routes are then open; combine with network
// controls).
func NewServer(handlers *Handlers, hc *HealthChecker, authManager *auth.Manager) *Server {
	router, apiRouter := SetupRoutes(handlers, hc, authManager)

	return &Server{
		handler:     router,
		handlers:    handlers,
		authManager: authManager,
		router:      router,
		apiRouter:   apiRouter,
	}
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// Generous body timeouts for media uploads; individual endpoints
		// bound their own work with context deadlines.
		ReadTimeout:       5 * time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the assembled router, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}
