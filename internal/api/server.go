// Package api provides the HTTP REST API and WebSocket event stream for
// the WhatsApp gateway.
//
// It exposes session lifecycle operations (create, status, QR retrieval,
// logout, delete), message dispatch (text and media), per-tenant send
// history, and a live event stream for session transitions.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/maddy52/whatsappweb/internal/audit"
	"github.com/maddy52/whatsappweb/internal/infrastructure/config"
	"github.com/maddy52/whatsappweb/internal/infrastructure/logging"
	"github.com/maddy52/whatsappweb/internal/media"
	"github.com/maddy52/whatsappweb/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is anything that can report its own liveness. Optional
// backends (database, broker) are surfaced through the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Media   config.MediaConfig
	Logger  *logging.Logger
	Manager *session.Manager
	Store   *media.Store
	Audit   audit.Repository // optional: message history endpoints 404 without it
	Checks  map[string]HealthChecker
	Version string
}

// Server is the gateway's HTTP API server.
type Server struct {
	cfg      config.APIConfig
	mediaCfg config.MediaConfig
	logger   *logging.Logger
	manager  *session.Manager
	store    *media.Store
	audit    audit.Repository
	checks   map[string]HealthChecker
	version  string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates an API server with the given dependencies. The server is
// not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Manager == nil {
		return nil, errors.New("session manager is required")
	}
	if deps.Config.Secret == "" {
		return nil, errors.New("api secret is required")
	}

	return &Server{
		cfg:      deps.Config,
		mediaCfg: deps.Media,
		logger:   deps.Logger,
		manager:  deps.Manager,
		store:    deps.Store,
		audit:    deps.Audit,
		checks:   deps.Checks,
		version:  deps.Version,
	}, nil
}

// Start builds the router, wires the WebSocket hub into the session
// manager's transition hooks, and launches the HTTP listener in a
// background goroutine. Stop with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.logger)
	go s.hub.Run(srvCtx)

	// Every lifecycle transition is fanned out to connected event-stream
	// clients watching that tenant.
	s.manager.OnTransition(func(status session.Status, event string) {
		s.hub.BroadcastTransition(status, event)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server, waiting up to the shutdown
// timeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
