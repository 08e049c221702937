// Package api serves the bridge actions, state and journal over HTTP and
// streams bridge events over WebSocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skobkin/meshbridge/internal/actions"
	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/config"
	"github.com/skobkin/meshbridge/internal/connectors"
	"github.com/skobkin/meshbridge/internal/domain"
)

const (
	readHeaderTimeout       = 5 * time.Second
	gracefulShutdownTimeout = 10 * time.Second
	actionTimeout           = 10 * time.Second
)

// NodeSource lists the nodes known to the bridge.
type NodeSource interface {
	SnapshotSorted() []domain.Node
}

// ConnectionSource reports the last known transport status.
type ConnectionSource interface {
	CurrentConnStatus() connectors.ConnStatus
}

// Deps are the collaborators of a Server. Messages and Events may be nil
// when the journal is disabled.
// HealthCheck reports whether an optional dependency is usable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Logger     *slog.Logger
	Config     config.HTTPConfig
	Bus        bus.MessageBus
	Bridge     actions.Bridge
	Nodes      NodeSource
	Connection ConnectionSource
	Messages   domain.MessageRepository
	Events     domain.EventRepository
	Health     map[string]HealthCheck
}

type Server struct {
	logger    *slog.Logger
	cfg       config.HTTPConfig
	jwtSecret string
	bus       bus.MessageBus
	bridge    actions.Bridge
	nodes     NodeSource
	conn      ConnectionSource
	messages  domain.MessageRepository
	events    domain.EventRepository
	health    map[string]HealthCheck
	hub       *Hub
	server    *http.Server
}

func New(deps Deps) (*Server, error) {
	if deps.Bridge == nil || deps.Bus == nil {
		return nil, errors.New("api: bridge and bus are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:    logger,
		cfg:       deps.Config,
		jwtSecret: deps.Config.JWTSecret,
		bus:       deps.Bus,
		bridge:    deps.Bridge,
		nodes:     deps.Nodes,
		conn:      deps.Connection,
		messages:  deps.Messages,
		events:    deps.Events,
		health:    deps.Health,
	}
	s.hub = newHub(s)
	return s, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/state", s.handleState)
		r.Get("/connection", s.handleConnection)
		r.Get("/nodes", s.handleNodes)
		r.Get("/messages", s.handleMessages)
		r.Get("/events/recent", s.handleRecentEvents)
		r.Get("/events", s.handleEvents)
		r.Post("/actions/{action}", s.handleAction)
	})

	return r
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	s.hub.start(hubCtx, s.bus)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", ln.Addr().String(), "auth", s.jwtSecret != "")
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
