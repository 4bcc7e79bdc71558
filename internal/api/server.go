// Package api provides the HTTP REST API and WebSocket server for the
// Sonos bridge.
//
// It exposes attached speakers, their properties and actions, pairing
// control and album art to user interfaces, and pushes property, action
// and registry events to WebSocket clients.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-sonos/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sonos/internal/speaker"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

const (
	defaultMediaPrefix   = "/media/sonos"
	defaultPairingWindow = 60 * time.Second
)

// Logger is the logging surface the server needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the speaker registry the API reads and controls. It is
// satisfied by *adapter.Adapter.
type Registry interface {
	Speaker(id string) (*speaker.Speaker, error)
	Speakers() []*speaker.Speaker
	RemoveDevice(ctx context.Context, id string) error
	StartPairing(d time.Duration)
	CancelPairing()
	Pairing() bool
	Count() int
}

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// Deps holds the dependencies of the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   Logger

	// Registry is required.
	Registry Registry

	// Hub receives speaker events. When nil the server creates its own,
	// which then only sees events if it is registered as a host.
	Hub *Hub

	// MediaDir is served under MediaPrefix. Empty disables the route.
	MediaDir    string
	MediaPrefix string

	// PairingWindow is used by POST /pairing without a duration.
	PairingWindow time.Duration

	// Checks are run by the health endpoint, keyed by component name.
	Checks map[string]CheckFunc

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	secCfg        config.SecurityConfig
	logger        Logger
	registry      Registry
	mediaDir      string
	mediaPrefix   string
	pairingWindow time.Duration
	checks        map[string]CheckFunc
	version       string
	server        *http.Server
	hub           *Hub
	externalHub   bool
	cancel        context.CancelFunc
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("speaker registry is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		secCfg:        deps.Security,
		logger:        logger,
		registry:      deps.Registry,
		mediaDir:      deps.MediaDir,
		mediaPrefix:   deps.MediaPrefix,
		pairingWindow: deps.PairingWindow,
		checks:        deps.Checks,
		version:       deps.Version,
	}
	if s.mediaPrefix == "" {
		s.mediaPrefix = defaultMediaPrefix
	}
	if s.pairingWindow <= 0 {
		s.pairingWindow = defaultPairingWindow
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, logger)
	}
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the HTTP listener in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close waits up to 10 seconds for in-flight requests, then closes the
// remaining connections.
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

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
