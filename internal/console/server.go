package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fleetdesk/fleetdesk-client/internal/device"
	"github.com/fleetdesk/fleetdesk-client/internal/fleetapi"
	"github.com/fleetdesk/fleetdesk-client/internal/infrastructure/config"
	"github.com/fleetdesk/fleetdesk-client/internal/infrastructure/logging"
	"github.com/fleetdesk/fleetdesk-client/internal/realtime"
	"github.com/fleetdesk/fleetdesk-client/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// FleetAPI is the part of the fleet server client the console calls.
// *fleetapi.Client satisfies it.
type FleetAPI interface {
	Login(ctx context.Context, username, password string) (fleetapi.Token, error)
	Me(ctx context.Context, token string) (session.User, error)
	Occupy(ctx context.Context, deviceID, notes string) (fleetapi.Message, error)
	Release(ctx context.Context, deviceID string) (fleetapi.Message, error)
	UpdateDevice(ctx context.Context, deviceID string, upd fleetapi.DeviceUpdate) (fleetapi.Message, error)
	DeviceLogs(ctx context.Context, deviceID string, skip, limit int) ([]fleetapi.UsageLog, error)
	ScanDevices(ctx context.Context) (map[string]any, error)
}

// Channel is the realtime channel as seen by the console.
// *realtime.Manager satisfies it.
type Channel interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() realtime.State
	ReconnectPending() bool
}

// Refresher re-fetches the device collection. *device.Syncer satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Deps holds the dependencies required by the console server.
type Deps struct {
	Config  config.ConsoleConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Session *session.Store
	Cache   *device.Cache
	API     FleetAPI
	Syncer  Refresher
	Channel Channel
	// Hub, if set, is used instead of a server-owned hub so it can be
	// subscribed to the listener registry before the server starts.
	Hub *Hub
	// TerminalBase is the http(s) or ws(s) base the terminal URL is built on.
	TerminalBase string
	Version      string
}

// Server is the local console HTTP server.
type Server struct {
	cfg          config.ConsoleConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	session      *session.Store
	cache        *device.Cache
	api          FleetAPI
	syncer       Refresher
	channel      Channel
	terminalBase string
	version      string

	hub         *Hub
	externalHub bool

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new console server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger, Session, Cache and API are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("device cache is required")
	}
	if deps.API == nil {
		return nil, fmt.Errorf("fleet API client is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		session:      deps.Session,
		cache:        deps.Cache,
		api:          deps.API,
		syncer:       deps.Syncer,
		channel:      deps.Channel,
		terminalBase: deps.TerminalBase,
		version:      deps.Version,
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the server's event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listen address and serves in a background goroutine.
//
// Binding happens before Start returns, so a port already in use is
// reported here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("console already started")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding console address %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("console listening", "address", ln.Addr().String())

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("console server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the console server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("console shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down console: %w", err)
	}
	return nil
}

// HealthCheck verifies the console is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("console health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("console not started")
	}
	return nil
}
