// Package api provides the HTTP REST API and WebSocket server for the
// control network core.
//
// The server follows the same lifecycle pattern as other infrastructure components:
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

	"github.com/nerrad567/controlnet-core/internal/audit"
	"github.com/nerrad567/controlnet-core/internal/automation"
	"github.com/nerrad567/controlnet-core/internal/control"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/config"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/logging"
	"github.com/nerrad567/controlnet-core/internal/network"
	"github.com/nerrad567/controlnet-core/internal/node"
	"github.com/nerrad567/controlnet-core/internal/remote"
	"github.com/nerrad567/controlnet-core/internal/routing"
	"github.com/nerrad567/controlnet-core/internal/safety"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the runtime surface the API drives. *network.Runtime
// satisfies it.
type Controller interface {
	RegisterControlNode(id string, typ node.Type, meta node.Metadata) (node.Node, error)
	UnregisterControlNode(id string) bool
	Nodes() []node.Node
	ProcessControlSignal(typ string, data map[string]any, source string, opts routing.Options) (signal.Signal, error)

	Rules() []automation.Info
	EnableRule(id string) error
	DisableRule(id string) error

	Loops() []control.Info
	UpdateLoop(id string, u control.Update) (control.Info, error)
	TuneLoop(id, profile string) (control.Info, error)

	ActivateEmergencyStop(id, reason string) (safety.ActivationReport, error)
	ResetEmergencyMode(operator, reason string) error
	IssuePermit(holder, scope string, ttl time.Duration) (safety.Permit, error)
	RevokePermit(id string) error
	Permits() []safety.Permit

	Alarms(limit int) []network.Alarm
	AcknowledgeAlarm(id, operator string) (network.Alarm, error)

	RemoteSites() []remote.Site

	GetSystemStatus() network.SystemStatus
	GetMetrics() network.Metrics
	Mode() network.Mode

	SubscribeAll(h eventbus.Handler) eventbus.Subscription
	Unsubscribe(s eventbus.Subscription)
}

// ConnectionChecker reports broker connectivity. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Runtime Controller

	// Optional.
	MQTT        ConnectionChecker
	AuditRepo   audit.Repository
	PromHandler http.Handler
	Components  map[string]StatsFunc
	Version     string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	runtime     Controller
	mqtt        ConnectionChecker
	auditRepo   audit.Repository
	promHandler http.Handler
	components  map[string]StatsFunc
	version     string
	startTime   time.Time

	server *http.Server
	hub    *Hub
	sub    eventbus.Subscription
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Runtime == nil {
		return nil, fmt.Errorf("runtime is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		runtime:     deps.Runtime,
		mqtt:        deps.MQTT,
		auditRepo:   deps.AuditRepo,
		promHandler: deps.PromHandler,
		components:  deps.Components,
		version:     deps.Version,
		startTime:   time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, forwards runtime events to it and launches
// the HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.sub = s.runtime.SubscribeAll(s.hub.Publish)

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
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	s.runtime.Unsubscribe(s.sub)
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
		return fmt.Errorf("api server not started")
	}

	return nil
}
