// Package api provides the HTTP REST API and WebSocket server for the
// SafeWalk core.
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
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/safewalk-core/internal/alert"
	"github.com/nerrad567/safewalk-core/internal/audit"
	"github.com/nerrad567/safewalk-core/internal/geo"
	"github.com/nerrad567/safewalk-core/internal/identity"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/config"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/logging"
	"github.com/nerrad567/safewalk-core/internal/monitor"
	"github.com/nerrad567/safewalk-core/internal/sensor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SafetyMonitor is the monitor surface driven by the API.
type SafetyMonitor interface {
	Status() monitor.Status
	SystemStatus() monitor.SystemStatus
	Start()
	Stop()
	Reset()
	Confirm(ctx context.Context, safe bool) (*alert.Report, error)
	EnableKeywordListening() error
	TriggerSOS(ctx context.Context, message string) (*alert.Report, error)
}

// ZoneLister returns the cached red zones.
type ZoneLister interface {
	Zones() ([]geo.Zone, error)
}

// AlertLog lists recorded admin alerts, newest first.
type AlertLog interface {
	Recent(ctx context.Context, limit int) ([]alert.AdminAlert, error)
}

// NotificationLog lists a user's notifications, newest first.
type NotificationLog interface {
	ListFor(ctx context.Context, recipientID string, limit int) ([]alert.Notification, error)
}

// BusStatus reports the MQTT connection state.
type BusStatus interface {
	IsConnected() bool
}

// DBStats reports database pool statistics.
type DBStats interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	WS            config.WebSocketConfig
	Security      config.SecurityConfig
	Logger        *logging.Logger
	Monitor       SafetyMonitor
	Session       *identity.Session
	Permissions   *sensor.Permissions
	Zones         ZoneLister
	Alerts        AlertLog
	Notifications NotificationLog
	AuditRepo     audit.Repository
	MQTT          BusStatus
	DB            DBStats
	ExternalHub   *Hub // If set, the server uses this hub instead of creating its own
	Version       string
}

// Server is the HTTP API server for the SafeWalk core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	secCfg        config.SecurityConfig
	logger        *logging.Logger
	monitor       SafetyMonitor
	session       *identity.Session
	permissions   *sensor.Permissions
	zones         ZoneLister
	alerts        AlertLog
	notifications NotificationLog
	auditRepo     audit.Repository
	mqtt          BusStatus
	db            DBStats
	version       string
	startTime     time.Time
	server        *http.Server
	hub           *Hub
	externalHub   bool               // true if hub was injected externally
	cancel        context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, monitor, session)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Monitor == nil {
		return nil, fmt.Errorf("safety monitor is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("identity session is required")
	}
	if deps.Permissions == nil {
		deps.Permissions = sensor.NewPermissions()
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		secCfg:        deps.Security,
		logger:        deps.Logger,
		monitor:       deps.Monitor,
		session:       deps.Session,
		permissions:   deps.Permissions,
		zones:         deps.Zones,
		alerts:        deps.Alerts,
		notifications: deps.Notifications,
		auditRepo:     deps.AuditRepo,
		mqtt:          deps.MQTT,
		db:            deps.DB,
		version:       deps.Version,
		startTime:     time.Now(),
	}
	// The monitor broadcasts through the hub, so main creates it first and
	// injects it here.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
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
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
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

// Hub returns the WebSocket hub, creating it if Start has not run yet.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
