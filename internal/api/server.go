package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/slotlink-core/internal/audit"
	"github.com/nerrad567/slotlink-core/internal/auth"
	"github.com/nerrad567/slotlink-core/internal/camera"
	"github.com/nerrad567/slotlink-core/internal/control"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/config"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/logging"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/redis"
	"github.com/nerrad567/slotlink-core/internal/listener"
	"github.com/nerrad567/slotlink-core/internal/slot"
	"github.com/nerrad567/slotlink-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Ingestor stores a reading pushed over HTTP.
type Ingestor interface {
	Ingest(ctx context.Context, n int, raw any) (*telemetry.Reading, error)
}

// Dispatcher sends a control command to a device.
type Dispatcher interface {
	Dispatch(ctx context.Context, n int, cmd control.Command) error
}

// ImageStore holds the latest camera frame per slot.
type ImageStore interface {
	Save(ctx context.Context, n int, imageData string) (*camera.Image, error)
	Get(ctx context.Context, n int) (*camera.Image, error)
	MaxImageSize() int
}

// Transport reports the broker connection.
type Transport interface {
	IsConnected() bool
}

// ListenerStatus exposes the inbound MQTT pipeline.
type ListenerStatus interface {
	State() listener.State
	Stats() listener.Stats
	DeviceStatus() map[int]listener.DeviceStatus
}

// Database is the subset of *database.DB used for health and metrics.
type Database interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
}

// LatestCache is the optional hot cache of latest values. GetLatest returns
// nil on a miss. *redis.Client satisfies it.
type LatestCache interface {
	GetLatest(ctx context.Context, slotNumber int) (*redis.Latest, error)
	DeleteLatest(ctx context.Context, slotNumber int) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Broker config.MQTTBrokerConfig
	Logger *logging.Logger

	Registry   *slot.Registry
	Readings   telemetry.ReadingRepository
	Alerts     telemetry.AlertRepository
	Ingestor   Ingestor
	Images     ImageStore
	Dispatcher Dispatcher
	Auth       *auth.Service
	Users      auth.UserRepository
	AuditRepo  audit.Repository
	Audit      *audit.Writer

	// Optional.
	DB          Database
	MQTT        Transport
	Listener    ListenerStatus
	LatestCache LatestCache
	ExternalHub *Hub // If set, the server uses this hub instead of creating its own

	Version string
	DataDir string // disk usage in metrics; defaults to "/"
}

// Server is the HTTP API server for Slotlink Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	broker   config.MQTTBrokerConfig
	logger   *logging.Logger
	version  string
	dataDir  string
	registry *slot.Registry
	readings telemetry.ReadingRepository
	alerts   telemetry.AlertRepository
	ingestor Ingestor
	images   ImageStore
	dispatch Dispatcher
	authSvc  *auth.Service
	users    auth.UserRepository
	auditLog audit.Repository
	audit    *audit.Writer
	db       Database
	mqtt     Transport
	listener ListenerStatus
	cache    LatestCache
	tickets  *ticketStore

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	startTime   time.Time          // for uptime in metrics
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("slot registry is required")
	}
	if deps.Readings == nil || deps.Alerts == nil || deps.Ingestor == nil {
		return nil, errors.New("telemetry dependencies are required")
	}
	if deps.Auth == nil || deps.Users == nil {
		return nil, errors.New("auth dependencies are required")
	}
	if deps.Images == nil {
		return nil, errors.New("camera store is required")
	}
	// Dispatcher and MQTT are optional; control commands fail without them.

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		broker:    deps.Broker,
		logger:    deps.Logger,
		version:   deps.Version,
		dataDir:   deps.DataDir,
		registry:  deps.Registry,
		readings:  deps.Readings,
		alerts:    deps.Alerts,
		ingestor:  deps.Ingestor,
		images:    deps.Images,
		dispatch:  deps.Dispatcher,
		authSvc:   deps.Auth,
		users:     deps.Users,
		auditLog:  deps.AuditRepo,
		audit:     deps.Audit,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		listener:  deps.Listener,
		cache:     deps.LatestCache,
		tickets:   newTicketStore(),
		startTime: time.Now(),
	}

	if s.dataDir == "" {
		s.dataDir = "/"
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Handler builds the router. The hub must be running before WebSocket
// clients connect; Start takes care of that.
func (s *Server) Handler() http.Handler {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	go s.tickets.cleanLoop(srvCtx)

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

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
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

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) mqttConnected() bool {
	return s.mqtt != nil && s.mqtt.IsConnected()
}
