package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/accessory"
	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/airlink-bridge/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StateLoader returns the persisted last-known state of an appliance.
// *store.StateRepository satisfies it.
type StateLoader interface {
	Load(ctx context.Context, applianceID string) (store.LastKnown, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Bridge      *purelink.Bridge
	Accessories []*accessory.Accessory
	States      StateLoader   // optional
	DB          *sql.DB       // optional, for health and pool metrics
	Hub         *Hub          // optional; created by New when nil
	Metrics     HealthChecker // optional metrics sink, reported by /health
	Version     string
}

// HealthChecker is a dependency whose liveness /health reports without
// failing the request.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	bridge      *purelink.Bridge
	accessories map[string]*accessory.Accessory
	states      StateLoader
	db          *sql.DB
	metrics     HealthChecker
	version     string
	startTime   time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		bridge:      deps.Bridge,
		accessories: make(map[string]*accessory.Accessory, len(deps.Accessories)),
		states:      deps.States,
		db:          deps.DB,
		metrics:     deps.Metrics,
		version:     deps.Version,
		startTime:   time.Now(),
	}
	for _, acc := range deps.Accessories {
		s.accessories[acc.Appliance().ID()] = acc
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	s.hub.SetReplay(s.currentEvents)

	return s, nil
}

// currentEvents renders the cached view of every appliance for channel.
// Models that have never been received are skipped.
func (s *Server) currentEvents(channel string) []Event {
	var out []Event
	for _, a := range s.bridge.Appliances() {
		id := a.ID()
		switch channel {
		case ChannelState:
			if st := a.Engine().Device(); !st.UpdatedAt.IsZero() {
				out = append(out, Event{Channel: channel, ApplianceID: id, Payload: StatePayload{ApplianceID: id, State: st}})
			}
		case ChannelSensor:
			if r := a.Engine().Cached().Sensor; !r.UpdatedAt.IsZero() {
				out = append(out, Event{Channel: channel, ApplianceID: id, Payload: SensorPayload{ApplianceID: id, Reading: r}})
			}
		case ChannelLink:
			out = append(out, Event{Channel: channel, ApplianceID: id, Payload: LinkPayload{ApplianceID: id, Link: a.Engine().Link()}})
		}
	}
	return out
}

// Hub returns the WebSocket hub, e.g. to register it as an engine observer.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
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

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
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
		return fmt.Errorf("api server not started")
	}
	return nil
}
