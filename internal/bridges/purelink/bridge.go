package purelink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/mqtt"
)

// Logger interface for optional logging.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MetricsSink receives operational metrics. *influxdb.Client satisfies it.
type MetricsSink interface {
	WriteApplianceSample(s influxdb.ApplianceSample)
	WriteLinkEvent(applianceID, model, state string, at time.Time)
}

// DialFunc creates the broker session for one appliance without
// connecting it.
type DialFunc func(opts mqtt.Options) Session

// InvalidAppliance is a configured appliance excluded from the bridge.
type InvalidAppliance struct {
	DisplayName  string `json:"display_name"`
	SerialNumber string `json:"serial_number"`
	Reason       string `json:"reason"`
	Err          error  `json:"-"`
}

// ApplianceMetrics pairs an appliance with its correlation counters.
type ApplianceMetrics struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Model string      `json:"model"`
	Stats EngineStats `json:"stats"`
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded configuration.
	Config *config.Config

	// Dial creates appliance sessions. Defaults to mqtt.NewClient.
	Dial DialFunc

	// Logger is optional structured logger.
	Logger Logger

	// Observers are attached to every appliance engine.
	Observers []Observer

	// Sink is optional; when set, link transitions and periodic samples
	// are exported to it.
	Sink MetricsSink
}

// Bridge owns every configured appliance.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg        *config.Config
	appliances []*Appliance
	byID       map[string]*Appliance
	invalid    []InvalidAppliance
	health     *HealthReporter

	failedMu sync.Mutex
	failed   map[string]error

	stopOnce sync.Once

	logger Logger
}

// NewBridge builds appliances from configuration. Appliances with a bad
// serial number, credential or address are excluded and reported by
// Invalid; the rest are unaffected.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, ErrConfigRequired
	}

	dial := opts.Dial
	if dial == nil {
		dial = func(o mqtt.Options) Session {
			c := mqtt.NewClient(o)
			if opts.Logger != nil {
				c.SetLogger(opts.Logger)
			}
			return c
		}
	}

	b := &Bridge{
		cfg:    opts.Config,
		byID:   make(map[string]*Appliance),
		logger: opts.Logger,
	}

	for _, ac := range opts.Config.Appliances {
		a, err := b.buildAppliance(ac, dial, opts)
		if err != nil {
			b.invalid = append(b.invalid, InvalidAppliance{
				DisplayName:  ac.DisplayName,
				SerialNumber: ac.SerialNumber,
				Reason:       err.Error(),
				Err:          err,
			})
			b.logWarn("appliance excluded", "display_name", ac.DisplayName, "error", err)
			continue
		}
		b.appliances = append(b.appliances, a)
		b.byID[a.ID()] = a
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Interval: opts.Config.GetHealthInterval(),
		Source:   b.Metrics,
		Sink:     opts.Sink,
		Logger:   opts.Logger,
	})

	return b, nil
}

func (b *Bridge) buildAppliance(ac config.ApplianceConfig, dial DialFunc, opts BridgeOptions) (*Appliance, error) {
	id, err := ParseSerial(ac.SerialNumber)
	if err != nil {
		return nil, err
	}
	if _, dup := b.byID[id.DeviceID]; dup {
		return nil, fmt.Errorf("duplicate device id %s", id.DeviceID)
	}

	password, err := DeriveCredential(ac.Credential, ac.CredentialMode, id)
	if err != nil {
		return nil, err
	}

	clientID := fmt.Sprintf("%s-%s", b.cfg.MQTT.ClientIDPrefix, id.DeviceID)
	sessionOpts, err := mqtt.OptionsFor(b.cfg.MQTT, ac.Address, clientID, id.DeviceID, password)
	if err != nil {
		return nil, err
	}

	observers := append([]Observer(nil), opts.Observers...)
	if opts.Sink != nil {
		observers = append(observers, linkExporter{sink: opts.Sink, model: id.Model})
	}

	caps := id.Capabilities(ac.NightModeInverted)
	engine, err := NewEngine(EngineOptions{
		Identity:        id,
		Caps:            caps,
		Session:         dial(sessionOpts),
		QoS:             sessionOpts.QoS,
		FreshnessWindow: b.cfg.GetFreshnessWindow(),
		ResponseTimeout: b.cfg.GetResponseTimeout(),
		HighWaterMark:   b.cfg.Correlation.HighWaterMark,
		Logger:          opts.Logger,
		Observers:       observers,
	})
	if err != nil {
		return nil, err
	}

	encoder := Encoder{Caps: caps, OscillationDelay: b.cfg.GetOscillationDelay()}
	return newAppliance(ac, id, caps, engine, encoder), nil
}

// Start starts every appliance session concurrently and waits up to the
// MQTT connect timeout for each to connect. An appliance that is not yet
// reachable is logged and keeps retrying in the background. An appliance
// whose session cannot start is logged and reported by StartFailures.
func (b *Bridge) Start(ctx context.Context) error {
	wait := time.Duration(b.cfg.MQTT.ConnectTimeout) * time.Second

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range b.appliances {
		g.Go(func() error {
			if err := a.engine.Start(); err != nil {
				b.recordFailure(a.ID(), err)
				b.logError("starting appliance session", fmt.Errorf("start %s: %w", a.ID(), err))
				return nil
			}

			waitCtx, cancel := context.WithTimeout(gctx, wait)
			defer cancel()
			if err := a.engine.WaitConnected(waitCtx); err != nil {
				b.logWarn("appliance not connected yet", "appliance", a.ID(), "address", a.cfg.Address, "error", err)
				return nil
			}
			b.logInfo("appliance ready", "appliance", a.ID(), "name", a.Name(), "model", a.id.Model)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b.health.Start(ctx)

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"appliances", len(b.appliances),
		"invalid", len(b.invalid))
	return nil
}

func (b *Bridge) recordFailure(id string, err error) {
	b.failedMu.Lock()
	defer b.failedMu.Unlock()
	if b.failed == nil {
		b.failed = make(map[string]error)
	}
	b.failed[id] = err
}

// StartFailures returns the appliances whose session could not be
// started, keyed by appliance id. The other appliances are unaffected.
func (b *Bridge) StartFailures() map[string]error {
	b.failedMu.Lock()
	defer b.failedMu.Unlock()
	out := make(map[string]error, len(b.failed))
	for id, err := range b.failed {
		out[id] = err
	}
	return out
}

// Stop closes every appliance. Pending reads resolve with defaults.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.health.Stop()

		for _, a := range b.appliances {
			if err := a.engine.Close(); err != nil {
				b.logError("closing appliance session", err)
			}
		}

		b.logInfo("bridge stopped")
	})
}

// Appliances returns valid appliances in configuration order.
func (b *Bridge) Appliances() []*Appliance {
	out := make([]*Appliance, len(b.appliances))
	copy(out, b.appliances)
	return out
}

// Appliance looks up an appliance by device id.
func (b *Bridge) Appliance(id string) (*Appliance, error) {
	a, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAppliance, id)
	}
	return a, nil
}

// Invalid returns appliances excluded at construction.
func (b *Bridge) Invalid() []InvalidAppliance {
	out := make([]InvalidAppliance, len(b.invalid))
	copy(out, b.invalid)
	return out
}

// Metrics returns per-appliance correlation counters.
func (b *Bridge) Metrics() []ApplianceMetrics {
	out := make([]ApplianceMetrics, 0, len(b.appliances))
	for _, a := range b.appliances {
		out = append(out, ApplianceMetrics{
			ID:    a.ID(),
			Name:  a.Name(),
			Model: a.id.Model,
			Stats: a.engine.Stats(),
		})
	}
	return out
}

// Health summarises appliance connectivity.
func (b *Bridge) Health() HealthStatus {
	return statusOf(b.Metrics())
}

// linkExporter forwards link transitions to a metrics sink.
type linkExporter struct {
	sink  MetricsSink
	model string
}

func (linkExporter) OnSensor(string, SensorReading) {}
func (linkExporter) OnDevice(string, DeviceState)   {}

func (l linkExporter) OnLink(applianceID string, state LinkState) {
	l.sink.WriteLinkEvent(applianceID, l.model, state.String(), time.Now())
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}
