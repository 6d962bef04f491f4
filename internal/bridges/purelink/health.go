package purelink

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/influxdb"
)

const defaultHealthInterval = 30 * time.Second

// HealthStatus summarises appliance connectivity.
type HealthStatus string

// Health statuses.
const (
	// HealthHealthy means every appliance is connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded means some appliances are disconnected.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline means no appliance is connected.
	HealthOffline HealthStatus = "offline"

	// HealthIdle means no valid appliance is configured.
	HealthIdle HealthStatus = "idle"
)

func statusOf(metrics []ApplianceMetrics) HealthStatus {
	if len(metrics) == 0 {
		return HealthIdle
	}
	connected := 0
	for _, m := range metrics {
		if m.Stats.Connected {
			connected++
		}
	}
	switch connected {
	case len(metrics):
		return HealthHealthy
	case 0:
		return HealthOffline
	default:
		return HealthDegraded
	}
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Interval defaults to 30 seconds.
	Interval time.Duration

	// Source supplies the samples for each tick.
	Source func() []ApplianceMetrics

	// Sink is optional.
	Sink MetricsSink

	Logger Logger
}

// HealthReporter periodically exports correlation counters and logs a
// connectivity summary.
type HealthReporter struct {
	interval time.Duration
	source   func() []ApplianceMetrics
	sink     MetricsSink
	logger   Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
	startMu  sync.Mutex
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		interval: interval,
		source:   cfg.Source,
		sink:     cfg.Sink,
		logger:   cfg.Logger,
		done:     make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if h.started {
		return
	}
	h.started = true

	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop waits for the report loop to finish and writes one final sample.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		h.ReportNow()
	})
}

// ReportNow exports one sample per appliance and returns the overall status.
func (h *HealthReporter) ReportNow() HealthStatus {
	if h.source == nil {
		return HealthIdle
	}
	metrics := h.source()
	status := statusOf(metrics)

	if h.sink != nil {
		for _, m := range metrics {
			h.sink.WriteApplianceSample(influxdb.ApplianceSample{
				ApplianceID:  m.ID,
				Model:        m.Model,
				Link:         m.Stats.Link.String(),
				Connected:    m.Stats.Connected,
				Refreshes:    m.Stats.Refreshes,
				CacheHits:    m.Stats.CacheHits,
				WaitersFired: m.Stats.WaitersFired,
				Timeouts:     m.Stats.Timeouts,
				Defaults:     m.Stats.Defaults,
				Pending:      m.Stats.Pending,
			})
		}
	}

	if h.logger != nil {
		h.logger.Debug("bridge health", "status", string(status), "appliances", len(metrics))
	}
	return status
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.ReportNow()
		}
	}
}
