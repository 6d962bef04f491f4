package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                      `json:"timestamp"`
	Version       string                      `json:"version"`
	UptimeSeconds int64                       `json:"uptime_seconds"`
	Health        purelink.HealthStatus       `json:"health"`
	Runtime       RuntimeMetrics              `json:"runtime"`
	Summary       ApplianceSummary            `json:"summary"`
	WebSocket     HubStats                    `json:"websocket"`
	Appliances    []purelink.ApplianceMetrics `json:"appliances"`
	Database      *DatabaseMetrics            `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// ApplianceSummary counts configured appliances by status.
type ApplianceSummary struct {
	Configured int `json:"configured"`
	Connected  int `json:"connected"`
	Awaiting   int `json:"awaiting_response"`
	Invalid    int `json:"invalid"`
}

func summarize(metrics []purelink.ApplianceMetrics, invalid int) ApplianceSummary {
	sum := ApplianceSummary{Configured: len(metrics) + invalid, Invalid: invalid}
	for _, m := range metrics {
		if m.Stats.Connected {
			sum.Connected++
		}
		if m.Stats.Link == purelink.LinkAwaitingResponse {
			sum.Awaiting++
		}
	}
	return sum
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics reports appliance status counts, correlation counters per
// appliance, WebSocket delivery and runtime/pool statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	appliances := s.bridge.Metrics()
	if appliances == nil {
		appliances = []purelink.ApplianceMetrics{}
	}

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Health:        s.bridge.Health(),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Summary:    summarize(appliances, len(s.bridge.Invalid())),
		WebSocket:  s.hub.Stats(),
		Appliances: appliances,
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
