package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementCorrelation = "appliance_correlation"
	measurementLink        = "appliance_link"
)

// ApplianceSample is a point-in-time snapshot of one appliance's
// correlation counters. Counters are cumulative since start.
type ApplianceSample struct {
	ApplianceID string
	Model       string
	Link        string
	Connected   bool

	Refreshes    int64
	CacheHits    int64
	WaitersFired int64
	Timeouts     int64
	Defaults     int64
	Pending      int
}

// WriteApplianceSample records a correlation sample. Non-blocking.
//
//	client.WriteApplianceSample(influxdb.ApplianceSample{
//	    ApplianceID: "NN2-EU-KJA1234A", Model: "455", Link: "CONNECTED_IDLE",
//	    Connected: true, Refreshes: 12, CacheHits: 40,
//	})
func (c *Client) WriteApplianceSample(s ApplianceSample) {
	c.writePoint(measurementCorrelation,
		map[string]string{
			"appliance_id": s.ApplianceID,
			"model":        s.Model,
		},
		map[string]any{
			"link":          s.Link,
			"connected":     s.Connected,
			"refreshes":     s.Refreshes,
			"cache_hits":    s.CacheHits,
			"waiters_fired": s.WaitersFired,
			"timeouts":      s.Timeouts,
			"defaults":      s.Defaults,
			"pending":       s.Pending,
		},
		time.Now(),
	)
}

// WriteLinkEvent records a link state transition for an appliance.
func (c *Client) WriteLinkEvent(applianceID, model, state string, at time.Time) {
	c.writePoint(measurementLink,
		map[string]string{
			"appliance_id": applianceID,
			"model":        model,
		},
		map[string]any{
			"state": state,
		},
		at,
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
