// Package influxdb exports bridge operational metrics to InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management, health
// checks and non-blocking batched writes. Two measurements are written:
//   - appliance_correlation: periodic per-appliance counters (refresh
//     publishes, cache hits, waiters fired, timeouts, default resolutions)
//   - appliance_link: link state transitions
//
// Environmental readings are not written; the bridge keeps no sensor history.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Bridge.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics export switched off
//	}
//	defer client.Close()
//
//	client.WriteLinkEvent("NN2-EU-KJA1234A", "455", "CONNECTED_IDLE", time.Now())
package influxdb
