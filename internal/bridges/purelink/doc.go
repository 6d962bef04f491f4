// Package purelink bridges networked air-treatment appliances that speak
// the vendor's MQTT status/command protocol.
//
// Each appliance runs its own broker. The package connects one session per
// appliance, normalizes inbound telemetry and control-state messages into
// SensorReading and DeviceState, and turns the fire-and-forget protocol
// into callback accessors with the following guarantees:
//
//   - a read is served from cache while the category is fresh (60s)
//   - otherwise it waits for the next correlating message; concurrent
//     reads share one REQUEST-CURRENT-STATE publish
//   - a lost link resolves every waiter with zero values, and a response
//     timeout resolves them with the last-known values
//   - callbacks never receive errors
//
// # Topics
//
//	{model}/{deviceId}/status/current   appliance → bridge
//	{model}/{deviceId}/command          bridge → appliance
//
// # Usage
//
//	bridge, err := purelink.NewBridge(purelink.BridgeOptions{
//	    Config: cfg,
//	    Logger: log,
//	})
//	if err := bridge.Start(ctx); err != nil { ... }
//	defer bridge.Stop()
//
//	a, _ := bridge.Appliance("NN2-EU-KJA1234A")
//	a.Temperature(func(c float64) { fmt.Println(c) })
package purelink
