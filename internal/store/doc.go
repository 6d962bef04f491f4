// Package store persists the bridge's small amount of durable state in
// SQLite:
//   - appliances: the registry, including appliances excluded at startup
//   - appliance_state: last-known device state and sensor reading, one
//     overwritten row per appliance
//   - ui_requests: last speed, oscillation and night mode requested from
//     the UI, replayed when the fan is switched on
//
// Nothing is historized. The Persister feeds appliance_state from engine
// observer callbacks without ever blocking the engine.
package store
