// Package api implements the HTTP REST API and WebSocket server of the
// bridge. It stands in for the home-automation host: every exposed
// characteristic of every appliance can be read and written over HTTP,
// and model updates and link transitions are pushed to WebSocket clients.
//
// # Endpoints
//
//	GET  /api/v1/health
//	GET  /api/v1/metrics
//	POST /api/v1/auth/token
//	GET  /api/v1/appliances
//	GET  /api/v1/appliances/{id}
//	GET  /api/v1/appliances/{id}/characteristics
//	GET  /api/v1/appliances/{id}/characteristics/{name}
//	PUT  /api/v1/appliances/{id}/characteristics/{name}
//	GET  /api/v1/ws
//
// # Security
//
// When security.jwt.enabled is set, every route except health and token
// issuance requires an HS256 bearer token obtained from /auth/token with
// the configured client credentials. Browsers that cannot set headers on
// a WebSocket upgrade pass the token as the access_token query parameter.
//
// # WebSocket
//
// Clients subscribe to appliance.state, appliance.sensor and
// appliance.link, optionally narrowed to a list of appliance ids:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["appliance.state"],"appliances":["NN2-EU-KJA1234A"]}}
//
// The acknowledgement is followed by the current value of every matching
// appliance, then by live events. A client that falls behind loses
// events rather than stalling the hub.
//
// # Degradation
//
// Reads never fail because an appliance is unreachable: the accessory
// layer answers with stale or default values. Only bad input is rejected.
package api
