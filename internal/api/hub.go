package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/logging"
)

// Broadcast channels.
const (
	ChannelState  = "appliance.state"
	ChannelSensor = "appliance.sensor"
	ChannelLink   = "appliance.link"
)

var knownChannels = map[string]struct{}{
	ChannelState:  {},
	ChannelSensor: {},
	ChannelLink:   {},
}

// StatePayload is broadcast on ChannelState.
type StatePayload struct {
	ApplianceID string               `json:"appliance_id"`
	State       purelink.DeviceState `json:"state"`
}

// SensorPayload is broadcast on ChannelSensor.
type SensorPayload struct {
	ApplianceID string                 `json:"appliance_id"`
	Reading     purelink.SensorReading `json:"reading"`
}

// LinkPayload is broadcast on ChannelLink.
type LinkPayload struct {
	ApplianceID string             `json:"appliance_id"`
	Link        purelink.LinkState `json:"link"`
}

// Event is one appliance update addressed to a channel.
type Event struct {
	Channel     string
	ApplianceID string
	Payload     any
}

// ReplayFunc returns the current view of every appliance for a channel.
// It backs the initial replay sent on subscribe.
type ReplayFunc func(channel string) []Event

// Hub fans appliance events out to WebSocket clients. It implements
// purelink.Observer, so attaching it to the bridge relays every model
// update and link transition.
//
// Thread Safety: All methods are safe for concurrent use. Observer
// callbacks never block; a client whose buffer is full misses the event.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	replayMu sync.RWMutex
	replay   ReplayFunc

	delivered atomic.Int64
	dropped   atomic.Int64
}

// HubStats are cumulative delivery counters.
type HubStats struct {
	ConnectedClients int   `json:"connected_clients"`
	Delivered        int64 `json:"delivered"`
	Dropped          int64 `json:"dropped"`
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetReplay installs the source used to replay current state to new
// subscribers. Nil disables replay.
func (h *Hub) SetReplay(fn ReplayFunc) {
	h.replayMu.Lock()
	h.replay = fn
	h.replayMu.Unlock()
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the caller that removes the client
// from the map closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Publish delivers ev to every client subscribed to its channel and
// appliance.
func (h *Hub) Publish(ev Event) {
	data, err := encodeEvent(ev)
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", ev.Channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(ev.Channel, ev.ApplianceID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.count(c.trySend(data))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns connection and delivery counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		ConnectedClients: h.ClientCount(),
		Delivered:        h.delivered.Load(),
		Dropped:          h.dropped.Load(),
	}
}

// replayTo sends the current view for channels to one client.
func (h *Hub) replayTo(c *WSClient, channels []string) {
	h.replayMu.RLock()
	fn := h.replay
	h.replayMu.RUnlock()
	if fn == nil {
		return
	}

	for _, ch := range channels {
		for _, ev := range fn(ch) {
			if !c.wants(ev.Channel, ev.ApplianceID) {
				continue
			}
			data, err := encodeEvent(ev)
			if err != nil {
				continue
			}
			h.count(c.trySend(data))
		}
	}
}

func (h *Hub) count(sent bool) {
	if sent {
		h.delivered.Add(1)
	} else {
		h.dropped.Add(1)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

func encodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: ev.Channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   ev.Payload,
	})
}

var _ purelink.Observer = (*Hub)(nil)

// OnDevice implements purelink.Observer.
func (h *Hub) OnDevice(applianceID string, state purelink.DeviceState) {
	h.Publish(Event{Channel: ChannelState, ApplianceID: applianceID,
		Payload: StatePayload{ApplianceID: applianceID, State: state}})
}

// OnSensor implements purelink.Observer.
func (h *Hub) OnSensor(applianceID string, reading purelink.SensorReading) {
	h.Publish(Event{Channel: ChannelSensor, ApplianceID: applianceID,
		Payload: SensorPayload{ApplianceID: applianceID, Reading: reading}})
}

// OnLink implements purelink.Observer.
func (h *Hub) OnLink(applianceID string, link purelink.LinkState) {
	h.Publish(Event{Channel: ChannelLink, ApplianceID: applianceID,
		Payload: LinkPayload{ApplianceID: applianceID, Link: link}})
}
