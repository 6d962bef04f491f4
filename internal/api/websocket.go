package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
)

// Message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is the envelope for every frame sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a frame received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, appliances. An
// empty Appliances list matches every appliance.
type WSSubscribePayload struct {
	Channels   []string `json:"channels"`
	Appliances []string `json:"appliances,omitempty"`
}

// WSClient is one connected WebSocket client and its filter.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu         sync.RWMutex
	channels   map[string]struct{}
	appliances map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, wsSendBufferSize),
		channels:   make(map[string]struct{}),
		appliances: make(map[string]struct{}),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checking is handled by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

// handleWebSocket upgrades the request. Authentication, when enabled, has
// already happened in authMiddleware.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)
	s.hub.Register(client)

	go client.writeLoop(s.wsCfg)
	go client.readLoop(s.wsCfg)
}

func (c *WSClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	ping, pong := wsTimings(cfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }

	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application frames count as liveness too.
		_ = extend()
		c.dispatch(data)
	}
}

func (c *WSClient) writeLoop(cfg config.WebSocketConfig) {
	ping, pong := wsTimings(cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(pong))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) dispatch(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.subscribe(req)
	case WSTypeUnsubscribe:
		c.unsubscribe(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, errorBody("unknown message type: "+req.Type))
	}
}

func decodeSelection(raw json.RawMessage) (WSSubscribePayload, error) {
	var sel WSSubscribePayload
	if len(raw) == 0 {
		return sel, fmt.Errorf("payload required")
	}
	if err := json.Unmarshal(raw, &sel); err != nil {
		return sel, fmt.Errorf("invalid payload")
	}
	if len(sel.Channels) == 0 {
		return sel, fmt.Errorf("at least one channel required")
	}
	for _, ch := range sel.Channels {
		if _, ok := knownChannels[ch]; !ok {
			return sel, fmt.Errorf("unknown channel: %s", ch)
		}
	}
	return sel, nil
}

// subscribe adds channels and appliance filters, acknowledges, then
// replays the current state for the new channels.
func (c *WSClient) subscribe(req wsRequest) {
	sel, err := decodeSelection(req.Payload)
	if err != nil {
		c.reply(req.ID, WSTypeError, errorBody(err.Error()))
		return
	}

	c.mu.Lock()
	for _, ch := range sel.Channels {
		c.channels[ch] = struct{}{}
	}
	for _, id := range sel.Appliances {
		c.appliances[id] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "channels", sel.Channels, "appliances", sel.Appliances)
	c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": sel.Channels})
	c.hub.replayTo(c, sel.Channels)
}

// unsubscribe removes channels. Appliance filters named in the payload
// are removed too.
func (c *WSClient) unsubscribe(req wsRequest) {
	sel, err := decodeSelection(req.Payload)
	if err != nil {
		c.reply(req.ID, WSTypeError, errorBody(err.Error()))
		return
	}

	c.mu.Lock()
	for _, ch := range sel.Channels {
		delete(c.channels, ch)
	}
	for _, id := range sel.Appliances {
		delete(c.appliances, id)
	}
	c.mu.Unlock()

	c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sel.Channels})
}

// wants reports whether an event for applianceID on channel should be
// delivered.
func (c *WSClient) wants(channel, applianceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if len(c.appliances) == 0 {
		return true
	}
	_, ok := c.appliances[applianceID]
	return ok
}

// trySend queues data without blocking. It reports false when the buffer
// is full or the client is already gone.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}
