package purelink

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/mqtt"
)

// MockSession implements Session for testing.
type MockSession struct {
	mu           sync.Mutex
	connected    bool
	started      bool
	closed       bool
	publishErr   error
	subscribeErr error
	published    []mockPublish
	handlers     map[string]mqtt.MessageHandler
	onConnect    func()
	onDisconnect func(err error)
}

type mockPublish struct {
	Topic   string
	Payload []byte
	QoS     byte
}

func NewMockSession() *MockSession {
	return &MockSession{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockSession) PublishAsync(topic string, payload []byte, qos byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	if !m.connected {
		return mqtt.ErrNotConnected
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos})
	return nil
}

func (m *MockSession) SubscribePersistent(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *MockSession) SetOnConnect(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = callback
}

func (m *MockSession) SetOnDisconnect(callback func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = callback
}

func (m *MockSession) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
}

func (m *MockSession) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.connected = false
	return nil
}

// Connect simulates a connect acknowledgement.
func (m *MockSession) Connect() {
	m.mu.Lock()
	m.connected = true
	cb := m.onConnect
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Disconnect simulates a lost connection.
func (m *MockSession) Disconnect(err error) {
	m.mu.Lock()
	m.connected = false
	cb := m.onDisconnect
	m.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// SimulateMessage delivers a payload to the handler subscribed on topic.
func (m *MockSession) SimulateMessage(topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		return errors.New("no handler for " + topic)
	}
	return handler(topic, payload)
}

func (m *MockSession) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockSession) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// Commands decodes every published envelope.
func (m *MockSession) Commands(t *testing.T) []CommandEnvelope {
	t.Helper()
	var out []CommandEnvelope
	for _, p := range m.GetPublished() {
		var env CommandEnvelope
		if err := json.Unmarshal(p.Payload, &env); err != nil {
			t.Fatalf("published payload %s is not an envelope: %v", p.Payload, err)
		}
		out = append(out, env)
	}
	return out
}

// countKind returns how many published envelopes carry msg kind.
func (m *MockSession) countKind(t *testing.T, kind string) int {
	t.Helper()
	n := 0
	for _, env := range m.Commands(t) {
		if env.Msg == kind {
			n++
		}
	}
	return n
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingObserver captures observer calls.
type recordingObserver struct {
	mu      sync.Mutex
	sensors []SensorReading
	devices []DeviceState
	links   []LinkState
}

func (o *recordingObserver) OnSensor(_ string, r SensorReading) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sensors = append(o.sensors, r)
}

func (o *recordingObserver) OnDevice(_ string, s DeviceState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.devices = append(o.devices, s)
}

func (o *recordingObserver) OnLink(_ string, state LinkState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links = append(o.links, state)
}

func (o *recordingObserver) Links() []LinkState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]LinkState(nil), o.links...)
}

func sensorPayload(fields map[string]string) []byte {
	b, _ := json.Marshal(map[string]any{
		"msg":  MsgSensorData,
		"time": "2026-03-01T09:00:00.000Z",
		"data": fields,
	})
	return b
}

func statePayload(fields map[string]string) []byte {
	b, _ := json.Marshal(map[string]any{
		"msg":           MsgCurrentState,
		"time":          "2026-03-01T09:00:00.000Z",
		"product-state": fields,
	})
	return b
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
