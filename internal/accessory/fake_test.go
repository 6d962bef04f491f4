package accessory

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/mqtt"
)

// fakeAppliance implements purelink.Session and answers like a real
// appliance: STATE-SET merges into its product state and
// REQUEST-CURRENT-STATE is answered with state and sensor messages.
type fakeAppliance struct {
	mu        sync.Mutex
	connected bool
	silent    bool
	state     map[string]string
	sensors   map[string]string
	sets      []map[string]string
	handler   mqtt.MessageHandler
	topic     string
	onConnect func()
}

func newFakeAppliance() *fakeAppliance {
	return &fakeAppliance{
		state: map[string]string{
			"fmod": "OFF", "fnsp": "0004", "oson": "OFF", "nmod": "OFF",
			"ffoc": "OFF", "hmod": "OFF", "hmax": "2960", "filf": "2190",
		},
		sensors: map[string]string{
			"tact": "2950", "hact": "0045", "pact": "0002", "vact": "0003",
		},
	}
}

func (f *fakeAppliance) PublishAsync(_ string, payload []byte, _ byte) error {
	var env struct {
		Msg  string            `json:"msg"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}

	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	switch env.Msg {
	case purelink.MsgStateSet:
		maps.Copy(f.state, env.Data)
		f.sets = append(f.sets, env.Data)
		f.mu.Unlock()
	case purelink.MsgRequestCurrentState:
		if f.silent {
			f.mu.Unlock()
			return nil
		}
		state := maps.Clone(f.state)
		sensors := maps.Clone(f.sensors)
		handler, topic := f.handler, f.topic
		f.mu.Unlock()
		go f.reply(handler, topic, state, sensors)
	default:
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeAppliance) reply(handler mqtt.MessageHandler, topic string, state, sensors map[string]string) {
	if handler == nil {
		return
	}
	s, _ := json.Marshal(map[string]any{"msg": purelink.MsgCurrentState, "product-state": state})
	e, _ := json.Marshal(map[string]any{"msg": purelink.MsgSensorData, "data": sensors})
	_ = handler(topic, s)
	_ = handler(topic, e)
}

func (f *fakeAppliance) SubscribePersistent(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	f.topic = topic
	return nil
}

func (f *fakeAppliance) SetOnConnect(callback func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = callback
}

func (f *fakeAppliance) SetOnDisconnect(func(error)) {}

// Start connects immediately.
func (f *fakeAppliance) Start() {
	f.mu.Lock()
	f.connected = true
	cb := f.onConnect
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (f *fakeAppliance) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeAppliance) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeAppliance) field(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[key]
}

func (f *fakeAppliance) setLog() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.sets...)
}

// memoryUIStore implements UIStore in memory.
type memoryUIStore struct {
	mu      sync.Mutex
	saved   map[string]UIRequests
	saves   int
	loadErr error
	saveErr error
}

func newMemoryUIStore() *memoryUIStore {
	return &memoryUIStore{saved: make(map[string]UIRequests)}
}

func (s *memoryUIStore) SaveUIRequests(_ context.Context, id string, req UIRequests) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[id] = req
	return nil
}

func (s *memoryUIStore) LoadUIRequests(_ context.Context, id string) (UIRequests, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return UIRequests{}, false, s.loadErr
	}
	req, ok := s.saved[id]
	return req, ok, nil
}

// recordingBinder captures Bind calls.
type recordingBinder struct {
	bound map[string]binding
	order []string
}

type binding struct {
	service string
	get     Getter
	set     Setter
}

func (b *recordingBinder) Bind(service, characteristic string, get Getter, set Setter) {
	if b.bound == nil {
		b.bound = make(map[string]binding)
	}
	b.bound[characteristic] = binding{service: service, get: get, set: set}
	b.order = append(b.order, characteristic)
}

func boolPtr(v bool) *bool { return &v }

// newTestBridge starts a bridge whose appliances are fakes keyed by device id.
func newTestBridge(t *testing.T, appliances ...config.ApplianceConfig) (*purelink.Bridge, map[string]*fakeAppliance) {
	t.Helper()

	cfg := &config.Config{
		Bridge: config.BridgeConfig{ID: "airlink-test", HealthInterval: 3600},
		MQTT: config.MQTTConfig{
			DefaultPort:    1883,
			ClientIDPrefix: "airlink",
			QoS:            1,
			ConnectTimeout: 1,
		},
		Correlation: config.CorrelationConfig{
			FreshnessWindow:  60,
			ResponseTimeout:  200,
			HighWaterMark:    10,
			OscillationDelay: 5,
		},
		Appliances: appliances,
	}

	fakes := make(map[string]*fakeAppliance)
	var mu sync.Mutex
	b, err := purelink.NewBridge(purelink.BridgeOptions{
		Config: cfg,
		Dial: func(o mqtt.Options) purelink.Session {
			mu.Lock()
			defer mu.Unlock()
			f := newFakeAppliance()
			fakes[o.Username] = f
			return f
		},
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	t.Cleanup(b.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return b, fakes
}

func heaterConfig() config.ApplianceConfig {
	return config.ApplianceConfig{
		DisplayName:  "Bedroom",
		Address:      "192.168.1.20",
		SerialNumber: "DYSON-NN2-EU-KJA1234A-455",
		Credential:   "pw",
	}
}

func newTestAccessory(t *testing.T, store UIStore, cfg config.ApplianceConfig) (*Accessory, *fakeAppliance) {
	t.Helper()

	b, fakes := newTestBridge(t, cfg)
	apps := b.Appliances()
	if len(apps) != 1 {
		t.Fatalf("Appliances() = %d, want 1", len(apps))
	}
	acc, err := NewAccessory(context.Background(), Options{Appliance: apps[0], Store: store})
	if err != nil {
		t.Fatalf("NewAccessory() error = %v", err)
	}
	return acc, fakes[apps[0].ID()]
}

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
