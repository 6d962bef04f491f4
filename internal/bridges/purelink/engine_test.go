package purelink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testIdentity = Identity{
	Serial:   "DYSON-NN2-EU-KJA1234A-455",
	DeviceID: "NN2-EU-KJA1234A",
	Model:    "455",
}

type engineFixture struct {
	engine   *Engine
	session  *MockSession
	clock    *fakeClock
	observer *recordingObserver
}

func newTestEngine(t *testing.T, configure func(*EngineOptions)) *engineFixture {
	t.Helper()

	f := &engineFixture{
		session:  NewMockSession(),
		clock:    newFakeClock(),
		observer: &recordingObserver{},
	}
	opts := EngineOptions{
		Identity:  testIdentity,
		Caps:      testIdentity.Capabilities(false),
		Session:   f.session,
		QoS:       1,
		Clock:     f.clock.Now,
		Observers: []Observer{f.observer},
	}
	if configure != nil {
		configure(&opts)
	}

	e, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { e.Close() }) //nolint:errcheck // Test cleanup
	f.engine = e
	return f
}

// connect acknowledges the session and drops the priming refresh.
func (f *engineFixture) connect() {
	f.session.Connect()
	f.session.ClearPublished()
}

func (f *engineFixture) deliver(t *testing.T, payload []byte) {
	t.Helper()
	if err := f.session.SimulateMessage(testIdentity.StatusTopic(), payload); err != nil {
		t.Fatalf("SimulateMessage() error = %v", err)
	}
}

// capture collects snapshots delivered to GetValue/SetValue callbacks.
type capture struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (c *capture) cb(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, s)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snaps)
}

func (c *capture) last() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snaps[len(c.snaps)-1]
}

// ===== Construction =====

func TestNewEngineRequiresSession(t *testing.T) {
	if _, err := NewEngine(EngineOptions{Identity: testIdentity}); err == nil {
		t.Error("NewEngine() without session should fail")
	}
}

func TestStartSubscribesStatusTopic(t *testing.T) {
	f := newTestEngine(t, nil)

	f.session.mu.Lock()
	_, subscribed := f.session.handlers["455/NN2-EU-KJA1234A/status/current"]
	started := f.session.started
	f.session.mu.Unlock()

	if !subscribed {
		t.Error("status topic not subscribed")
	}
	if !started {
		t.Error("session not started")
	}
	if f.engine.Link() != LinkDisconnected {
		t.Errorf("Link() = %s before connect, want DISCONNECTED", f.engine.Link())
	}
}

func TestConnectPrimesRefresh(t *testing.T) {
	f := newTestEngine(t, nil)
	f.session.Connect()

	pubs := f.session.GetPublished()
	if len(pubs) != 1 {
		t.Fatalf("published %d messages on connect, want 1", len(pubs))
	}
	if pubs[0].Topic != "455/NN2-EU-KJA1234A/command" || pubs[0].QoS != 1 {
		t.Errorf("publish = %s qos %d", pubs[0].Topic, pubs[0].QoS)
	}
	if f.session.countKind(t, MsgRequestCurrentState) != 1 {
		t.Error("priming message is not REQUEST-CURRENT-STATE")
	}
	if f.engine.Link() != LinkConnectedIdle {
		t.Errorf("Link() = %s, want CONNECTED_IDLE", f.engine.Link())
	}
	if err := f.engine.WaitConnected(context.Background()); err != nil {
		t.Errorf("WaitConnected() error = %v", err)
	}
}

// ===== GetValue =====

func TestGetValueServesFreshCache(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()
	f.deliver(t, sensorPayload(map[string]string{"tact": "2980", "hact": "45"}))
	f.session.ClearPublished()

	var first, second capture
	f.engine.GetValue(CategorySensor, first.cb)
	f.clock.Advance(30 * time.Second)
	f.engine.GetValue(CategorySensor, second.cb)

	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("callbacks = %d/%d, want synchronous 1/1", first.count(), second.count())
	}
	if first.last().Sensor != second.last().Sensor {
		t.Error("cached reads returned different values")
	}
	if first.last().Sensor.Humidity != 45 || !first.last().Fresh {
		t.Errorf("snapshot = %+v", first.last())
	}
	if n := len(f.session.GetPublished()); n != 0 {
		t.Errorf("published %d messages for cached reads, want 0", n)
	}
	if hits := f.engine.Stats().CacheHits; hits != 2 {
		t.Errorf("CacheHits = %d, want 2", hits)
	}
}

func TestGetValueTwiceWithoutCachePublishesOnce(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()

	var c capture
	f.engine.GetValue(CategorySensor, c.cb)
	f.engine.GetValue(CategorySensor, c.cb)

	if c.count() != 0 {
		t.Errorf("callbacks fired before any message: %d", c.count())
	}
	if n := f.session.countKind(t, MsgRequestCurrentState); n != 1 {
		t.Errorf("refresh publishes = %d, want 1", n)
	}
}

func TestGetValueStaleCacheWaitsForMessage(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()
	f.deliver(t, sensorPayload(map[string]string{"hact": "40"}))
	f.session.ClearPublished()

	f.clock.Advance(61 * time.Second)

	var c capture
	f.engine.GetValue(CategorySensor, c.cb)
	if c.count() != 0 {
		t.Fatal("stale cache served synchronously")
	}
	if f.engine.Link() != LinkAwaitingResponse {
		t.Errorf("Link() = %s, want AWAITING_RESPONSE", f.engine.Link())
	}
	if n := f.session.countKind(t, MsgRequestCurrentState); n != 1 {
		t.Errorf("refresh publishes = %d, want 1", n)
	}

	f.deliver(t, sensorPayload(map[string]string{"hact": "52"}))

	if c.count() != 1 {
		t.Fatalf("callbacks = %d after message, want 1", c.count())
	}
	if got := c.last().Sensor.Humidity; got != 52 {
		t.Errorf("Humidity = %d, want new value 52", got)
	}
	if f.engine.Link() != LinkConnectedIdle {
		t.Errorf("Link() = %s, want CONNECTED_IDLE", f.engine.Link())
	}
}

func TestGetValueConcurrentReadersShareOneRefresh(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()

	const readers = 10
	var fired [readers]atomic.Int32
	var values [readers]atomic.Int32

	var wg sync.WaitGroup
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.engine.GetValue(CategoryDevice, func(s Snapshot) {
				fired[i].Add(1)
				values[i].Store(int32(s.Device.Speed))
			})
		}()
	}
	wg.Wait()

	if n := f.session.countKind(t, MsgRequestCurrentState); n != 1 {
		t.Errorf("refresh publishes = %d, want 1", n)
	}
	if pending := f.engine.Stats().Pending; pending != readers {
		t.Fatalf("Pending = %d, want %d", pending, readers)
	}

	f.deliver(t, statePayload(map[string]string{"fmod": "FAN", "fnsp": "0007"}))

	for i := range readers {
		if got := fired[i].Load(); got != 1 {
			t.Errorf("reader %d fired %d times, want 1", i, got)
		}
		if got := values[i].Load(); got != 70 {
			t.Errorf("reader %d speed = %d, want 70", i, got)
		}
	}
	if st := f.engine.Stats(); st.WaitersFired != readers || st.Pending != 0 {
		t.Errorf("stats = %+v", st)
	}

	// A second message must not fire anyone again.
	f.deliver(t, statePayload(map[string]string{"fmod": "FAN", "fnsp": "0002"}))
	for i := range readers {
		if got := fired[i].Load(); got != 1 {
			t.Errorf("reader %d fired %d times after second message", i, got)
		}
	}
}

func TestGetValueHighWaterMarkRepublishes(t *testing.T) {
	f := newTestEngine(t, func(o *EngineOptions) { o.HighWaterMark = 3 })
	f.connect()

	var c capture
	for range 5 {
		f.engine.GetValue(CategoryDevice, c.cb)
	}

	// Waiter counts 1, 4 and 5 publish.
	if n := f.session.countKind(t, MsgRequestCurrentState); n != 3 {
		t.Errorf("refresh publishes = %d, want 3", n)
	}
}

func TestGetValueDisconnectedResolvesDefault(t *testing.T) {
	f := newTestEngine(t, nil)

	var c capture
	f.engine.GetValue(CategoryDevice, c.cb)

	if c.count() != 1 {
		t.Fatalf("callbacks = %d, want immediate 1", c.count())
	}
	if got := c.last(); got != (Snapshot{}) {
		t.Errorf("snapshot = %+v, want zero", got)
	}
	if n := len(f.session.GetPublished()); n != 0 {
		t.Errorf("published %d while disconnected", n)
	}
	if d := f.engine.Stats().Defaults; d != 1 {
		t.Errorf("Defaults = %d, want 1", d)
	}
}

func TestCategoriesAreIndependent(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()

	var device capture
	f.engine.GetValue(CategoryDevice, device.cb)
	f.deliver(t, sensorPayload(map[string]string{"hact": "30"}))

	if device.count() != 0 {
		t.Error("sensor message fired a device waiter")
	}
	if f.engine.Link() != LinkAwaitingResponse {
		t.Errorf("Link() = %s, want AWAITING_RESPONSE", f.engine.Link())
	}

	f.deliver(t, statePayload(map[string]string{"fmod": "OFF"}))
	if device.count() != 1 {
		t.Error("device message did not fire device waiter")
	}
}

func TestCallbackMayReenterEngine(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()

	done := make(chan Snapshot, 1)
	f.engine.GetValue(CategoryDevice, func(Snapshot) {
		f.engine.GetValue(CategoryDevice, func(s Snapshot) { done <- s })
	})
	f.deliver(t, statePayload(map[string]string{"fmod": "FAN"}))

	select {
	case s := <-done:
		if !s.Device.FanOn || !s.Fresh {
			t.Errorf("nested read = %+v", s.Device)
		}
	case <-time.After(time.Second):
		t.Fatal("nested read did not resolve")
	}
}

// ===== Timeout & link loss =====

func TestResponseTimeoutServesStaleCache(t *testing.T) {
	f := newTestEngine(t, func(o *EngineOptions) { o.ResponseTimeout = 20 * time.Millisecond })
	f.connect()
	f.deliver(t, statePayload(map[string]string{"fmod": "FAN", "fnsp": "0004"}))
	f.clock.Advance(2 * time.Minute)

	got := make(chan Snapshot, 1)
	f.engine.GetValue(CategoryDevice, func(s Snapshot) { got <- s })

	select {
	case s := <-got:
		if s.Device.Speed != 40 {
			t.Errorf("Speed = %d, want stale 40", s.Device.Speed)
		}
		if s.Fresh {
			t.Error("timeout snapshot marked fresh")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not resolved by timeout")
	}

	waitFor(t, "idle link", func() bool { return f.engine.Link() == LinkConnectedIdle })
	if n := f.engine.Stats().Timeouts; n != 1 {
		t.Errorf("Timeouts = %d, want 1", n)
	}
}

func TestResponseTimeoutDisarmedByMessage(t *testing.T) {
	f := newTestEngine(t, func(o *EngineOptions) { o.ResponseTimeout = 30 * time.Millisecond })
	f.connect()

	var c capture
	f.engine.GetValue(CategorySensor, c.cb)
	f.deliver(t, sensorPayload(map[string]string{"hact": "33"}))

	time.Sleep(80 * time.Millisecond)
	if c.count() != 1 {
		t.Errorf("callbacks = %d, want exactly 1", c.count())
	}
	if n := f.engine.Stats().Timeouts; n != 0 {
		t.Errorf("Timeouts = %d, want 0", n)
	}
}

func TestDisconnectResolvesWaitersWithDefaults(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()
	f.deliver(t, statePayload(map[string]string{"fmod": "FAN", "fnsp": "0009"}))
	f.clock.Advance(2 * time.Minute)

	var sensor, device capture
	f.engine.GetValue(CategorySensor, sensor.cb)
	f.engine.GetValue(CategoryDevice, device.cb)

	f.session.Disconnect(errors.New("connection reset"))

	if sensor.count() != 1 || device.count() != 1 {
		t.Fatalf("callbacks = %d/%d, want 1/1", sensor.count(), device.count())
	}
	if device.last() != (Snapshot{}) {
		t.Errorf("device snapshot = %+v, want zero default", device.last())
	}
	if f.engine.Link() != LinkDisconnected {
		t.Errorf("Link() = %s, want DISCONNECTED", f.engine.Link())
	}
	if d := f.engine.Stats().Defaults; d != 2 {
		t.Errorf("Defaults = %d, want 2", d)
	}
}

func TestLinkTransitionsNotified(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()

	var c capture
	f.engine.GetValue(CategoryDevice, c.cb)
	f.deliver(t, statePayload(map[string]string{"fmod": "FAN"}))
	f.session.Disconnect(nil)

	want := []LinkState{LinkConnectedIdle, LinkAwaitingResponse, LinkConnectedIdle, LinkDisconnected}
	got := f.observer.Links()
	if len(got) != len(want) {
		t.Fatalf("links = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("links[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// ===== SetValue =====

func TestSetValueDisconnectedPublishesNothing(t *testing.T) {
	f := newTestEngine(t, nil)

	var c capture
	f.engine.SetValue(CategoryDevice, Plan{{Fields: map[string]string{"fmod": "FAN"}}}, c.cb)

	if c.count() != 1 {
		t.Fatalf("callbacks = %d, want 1", c.count())
	}
	if c.last() != (Snapshot{}) {
		t.Errorf("snapshot = %+v, want zero", c.last())
	}
	if n := len(f.session.GetPublished()); n != 0 {
		t.Errorf("published %d while disconnected", n)
	}
}

func TestSetValuePublishesThenConfirms(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()
	f.deliver(t, statePayload(map[string]string{"fmod": "FAN", "fnsp": "0002"}))
	f.session.ClearPublished()

	var c capture
	f.engine.SetValue(CategoryDevice, Plan{{Fields: map[string]string{"fnsp": "0006"}}}, c.cb)

	cmds := f.session.Commands(t)
	if len(cmds) != 2 {
		t.Fatalf("published %d messages, want STATE-SET then REQUEST-CURRENT-STATE", len(cmds))
	}
	if cmds[0].Msg != MsgStateSet || cmds[0].Data["fnsp"] != "0006" {
		t.Errorf("first = %+v", cmds[0])
	}
	if cmds[1].Msg != MsgRequestCurrentState {
		t.Errorf("second = %+v", cmds[1])
	}
	if c.count() != 0 {
		t.Fatal("set resolved from pre-command cache")
	}

	f.deliver(t, statePayload(map[string]string{"fmod": "FAN", "fnsp": "0006"}))
	if c.count() != 1 || c.last().Device.Speed != 60 {
		t.Errorf("confirmed speed = %+v", c.last().Device)
	}
}

func TestSetValueEmptyPlanReadsOnly(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()
	f.deliver(t, statePayload(map[string]string{"fmod": "AUTO"}))
	f.session.ClearPublished()

	var c capture
	f.engine.SetValue(CategoryDevice, Plan{}, c.cb)

	if c.count() != 1 || !c.last().Device.Auto {
		t.Errorf("empty plan should be served from fresh cache, got %d calls", c.count())
	}
	if n := len(f.session.GetPublished()); n != 0 {
		t.Errorf("published %d for empty plan", n)
	}
}

func TestSetValueDelayedStepsKeepOrder(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()

	plan := Plan{
		{Fields: map[string]string{"fmod": "FAN"}},
		{Fields: map[string]string{"oson": "ON"}, Delay: 20 * time.Millisecond},
		{Fields: map[string]string{"nmod": "ON"}},
	}
	var c capture
	f.engine.SetValue(CategoryDevice, plan, c.cb)

	waitFor(t, "deferred steps", func() bool { return f.session.countKind(t, MsgStateSet) == 3 })

	var sets []map[string]string
	for _, env := range f.session.Commands(t) {
		if env.Msg == MsgStateSet {
			sets = append(sets, env.Data)
		}
	}
	if sets[0]["fmod"] != "FAN" || sets[1]["oson"] != "ON" || sets[2]["nmod"] != "ON" {
		t.Errorf("order = %v", sets)
	}
}

// ===== Dispatch =====

func TestStateChangeTriggersRefreshWithoutWaiter(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()
	f.deliver(t, statePayload(map[string]string{"fmod": "FAN"}))
	f.session.ClearPublished()

	f.deliver(t, []byte(`{"msg":"STATE-CHANGE","product-state":{"fmod":["FAN","OFF"]}}`))

	if n := f.session.countKind(t, MsgRequestCurrentState); n != 1 {
		t.Errorf("refresh publishes = %d, want 1", n)
	}
	if f.engine.Stats().Pending != 0 {
		t.Error("STATE-CHANGE registered a waiter")
	}

	var c capture
	f.engine.GetValue(CategoryDevice, c.cb)
	if c.count() != 0 {
		t.Error("device cache still served as fresh after STATE-CHANGE")
	}
}

func TestHandleMessageErrors(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()

	err := f.session.SimulateMessage(testIdentity.StatusTopic(), []byte("garbage"))
	if !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("malformed payload error = %v", err)
	}
	if err := f.session.SimulateMessage(testIdentity.StatusTopic(), []byte(`{"msg":"LOCATION"}`)); err != nil {
		t.Errorf("unknown kind error = %v, want nil", err)
	}
}

func TestObserversReceiveModels(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()

	f.deliver(t, sensorPayload(map[string]string{"pm25": "45"}))
	f.deliver(t, statePayload(map[string]string{"fmod": "FAN"}))

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	if len(f.observer.sensors) != 1 || f.observer.sensors[0].AirQuality != AirQualityFair {
		t.Errorf("sensors = %+v", f.observer.sensors)
	}
	if len(f.observer.devices) != 1 || !f.observer.devices[0].FanOn {
		t.Errorf("devices = %+v", f.observer.devices)
	}
}

// ===== Close =====

func TestCloseResolvesPendingAndClosesSession(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()

	var c capture
	f.engine.GetValue(CategorySensor, c.cb)

	if err := f.engine.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := f.engine.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if c.count() != 1 || c.last() != (Snapshot{}) {
		t.Errorf("pending read not resolved with default")
	}
	f.session.mu.Lock()
	closed := f.session.closed
	f.session.mu.Unlock()
	if !closed {
		t.Error("session not closed")
	}
	if f.engine.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestWaitConnected(t *testing.T) {
	f := newTestEngine(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.engine.WaitConnected(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitConnected() error = %v, want deadline exceeded", err)
	}

	f.engine.Close() //nolint:errcheck // Test
	if err := f.engine.WaitConnected(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("WaitConnected() after Close error = %v, want ErrEngineClosed", err)
	}
}

func TestLinkStateJSON(t *testing.T) {
	for _, state := range []LinkState{LinkDisconnected, LinkConnectedIdle, LinkAwaitingResponse} {
		t.Run(state.String(), func(t *testing.T) {
			data, err := json.Marshal(struct{ Link LinkState }{state})
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var got struct{ Link LinkState }
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", data, err)
			}
			if got.Link != state {
				t.Errorf("round trip = %s, want %s", got.Link, state)
			}
		})
	}

	var s LinkState
	if err := s.UnmarshalText([]byte("ONLINE")); !errors.Is(err, ErrUnknownLinkState) {
		t.Errorf("UnmarshalText(ONLINE) error = %v, want ErrUnknownLinkState", err)
	}
}

func TestEngineIgnoresForeignTopics(t *testing.T) {
	f := newTestEngine(t, nil)
	f.connect()

	f.session.mu.Lock()
	handler := f.session.handlers[testIdentity.StatusTopic()]
	f.session.mu.Unlock()

	for _, topic := range []string{
		"455/OTHER-EU-DEVICE01/status/current",
		"438/NN2-EU-KJA1234A/status/current",
		testIdentity.CommandTopic(),
		"garbage",
	} {
		if err := handler(topic, statePayload(map[string]string{"fmod": "FAN", "fnsp": "0009"})); err != nil {
			t.Errorf("handler(%s) error = %v", topic, err)
		}
	}
	if got := f.engine.Device(); !got.UpdatedAt.IsZero() {
		t.Errorf("device state updated from a foreign topic: %+v", got)
	}

	f.deliver(t, statePayload(map[string]string{"fmod": "FAN", "fnsp": "0009"}))
	if got := f.engine.Device(); got.Speed != 90 {
		t.Errorf("Speed = %d, want 90 from the status topic", got.Speed)
	}
}
