package purelink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/mqtt"
)

// Correlation defaults.
const (
	// DefaultFreshnessWindow is the maximum age of a cached reading served
	// without a refresh.
	DefaultFreshnessWindow = 60 * time.Second

	// DefaultHighWaterMark is the waiter count above which a refresh is
	// re-published on the assumption that earlier ones were lost.
	DefaultHighWaterMark = 10
)

// Category selects which cached model a read waits on.
type Category int

// Event categories.
const (
	CategorySensor Category = iota
	CategoryDevice

	categoryCount
)

func (c Category) String() string {
	if c == CategorySensor {
		return "sensor"
	}
	return "device"
}

// LinkState is the per-appliance correlation state.
type LinkState int

// Link states.
const (
	LinkDisconnected LinkState = iota
	LinkConnectedIdle
	LinkAwaitingResponse
)

func (s LinkState) String() string {
	switch s {
	case LinkConnectedIdle:
		return "CONNECTED_IDLE"
	case LinkAwaitingResponse:
		return "AWAITING_RESPONSE"
	default:
		return "DISCONNECTED"
	}
}

// MarshalText renders the state name in JSON.
func (s LinkState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names MarshalText produces.
func (s *LinkState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "DISCONNECTED":
		*s = LinkDisconnected
	case "CONNECTED_IDLE":
		*s = LinkConnectedIdle
	case "AWAITING_RESPONSE":
		*s = LinkAwaitingResponse
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLinkState, text)
	}
	return nil
}

// Session is the broker session of one appliance. *mqtt.Client satisfies it.
type Session interface {
	PublishAsync(topic string, payload []byte, qos byte) error
	SubscribePersistent(topic string, qos byte, handler mqtt.MessageHandler) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	Start()
	IsConnected() bool
	Close() error
}

// Snapshot is the value a read resolves with. Fresh is false for
// timeouts and defaults; it is diagnostic only.
type Snapshot struct {
	Sensor SensorReading `json:"sensor"`
	Device DeviceState   `json:"device"`
	Fresh  bool          `json:"fresh"`
}

// Observer is notified after each model update and link transition.
// Calls happen outside the engine lock on the dispatch goroutine and must
// not block.
type Observer interface {
	OnSensor(applianceID string, r SensorReading)
	OnDevice(applianceID string, s DeviceState)
	OnLink(applianceID string, state LinkState)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Sensor func(applianceID string, r SensorReading)
	Device func(applianceID string, s DeviceState)
	Link   func(applianceID string, state LinkState)
}

func (o ObserverFuncs) OnSensor(id string, r SensorReading) {
	if o.Sensor != nil {
		o.Sensor(id, r)
	}
}

func (o ObserverFuncs) OnDevice(id string, s DeviceState) {
	if o.Device != nil {
		o.Device(id, s)
	}
}

func (o ObserverFuncs) OnLink(id string, state LinkState) {
	if o.Link != nil {
		o.Link(id, state)
	}
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Identity Identity
	Caps     Capabilities

	// Session is required.
	Session Session
	QoS     byte

	// FreshnessWindow defaults to 60s.
	FreshnessWindow time.Duration

	// ResponseTimeout bounds AWAITING_RESPONSE. Zero waits until a
	// message arrives or the link drops.
	ResponseTimeout time.Duration

	// HighWaterMark defaults to 10.
	HighWaterMark int

	// Clock defaults to time.Now.
	Clock func() time.Time

	Logger    Logger
	Observers []Observer
}

// EngineStats are cumulative correlation counters.
type EngineStats struct {
	Link            LinkState `json:"link"`
	Connected       bool      `json:"connected"`
	Refreshes       int64     `json:"refreshes"`
	CacheHits       int64     `json:"cache_hits"`
	WaitersFired    int64     `json:"waiters_fired"`
	Timeouts        int64     `json:"timeouts"`
	Defaults        int64     `json:"defaults"`
	Pending         int       `json:"pending"`
	SensorUpdatedAt time.Time `json:"sensor_updated_at"`
	DeviceUpdatedAt time.Time `json:"device_updated_at"`
}

type waiter func(Snapshot)

type categoryState struct {
	waiters []waiter
	stale   bool

	timer    *time.Timer
	timerGen uint64
}

// Engine correlates asynchronous appliance messages with synchronous
// reads. One engine owns one appliance session and its cached models.
//
// Waiter registration and firing are serialised by mu; callbacks always
// run outside it, so a callback may re-enter the engine.
//
// Thread Safety: All methods are safe for concurrent use.
type Engine struct {
	id        Identity
	caps      Capabilities
	session   Session
	qos       byte
	freshness time.Duration
	timeout   time.Duration
	highWater int
	now       func() time.Time
	observers []Observer

	mu        sync.Mutex
	sensor    SensorReading
	device    DeviceState
	cats      [categoryCount]categoryState
	connected bool
	closed    bool
	link      LinkState

	refreshes    atomic.Int64
	cacheHits    atomic.Int64
	waitersFired atomic.Int64
	timeouts     atomic.Int64
	defaults     atomic.Int64

	done         chan struct{}
	wg           sync.WaitGroup
	stopOnce     sync.Once
	firstConnect chan struct{}
	connectOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewEngine creates an engine. Call Start to connect.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("purelink: session is required")
	}

	e := &Engine{
		id:        opts.Identity,
		caps:      opts.Caps,
		session:   opts.Session,
		qos:       opts.QoS,
		freshness: opts.FreshnessWindow,
		timeout:   opts.ResponseTimeout,
		highWater: opts.HighWaterMark,
		now:       opts.Clock,
		observers: opts.Observers,
		logger:    opts.Logger,

		done:         make(chan struct{}),
		firstConnect: make(chan struct{}),
	}
	if e.freshness <= 0 {
		e.freshness = DefaultFreshnessWindow
	}
	if e.highWater <= 0 {
		e.highWater = DefaultHighWaterMark
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Start registers connection callbacks and the status subscription, then
// starts the session in the background.
func (e *Engine) Start() error {
	e.session.SetOnConnect(e.handleConnect)
	e.session.SetOnDisconnect(e.handleDisconnect)

	topic := e.id.StatusTopic()
	if err := e.session.SubscribePersistent(topic, e.qos, e.handleMessage); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	e.session.Start()
	return nil
}

// Close resolves every pending read with defaults, waits for deferred
// command steps and closes the session. Safe to call multiple times.
func (e *Engine) Close() error {
	var err error
	e.stopOnce.Do(func() {
		close(e.done)

		e.mu.Lock()
		e.closed = true
		e.connected = false
		pending := e.takeAllWaitersLocked()
		link, changed := e.updateLinkLocked()
		e.mu.Unlock()

		e.notifyLink(link, changed)
		e.resolveDefaults(pending)

		e.wg.Wait()
		err = e.session.Close()
	})
	return err
}

// WaitConnected blocks until the first connect acknowledgement, ctx ends
// or the engine is closed.
func (e *Engine) WaitConnected(ctx context.Context) error {
	select {
	case <-e.firstConnect:
		return nil
	case <-e.done:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected reports whether commands can be published.
func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	connected := e.connected && !e.closed
	e.mu.Unlock()
	return connected && e.session.IsConnected()
}

// GetValue resolves cb with the cached snapshot when the category is
// fresh, with the zero snapshot when disconnected, and otherwise with the
// next correlating message (or the stale cache on timeout).
//
// cb may run synchronously. It is called exactly once.
func (e *Engine) GetValue(cat Category, cb func(Snapshot)) {
	e.mu.Lock()
	if e.isFreshLocked(cat) {
		snap := e.snapshotLocked(true)
		e.mu.Unlock()
		e.cacheHits.Add(1)
		cb(snap)
		return
	}

	if !e.connected || e.closed {
		e.mu.Unlock()
		e.defaults.Add(1)
		cb(Snapshot{})
		return
	}

	cs := &e.cats[cat]
	cs.waiters = append(cs.waiters, cb)
	n := len(cs.waiters)
	if n == 1 {
		e.armTimerLocked(cat)
	}
	link, changed := e.updateLinkLocked()
	e.mu.Unlock()

	e.notifyLink(link, changed)
	if n == 1 || n > e.highWater {
		e.requestRefresh()
	}
}

// SetValue publishes plan and then reads cat back. While disconnected it
// publishes nothing and resolves cb with the zero snapshot.
func (e *Engine) SetValue(cat Category, plan Plan, cb func(Snapshot)) {
	if !e.IsConnected() {
		e.defaults.Add(1)
		cb(Snapshot{})
		return
	}

	if len(plan) > 0 {
		e.publishPlan(plan)

		e.mu.Lock()
		e.cats[cat].stale = true
		e.mu.Unlock()
	}

	e.GetValue(cat, cb)
}

// Cached returns the current models without any network activity.
func (e *Engine) Cached() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.isFreshLocked(CategorySensor) && e.isFreshLocked(CategoryDevice))
}

// Device returns the cached device state.
func (e *Engine) Device() DeviceState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device
}

// Link returns the current link state.
func (e *Engine) Link() LinkState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.link
}

// Stats returns the correlation counters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	pending := 0
	for i := range e.cats {
		pending += len(e.cats[i].waiters)
	}
	stats := EngineStats{
		Link:            e.link,
		Connected:       e.connected,
		Pending:         pending,
		SensorUpdatedAt: e.sensor.UpdatedAt,
		DeviceUpdatedAt: e.device.UpdatedAt,
	}
	e.mu.Unlock()

	stats.Refreshes = e.refreshes.Load()
	stats.CacheHits = e.cacheHits.Load()
	stats.WaitersFired = e.waitersFired.Load()
	stats.Timeouts = e.timeouts.Load()
	stats.Defaults = e.defaults.Load()
	return stats
}

// handleMessage dispatches one inbound status message.
func (e *Engine) handleMessage(topic string, payload []byte) error {
	if !e.ownsTopic(topic) {
		e.logDebug("ignoring message on foreign topic", "appliance", e.id.DeviceID, "topic", topic)
		return nil
	}

	kind, raw, err := decodeMessage(payload)
	if err != nil {
		return err
	}
	received := e.now()

	switch kind {
	case MsgSensorData:
		reading := ApplyTelemetry(raw, received)

		e.mu.Lock()
		e.sensor = reading
		pending, snap, link, changed := e.completeLocked(CategorySensor)
		e.mu.Unlock()

		for _, o := range e.observers {
			o.OnSensor(e.id.DeviceID, reading)
		}
		e.notifyLink(link, changed)
		e.fire(pending, snap)

	case MsgCurrentState:
		state := ApplyControlMessage(raw, e.caps, received)

		e.mu.Lock()
		e.device = state
		pending, snap, link, changed := e.completeLocked(CategoryDevice)
		e.mu.Unlock()

		for _, o := range e.observers {
			o.OnDevice(e.id.DeviceID, state)
		}
		e.notifyLink(link, changed)
		e.fire(pending, snap)

	case MsgStateChange:
		e.mu.Lock()
		e.cats[CategoryDevice].stale = true
		e.mu.Unlock()
		e.requestRefresh()

	default:
		e.logDebug("ignoring message", "appliance", e.id.DeviceID, "msg", kind)
	}
	return nil
}

// completeLocked clears the category's stale flag and takes its waiters.
func (e *Engine) completeLocked(cat Category) ([]waiter, Snapshot, LinkState, bool) {
	cs := &e.cats[cat]
	cs.stale = false
	pending := e.takeWaitersLocked(cat)
	snap := e.snapshotLocked(true)
	link, changed := e.updateLinkLocked()
	return pending, snap, link, changed
}

func (e *Engine) handleConnect() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.connected = true
	link, changed := e.updateLinkLocked()
	e.mu.Unlock()

	e.connectOnce.Do(func() { close(e.firstConnect) })

	e.logInfo("appliance connected", "appliance", e.id.DeviceID, "model", e.id.Model)
	e.notifyLink(link, changed)
	e.requestRefresh()
}

func (e *Engine) handleDisconnect(err error) {
	e.mu.Lock()
	e.connected = false
	pending := e.takeAllWaitersLocked()
	link, changed := e.updateLinkLocked()
	e.mu.Unlock()

	e.logWarn("appliance disconnected", "appliance", e.id.DeviceID, "error", err, "pending", len(pending))
	e.notifyLink(link, changed)
	e.resolveDefaults(pending)
}

// handleTimeout resolves a category's waiters with the stale cache. gen
// guards against a timer that fired after its waiters were completed.
func (e *Engine) handleTimeout(cat Category, gen uint64) {
	e.mu.Lock()
	cs := &e.cats[cat]
	if cs.timerGen != gen || len(cs.waiters) == 0 {
		e.mu.Unlock()
		return
	}
	pending := e.takeWaitersLocked(cat)
	snap := e.snapshotLocked(false)
	link, changed := e.updateLinkLocked()
	e.mu.Unlock()

	e.timeouts.Add(1)
	e.logDebug("response timeout", "appliance", e.id.DeviceID, "category", cat.String(), "waiters", len(pending))
	e.notifyLink(link, changed)
	for _, w := range pending {
		w(snap)
	}
}

func (e *Engine) armTimerLocked(cat Category) {
	if e.timeout <= 0 {
		return
	}
	cs := &e.cats[cat]
	cs.timerGen++
	gen := cs.timerGen
	cs.timer = time.AfterFunc(e.timeout, func() { e.handleTimeout(cat, gen) })
}

// takeWaitersLocked detaches a category's waiters and disarms its timer.
func (e *Engine) takeWaitersLocked(cat Category) []waiter {
	cs := &e.cats[cat]
	pending := cs.waiters
	cs.waiters = nil
	if cs.timer != nil {
		cs.timer.Stop()
		cs.timer = nil
	}
	cs.timerGen++
	return pending
}

func (e *Engine) takeAllWaitersLocked() []waiter {
	var pending []waiter
	for cat := range categoryCount {
		pending = append(pending, e.takeWaitersLocked(cat)...)
	}
	return pending
}

func (e *Engine) isFreshLocked(cat Category) bool {
	cs := &e.cats[cat]
	if cs.stale {
		return false
	}
	updated := e.sensor.UpdatedAt
	if cat == CategoryDevice {
		updated = e.device.UpdatedAt
	}
	return !updated.IsZero() && e.now().Sub(updated) <= e.freshness
}

func (e *Engine) snapshotLocked(fresh bool) Snapshot {
	return Snapshot{Sensor: e.sensor, Device: e.device, Fresh: fresh}
}

// updateLinkLocked recomputes the link state and reports whether it changed.
func (e *Engine) updateLinkLocked() (LinkState, bool) {
	next := LinkConnectedIdle
	switch {
	case !e.connected || e.closed:
		next = LinkDisconnected
	case len(e.cats[CategorySensor].waiters) > 0 || len(e.cats[CategoryDevice].waiters) > 0:
		next = LinkAwaitingResponse
	}
	changed := next != e.link
	e.link = next
	return next, changed
}

func (e *Engine) notifyLink(state LinkState, changed bool) {
	if !changed {
		return
	}
	for _, o := range e.observers {
		o.OnLink(e.id.DeviceID, state)
	}
}

func (e *Engine) fire(pending []waiter, snap Snapshot) {
	e.waitersFired.Add(int64(len(pending)))
	for _, w := range pending {
		w(snap)
	}
}

func (e *Engine) resolveDefaults(pending []waiter) {
	e.defaults.Add(int64(len(pending)))
	for _, w := range pending {
		w(Snapshot{})
	}
}

// ownsTopic reports whether topic is this appliance's status topic.
func (e *Engine) ownsTopic(topic string) bool {
	t, err := topics.ParseApplianceTopic(topic)
	return err == nil && t.Kind == mqtt.TopicStatus &&
		t.Model == e.id.Model && t.DeviceID == e.id.DeviceID
}

// requestRefresh publishes REQUEST-CURRENT-STATE. The appliance answers
// with both a CURRENT-STATE and a sensor message.
func (e *Engine) requestRefresh() {
	payload, err := encodeCommand(MsgRequestCurrentState, nil, e.now())
	if err != nil {
		e.logError("encode refresh", err)
		return
	}
	if err := e.session.PublishAsync(e.id.CommandTopic(), payload, e.qos); err != nil {
		e.logWarn("refresh publish failed", "appliance", e.id.DeviceID, "error", err)
		return
	}
	e.refreshes.Add(1)
}

// publishPlan publishes steps in order. From the first delayed step on,
// the remainder runs on its own goroutine so callers never block.
func (e *Engine) publishPlan(plan Plan) {
	for i, step := range plan {
		if step.Delay > 0 {
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			e.wg.Add(1)
			e.mu.Unlock()

			go e.publishDeferred(plan[i:])
			return
		}
		e.publishStep(step)
	}
}

func (e *Engine) publishDeferred(rest Plan) {
	defer e.wg.Done()

	for _, step := range rest {
		if step.Delay > 0 {
			timer := time.NewTimer(step.Delay)
			select {
			case <-e.done:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		e.publishStep(step)
	}
}

func (e *Engine) publishStep(step Step) {
	if len(step.Fields) == 0 {
		return
	}
	payload, err := encodeCommand(MsgStateSet, step.Fields, e.now())
	if err != nil {
		e.logError("encode command", err)
		return
	}
	if err := e.session.PublishAsync(e.id.CommandTopic(), payload, e.qos); err != nil {
		e.logWarn("command publish failed", "appliance", e.id.DeviceID, "error", err)
		return
	}
	e.logDebug("command published", "appliance", e.id.DeviceID, "fields", step.Fields)
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

func (e *Engine) getLogger() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

func (e *Engine) logInfo(msg string, keysAndValues ...any) {
	if logger := e.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (e *Engine) logWarn(msg string, keysAndValues ...any) {
	if logger := e.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (e *Engine) logError(msg string, err error) {
	if logger := e.getLogger(); logger != nil {
		logger.Error(msg, "appliance", e.id.DeviceID, "error", err)
	}
}

func (e *Engine) logDebug(msg string, keysAndValues ...any) {
	if logger := e.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
