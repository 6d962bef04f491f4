package accessory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
)

const storeTimeout = 5 * time.Second

// Callback delivers a characteristic value to the host.
type Callback func(value any, err error)

// Getter is registered with the host for reads.
type Getter func(cb Callback)

// Setter is registered with the host for writes.
type Setter func(value any, cb Callback)

// Binder is the host-side registry characteristics are attached to.
type Binder interface {
	Bind(service, characteristic string, get Getter, set Setter)
}

// UIRequests is what the host last asked the appliance for.
type UIRequests struct {
	Speed       int       `json:"speed"`
	Oscillation bool      `json:"oscillation"`
	NightMode   bool      `json:"night_mode"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UIStore persists UI requests across restarts.
type UIStore interface {
	SaveUIRequests(ctx context.Context, applianceID string, req UIRequests) error
	LoadUIRequests(ctx context.Context, applianceID string) (UIRequests, bool, error)
}

// Logger is the logging surface used by accessories.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures NewAccessory.
type Options struct {
	Appliance *purelink.Appliance
	Store     UIStore // optional
	Logger    Logger  // optional
	Clock     func() time.Time
}

// Accessory adapts one appliance to the host's characteristic model and
// remembers what the host UI last requested.
//
// Accessory implements purelink.UISnapshot and installs itself on the
// appliance, so powering on restores the last requested speed,
// oscillation and night mode.
type Accessory struct {
	appliance *purelink.Appliance
	store     UIStore
	logger    Logger
	clock     func() time.Time

	mu  sync.RWMutex
	req UIRequests

	// saveMu orders persistence so the stored requests are never older
	// than the last completed save.
	saveMu sync.Mutex
}

// NewAccessory builds the adapter and restores persisted UI requests.
func NewAccessory(ctx context.Context, opts Options) (*Accessory, error) {
	if opts.Appliance == nil {
		return nil, ErrApplianceRequired
	}
	a := &Accessory{
		appliance: opts.Appliance,
		store:     opts.Store,
		logger:    opts.Logger,
		clock:     opts.Clock,
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}
	if a.clock == nil {
		a.clock = time.Now
	}

	if a.store != nil {
		req, ok, err := a.store.LoadUIRequests(ctx, a.appliance.ID())
		if err != nil {
			return nil, fmt.Errorf("loading ui requests for %s: %w", a.appliance.ID(), err)
		}
		if ok {
			a.req = req
		}
	}

	a.appliance.SetUISnapshot(a)
	return a, nil
}

// Appliance returns the wrapped appliance.
func (a *Accessory) Appliance() *purelink.Appliance { return a.appliance }

// Characteristics lists the characteristics exposed for this appliance,
// honouring the configured toggles and model capabilities.
func (a *Accessory) Characteristics() []Characteristic {
	controls := a.appliance.Controls()
	caps := a.appliance.Capabilities()

	out := make([]Characteristic, 0, len(catalog))
	for _, c := range catalog {
		if c.shown(controls, caps) {
			out = append(out, c)
		}
	}
	return out
}

// Bind registers every exposed characteristic with the host.
// Read-only characteristics are bound with a nil Setter.
func (a *Accessory) Bind(b Binder) {
	for _, c := range a.Characteristics() {
		name := c.Name
		get := func(cb Callback) {
			if err := a.Get(name, cb); err != nil {
				cb(nil, err)
			}
		}
		var set Setter
		if c.Writable() {
			set = func(value any, cb Callback) {
				if err := a.Set(name, value, cb); err != nil {
					cb(nil, err)
				}
			}
		}
		b.Bind(c.Service, name, get, set)
	}
}

func (a *Accessory) exposed(name string) (Characteristic, error) {
	c, ok := lookup(name)
	if !ok {
		return Characteristic{}, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, name)
	}
	if !c.shown(a.appliance.Controls(), a.appliance.Capabilities()) {
		return Characteristic{}, fmt.Errorf("%w: %s", ErrHidden, name)
	}
	return c, nil
}

// Get reads a characteristic. cb is invoked exactly once unless an error
// is returned, in which case it is not invoked at all.
func (a *Accessory) Get(name string, cb Callback) error {
	c, err := a.exposed(name)
	if err != nil {
		return err
	}
	c.get(a.appliance, cb)
	return nil
}

// Set writes a characteristic and reports the value the appliance settled
// on. cb is invoked exactly once unless an error is returned.
func (a *Accessory) Set(name string, value any, cb Callback) error {
	c, err := a.exposed(name)
	if err != nil {
		return err
	}
	if !c.Writable() {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	return c.set(a, value, cb)
}

// Read is the blocking form of Get.
func (a *Accessory) Read(ctx context.Context, name string) (any, error) {
	return a.await(ctx, func(cb Callback) error { return a.Get(name, cb) })
}

// Write is the blocking form of Set.
func (a *Accessory) Write(ctx context.Context, name string, value any) (any, error) {
	return a.await(ctx, func(cb Callback) error { return a.Set(name, value, cb) })
}

type result struct {
	value any
	err   error
}

func (a *Accessory) await(ctx context.Context, call func(Callback) error) (any, error) {
	done := make(chan result, 1)
	if err := call(func(v any, err error) { done <- result{v, err} }); err != nil {
		return nil, err
	}
	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// UIRequests returns the last recorded UI requests.
func (a *Accessory) UIRequests() UIRequests {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.req
}

// LastRequestedSpeed implements purelink.UISnapshot.
func (a *Accessory) LastRequestedSpeed() int {
	return a.UIRequests().Speed
}

// IsOscillationRequested implements purelink.UISnapshot.
func (a *Accessory) IsOscillationRequested() bool {
	return a.UIRequests().Oscillation
}

// IsNightModeRequested implements purelink.UISnapshot.
func (a *Accessory) IsNightModeRequested() bool {
	return a.UIRequests().NightMode
}

// A zero speed is a power-off, not a preference, so it is not recorded.
func (a *Accessory) recordSpeed(pct int) {
	if pct <= 0 {
		return
	}
	a.record(func(r *UIRequests) { r.Speed = pct })
}

func (a *Accessory) recordOscillation(on bool) {
	a.record(func(r *UIRequests) { r.Oscillation = on })
}

func (a *Accessory) recordNightMode(on bool) {
	a.record(func(r *UIRequests) { r.NightMode = on })
}

func (a *Accessory) record(update func(*UIRequests)) {
	a.mu.Lock()
	update(&a.req)
	a.req.UpdatedAt = a.clock()
	a.mu.Unlock()

	if a.store == nil {
		return
	}

	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	snapshot := a.UIRequests()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.store.SaveUIRequests(ctx, a.appliance.ID(), snapshot); err != nil {
		a.logger.Warn("failed to persist ui requests",
			"appliance_id", a.appliance.ID(),
			"error", err,
		)
	}
}
