package accessory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
)

// primed waits until the priming refresh has populated both caches, so
// later reads are never answered by the priming reply.
func primed(t *testing.T, acc *Accessory) {
	t.Helper()
	waitFor(t, "priming refresh", func() bool {
		s := acc.Appliance().Engine().Stats()
		return !s.DeviceUpdatedAt.IsZero() && !s.SensorUpdatedAt.IsZero()
	})
}

func read(t *testing.T, acc *Accessory, name string) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := acc.Read(ctx, name)
	if err != nil {
		t.Fatalf("Read(%s) error = %v", name, err)
	}
	return v
}

func write(t *testing.T, acc *Accessory, name string, value any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := acc.Write(ctx, name, value)
	if err != nil {
		t.Fatalf("Write(%s, %v) error = %v", name, value, err)
	}
	return v
}

// ===== Construction =====

func TestNewAccessory_RequiresAppliance(t *testing.T) {
	_, err := NewAccessory(context.Background(), Options{})
	if !errors.Is(err, ErrApplianceRequired) {
		t.Errorf("NewAccessory() error = %v, want ErrApplianceRequired", err)
	}
}

func TestNewAccessory_RestoresUIRequests(t *testing.T) {
	store := newMemoryUIStore()
	store.saved["NN2-EU-KJA1234A"] = UIRequests{Speed: 70, Oscillation: true, NightMode: true}

	acc, _ := newTestAccessory(t, store, heaterConfig())

	if got := acc.LastRequestedSpeed(); got != 70 {
		t.Errorf("LastRequestedSpeed() = %d, want 70", got)
	}
	if !acc.IsOscillationRequested() || !acc.IsNightModeRequested() {
		t.Errorf("UIRequests() = %+v, want oscillation and night mode", acc.UIRequests())
	}
}

func TestNewAccessory_LoadError(t *testing.T) {
	b, _ := newTestBridge(t, heaterConfig())
	store := newMemoryUIStore()
	store.loadErr = errors.New("disk gone")

	_, err := NewAccessory(context.Background(), Options{Appliance: b.Appliances()[0], Store: store})
	if err == nil {
		t.Fatal("NewAccessory() should fail when ui requests cannot be loaded")
	}
}

// ===== Catalog =====

func TestCharacteristics_Visibility(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ApplianceConfig
		present []string
		absent  []string
	}{
		{
			name:    "heat model shows everything by default",
			cfg:     heaterConfig(),
			present: []string{"fan_on", "speed", "jet_focus", "heat", "heating_threshold", "target_heater_cooler_state", "pm25_density", "filter_life"},
		},
		{
			name: "non-heat model hides heat controls",
			cfg: config.ApplianceConfig{
				DisplayName: "Office", Address: "192.168.1.21", SerialNumber: "DYSON-AB1-US-HEA0001B-438", Credential: "pw",
			},
			present: []string{"fan_on", "heater_cooler_active", "target_heater_cooler_state"},
			absent:  []string{"heat", "heating_threshold"},
		},
		{
			name: "toggles hide controls",
			cfg: func() config.ApplianceConfig {
				c := heaterConfig()
				c.Controls = config.ControlsConfig{
					JetFocus:     boolPtr(false),
					Rotation:     boolPtr(false),
					Filter:       boolPtr(false),
					HeaterCooler: boolPtr(false),
					AirQuality:   boolPtr(false),
				}
				return c
			}(),
			present: []string{"fan_on", "speed", "auto", "night_mode", "temperature", "humidity"},
			absent: []string{"jet_focus", "oscillation", "filter_life", "filter_change_required", "heat",
				"heater_cooler_active", "air_quality", "voc_density"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, _ := newTestAccessory(t, nil, tt.cfg)

			var names []string
			for _, c := range acc.Characteristics() {
				names = append(names, c.Name)
			}
			for _, n := range tt.present {
				if !slices.Contains(names, n) {
					t.Errorf("%s missing from %v", n, names)
				}
			}
			for _, n := range tt.absent {
				if slices.Contains(names, n) {
					t.Errorf("%s should be hidden", n)
				}
			}
		})
	}
}

func TestCatalog_Consistent(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range Catalog() {
		if seen[c.Name] {
			t.Errorf("duplicate characteristic %s", c.Name)
		}
		seen[c.Name] = true
		if c.get == nil {
			t.Errorf("%s has no getter", c.Name)
		}
		if c.Access.Write != (c.set != nil) {
			t.Errorf("%s write access %v does not match setter", c.Name, c.Access.Write)
		}
		if c.Range != nil && c.Range.Min > c.Range.Max {
			t.Errorf("%s range %+v inverted", c.Name, *c.Range)
		}
	}
}

// ===== Reads =====

func TestRead_ServedFromAppliance(t *testing.T) {
	acc, _ := newTestAccessory(t, nil, heaterConfig())
	primed(t, acc)

	tests := []struct {
		name string
		want any
	}{
		{"temperature", 21.85},
		{"humidity", 45},
		{"air_quality", int(purelink.AirQualityGood)},
		{"fan_on", false},
		{"speed", 40},
		{"heating_threshold", 22.85},
		{"filter_life", 50.0},
		{"filter_change_required", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := read(t, acc, tt.name); got != tt.want {
				t.Errorf("Read(%s) = %v (%T), want %v (%T)", tt.name, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestRead_Errors(t *testing.T) {
	cfg := heaterConfig()
	cfg.Controls.JetFocus = boolPtr(false)
	acc, _ := newTestAccessory(t, nil, cfg)
	ctx := context.Background()

	if _, err := acc.Read(ctx, "warp_drive"); !errors.Is(err, ErrUnknownCharacteristic) {
		t.Errorf("Read(unknown) error = %v, want ErrUnknownCharacteristic", err)
	}
	if _, err := acc.Read(ctx, "jet_focus"); !errors.Is(err, ErrHidden) {
		t.Errorf("Read(hidden) error = %v, want ErrHidden", err)
	}
}

func TestWrite_ContextCancelled(t *testing.T) {
	acc, fake := newTestAccessory(t, nil, heaterConfig())
	primed(t, acc)
	fake.mu.Lock()
	fake.silent = true
	fake.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := acc.Write(ctx, "jet_focus", true); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v, want context.Canceled", err)
	}
	if got := fake.field("ffoc"); got != "ON" {
		t.Errorf("ffoc = %q, want ON (the command is sent even if the caller gives up)", got)
	}
}

// ===== Writes =====

func TestWrite_RoundTrip(t *testing.T) {
	acc, fake := newTestAccessory(t, nil, heaterConfig())
	primed(t, acc)

	if got := write(t, acc, "speed", 70); got != 70 {
		t.Errorf("Write(speed) = %v, want 70", got)
	}
	if got := fake.field("fnsp"); got != "0007" {
		t.Errorf("fnsp = %q, want 0007", got)
	}

	// 21 °C encodes as 2942 dK, which reads back as 21.05 °C.
	if got := write(t, acc, "heating_threshold", 21); got != 21.05 {
		t.Errorf("Write(heating_threshold) = %v, want 21.05", got)
	}
	if got := fake.field("hmax"); got != "2942" {
		t.Errorf("hmax = %q, want 2942", got)
	}

	if got := write(t, acc, "target_heater_cooler_state", "HEAT"); got != int(purelink.TargetHeat) {
		t.Errorf("Write(target) = %v, want %d", got, purelink.TargetHeat)
	}
	if got := fake.field("hmod"); got != "HEAT" {
		t.Errorf("hmod = %q, want HEAT", got)
	}
}

func TestWrite_Errors(t *testing.T) {
	acc, _ := newTestAccessory(t, nil, heaterConfig())
	ctx := context.Background()

	tests := []struct {
		name  string
		char  string
		value any
		want  error
	}{
		{"read-only", "temperature", 20, ErrReadOnly},
		{"wrong type", "fan_on", []int{1}, ErrInvalidValue},
		{"not a number", "speed", "fast", ErrInvalidValue},
		{"speed above range", "speed", 150, ErrInvalidValue},
		{"threshold below range", "heating_threshold", -4, ErrInvalidValue},
		{"bad target", "target_heater_cooler_state", 7, ErrInvalidValue},
		{"unknown", "warp_drive", true, ErrUnknownCharacteristic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := acc.Write(ctx, tt.char, tt.value); !errors.Is(err, tt.want) {
				t.Errorf("Write(%s, %v) error = %v, want %v", tt.char, tt.value, err, tt.want)
			}
		})
	}
}

// ===== UI requests =====

func TestRecord_ConcurrentSavesPersistLatest(t *testing.T) {
	store := newMemoryUIStore()
	acc, _ := newTestAccessory(t, store, heaterConfig())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc.recordSpeed(10 * (i%10 + 1))
			acc.recordNightMode(i%2 == 0)
		}()
	}
	wg.Wait()

	store.mu.Lock()
	saved := store.saved["NN2-EU-KJA1234A"]
	store.mu.Unlock()
	if got := acc.UIRequests(); saved != got {
		t.Errorf("persisted %+v, in memory %+v", saved, got)
	}
}

func TestWrite_RecordsUIRequests(t *testing.T) {
	store := newMemoryUIStore()
	acc, _ := newTestAccessory(t, store, heaterConfig())
	primed(t, acc)

	write(t, acc, "speed", 60)
	write(t, acc, "night_mode", true)
	write(t, acc, "speed", 0)

	req := acc.UIRequests()
	if req.Speed != 60 {
		t.Errorf("Speed = %d, want 60 (zero is a power-off, not a request)", req.Speed)
	}
	if !req.NightMode || req.UpdatedAt.IsZero() {
		t.Errorf("UIRequests() = %+v", req)
	}

	store.mu.Lock()
	saved := store.saved["NN2-EU-KJA1234A"]
	store.mu.Unlock()
	if saved.Speed != 60 || !saved.NightMode {
		t.Errorf("persisted = %+v, want speed 60 and night mode", saved)
	}
}

func TestWrite_SaveErrorDoesNotFailWrite(t *testing.T) {
	store := newMemoryUIStore()
	store.saveErr = errors.New("read-only filesystem")
	acc, _ := newTestAccessory(t, store, heaterConfig())
	primed(t, acc)

	if got := write(t, acc, "speed", 30); got != 30 {
		t.Errorf("Write(speed) = %v, want 30", got)
	}
	if acc.LastRequestedSpeed() != 30 {
		t.Errorf("LastRequestedSpeed() = %d, want 30", acc.LastRequestedSpeed())
	}
}

func TestPowerOn_RestoresUIRequests(t *testing.T) {
	acc, fake := newTestAccessory(t, nil, heaterConfig())
	primed(t, acc)

	write(t, acc, "speed", 70)
	write(t, acc, "oscillation", true)
	waitFor(t, "oscillation applied", func() bool { return fake.field("oson") == "ON" })

	before := len(fake.setLog())
	write(t, acc, "fan_on", true)
	waitFor(t, "restore sequence", func() bool { return len(fake.setLog()) >= before+3 })

	sets := fake.setLog()[before:]
	if sets[0]["fmod"] != "FAN" {
		t.Errorf("first set = %v, want fmod FAN", sets[0])
	}
	if sets[1]["fnsp"] != "0007" {
		t.Errorf("second set = %v, want fnsp 0007", sets[1])
	}
	if sets[2]["oson"] != "ON" {
		t.Errorf("third set = %v, want oson ON", sets[2])
	}
}

// ===== Binding =====

func TestBind(t *testing.T) {
	acc, _ := newTestAccessory(t, nil, heaterConfig())
	primed(t, acc)

	var b recordingBinder
	acc.Bind(&b)

	if len(b.order) != len(acc.Characteristics()) {
		t.Fatalf("bound %d characteristics, want %d", len(b.order), len(acc.Characteristics()))
	}
	if b.bound["temperature"].set != nil {
		t.Error("read-only temperature bound with a setter")
	}
	if got := b.bound["temperature"].service; got != ServiceTemperature {
		t.Errorf("temperature service = %q, want %q", got, ServiceTemperature)
	}

	got := make(chan any, 1)
	b.bound["humidity"].get(func(v any, err error) {
		if err != nil {
			t.Errorf("humidity getter error = %v", err)
		}
		got <- v
	})
	select {
	case v := <-got:
		if v != 45 {
			t.Errorf("humidity = %v, want 45", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("humidity getter never called back")
	}

	errs := make(chan error, 1)
	b.bound["speed"].set("fast", func(_ any, err error) { errs <- err })
	if err := <-errs; !errors.Is(err, ErrInvalidValue) {
		t.Errorf("speed setter error = %v, want ErrInvalidValue", err)
	}
}
