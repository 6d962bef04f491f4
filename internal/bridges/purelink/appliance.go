package purelink

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
)

// Appliance exposes one appliance's controls and sensors as callback
// accessors. Every callback is invoked exactly once, possibly
// synchronously, and never with an error: timeouts serve the stale cache
// and a dropped link serves zero values.
type Appliance struct {
	cfg     config.ApplianceConfig
	id      Identity
	caps    Capabilities
	engine  *Engine
	encoder Encoder

	ui   UISnapshot
	uiMu sync.RWMutex
}

func newAppliance(cfg config.ApplianceConfig, id Identity, caps Capabilities, engine *Engine, encoder Encoder) *Appliance {
	return &Appliance{
		cfg:     cfg,
		id:      id,
		caps:    caps,
		engine:  engine,
		encoder: encoder,
		ui:      noUI{},
	}
}

// ID is the device id parsed from the serial number.
func (a *Appliance) ID() string { return a.id.DeviceID }

// Name is the configured display name.
func (a *Appliance) Name() string { return a.cfg.DisplayName }

// Address is the configured broker host.
func (a *Appliance) Address() string { return a.cfg.Address }

// Identity returns the parsed serial number.
func (a *Appliance) Identity() Identity { return a.id }

// UUID is the stable accessory UUID.
func (a *Appliance) UUID() uuid.UUID { return a.id.UUID() }

// Capabilities returns the model flags.
func (a *Appliance) Capabilities() Capabilities { return a.caps }

// Controls returns the configured visibility toggles.
func (a *Appliance) Controls() config.ControlsConfig { return a.cfg.Controls }

// Engine returns the correlation engine.
func (a *Appliance) Engine() *Engine { return a.engine }

// SetUISnapshot injects the provider consulted on power-on. nil restores
// the default, which requests nothing.
func (a *Appliance) SetUISnapshot(ui UISnapshot) {
	if ui == nil {
		ui = noUI{}
	}
	a.uiMu.Lock()
	a.ui = ui
	a.uiMu.Unlock()
}

func (a *Appliance) uiSnapshot() UISnapshot {
	a.uiMu.RLock()
	defer a.uiMu.RUnlock()
	return a.ui
}

func (a *Appliance) sensor(cb func(SensorReading)) {
	a.engine.GetValue(CategorySensor, func(s Snapshot) { cb(s.Sensor) })
}

func (a *Appliance) device(cb func(DeviceState)) {
	a.engine.GetValue(CategoryDevice, func(s Snapshot) { cb(s.Device) })
}

func (a *Appliance) set(plan Plan, cb func(DeviceState)) {
	a.engine.SetValue(CategoryDevice, plan, func(s Snapshot) { cb(s.Device) })
}

// ===== Sensors =====

// Temperature reports °C.
func (a *Appliance) Temperature(cb func(float64)) {
	a.sensor(func(r SensorReading) { cb(r.Temperature) })
}

// Humidity reports relative humidity in percent.
func (a *Appliance) Humidity(cb func(int)) {
	a.sensor(func(r SensorReading) { cb(r.Humidity) })
}

// AirQuality reports the composite index.
func (a *Appliance) AirQuality(cb func(AirQuality)) {
	a.sensor(func(r SensorReading) { cb(r.AirQuality) })
}

func (a *Appliance) PM25(cb func(int)) {
	a.sensor(func(r SensorReading) { cb(r.PM25) })
}

func (a *Appliance) PM10(cb func(int)) {
	a.sensor(func(r SensorReading) { cb(r.PM10) })
}

func (a *Appliance) VOC(cb func(int)) {
	a.sensor(func(r SensorReading) { cb(r.VOC) })
}

func (a *Appliance) NO2(cb func(int)) {
	a.sensor(func(r SensorReading) { cb(r.NO2) })
}

// ===== Fan =====

func (a *Appliance) FanOn(cb func(bool)) {
	a.device(func(s DeviceState) { cb(s.FanOn) })
}

// SetFanOn switches power. Switching on re-asserts the UI's last speed,
// oscillation and night mode.
func (a *Appliance) SetFanOn(on bool, cb func(bool)) {
	plan := a.encoder.Power(on, a.engine.Device(), a.uiSnapshot())
	a.set(plan, func(s DeviceState) { cb(s.FanOn) })
}

func (a *Appliance) Auto(cb func(bool)) {
	a.device(func(s DeviceState) { cb(s.Auto) })
}

func (a *Appliance) SetAuto(on bool, cb func(bool)) {
	a.set(a.encoder.Auto(on), func(s DeviceState) { cb(s.Auto) })
}

// Speed reports the fan speed in percent (0-100, step 10).
func (a *Appliance) Speed(cb func(int)) {
	a.device(func(s DeviceState) { cb(s.Speed) })
}

func (a *Appliance) SetSpeed(pct int, cb func(int)) {
	a.set(a.encoder.Speed(pct), func(s DeviceState) { cb(s.Speed) })
}

func (a *Appliance) Oscillation(cb func(bool)) {
	a.device(func(s DeviceState) { cb(s.Oscillation) })
}

func (a *Appliance) SetOscillation(on bool, cb func(bool)) {
	plan := a.encoder.Oscillation(on, a.engine.Device())
	a.set(plan, func(s DeviceState) { cb(s.Oscillation) })
}

func (a *Appliance) NightMode(cb func(bool)) {
	a.device(func(s DeviceState) { cb(s.NightMode) })
}

func (a *Appliance) SetNightMode(on bool, cb func(bool)) {
	a.set(a.encoder.NightMode(on), func(s DeviceState) { cb(s.NightMode) })
}

func (a *Appliance) JetFocus(cb func(bool)) {
	a.device(func(s DeviceState) { cb(s.JetFocus) })
}

func (a *Appliance) SetJetFocus(on bool, cb func(bool)) {
	a.set(a.encoder.JetFocus(on), func(s DeviceState) { cb(s.JetFocus) })
}

// ===== Heater / cooler =====

func (a *Appliance) Heat(cb func(bool)) {
	a.device(func(s DeviceState) { cb(s.Heat) })
}

func (a *Appliance) SetHeat(on bool, cb func(bool)) {
	a.set(a.encoder.Heat(on), func(s DeviceState) { cb(s.Heat) })
}

// HeatingThreshold reports the heating target in °C.
func (a *Appliance) HeatingThreshold(cb func(float64)) {
	a.device(func(s DeviceState) { cb(s.HeatingThreshold) })
}

func (a *Appliance) SetHeatingThreshold(celsius float64, cb func(float64)) {
	a.set(a.encoder.HeatingThreshold(celsius), func(s DeviceState) { cb(s.HeatingThreshold) })
}

func (a *Appliance) CurrentHeaterCooler(cb func(HeaterCoolerCurrent)) {
	a.device(func(s DeviceState) { cb(s.CurrentHeaterCooler) })
}

func (a *Appliance) TargetHeaterCooler(cb func(HeaterCoolerTarget)) {
	a.device(func(s DeviceState) { cb(s.TargetHeaterCooler) })
}

func (a *Appliance) SetTargetHeaterCooler(target HeaterCoolerTarget, cb func(HeaterCoolerTarget)) {
	a.set(a.encoder.TargetHeaterCooler(target), func(s DeviceState) { cb(s.TargetHeaterCooler) })
}

// HeaterCoolerActive mirrors fan power.
func (a *Appliance) HeaterCoolerActive(cb func(bool)) {
	a.device(func(s DeviceState) { cb(s.FanOn) })
}

func (a *Appliance) SetHeaterCoolerActive(on bool, cb func(bool)) {
	plan := a.encoder.HeaterCoolerActive(on, a.engine.Device(), a.uiSnapshot())
	a.set(plan, func(s DeviceState) { cb(s.FanOn) })
}

// ===== Filter =====

// FilterLife reports remaining filter life in percent.
func (a *Appliance) FilterLife(cb func(float64)) {
	a.device(func(s DeviceState) { cb(s.FilterLife) })
}

func (a *Appliance) FilterChangeRequired(cb func(bool)) {
	a.device(func(s DeviceState) { cb(s.FilterChangeRequired) })
}
