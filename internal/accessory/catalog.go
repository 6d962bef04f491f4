package accessory

import (
	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
)

// Service names group characteristics the way the host presents them.
const (
	ServiceAirPurifier  = "air_purifier"
	ServiceTemperature  = "temperature_sensor"
	ServiceHumidity     = "humidity_sensor"
	ServiceAirQuality   = "air_quality_sensor"
	ServiceHeaterCooler = "heater_cooler"
	ServiceFilter       = "filter_maintenance"
)

// Format is the value type of a characteristic.
type Format string

// Characteristic formats.
const (
	FormatBool  Format = "bool"
	FormatInt   Format = "int"
	FormatFloat Format = "float"
)

// Access lists what a host may do with a characteristic.
type Access struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Notify bool `json:"notify"`
}

// Range bounds numeric characteristics.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step,omitempty"`
}

// Characteristic describes one exposed control or sensor value.
type Characteristic struct {
	Name    string `json:"name"`
	Service string `json:"service"`
	Format  Format `json:"format"`
	Unit    string `json:"unit,omitempty"`
	Range   *Range `json:"range,omitempty"`
	Access  Access `json:"access"`

	// shown reports whether the characteristic is exposed for an appliance.
	shown func(c config.ControlsConfig, caps purelink.Capabilities) bool
	get   func(a *purelink.Appliance, cb Callback)
	set   func(x *Accessory, value any, cb Callback) error
}

// Writable reports whether the characteristic accepts writes.
func (c Characteristic) Writable() bool { return c.Access.Write }

var (
	readOnly  = Access{Read: true, Notify: true}
	readWrite = Access{Read: true, Write: true, Notify: true}

	percent     = &Range{Min: 0, Max: 100, Step: 1}
	speedRange  = &Range{Min: 0, Max: 100, Step: 10}
	pollutant   = &Range{Min: 0, Max: 1000, Step: 1}
	heaterRange = &Range{Min: 1, Max: 37, Step: 0.1}
)

func always(config.ControlsConfig, purelink.Capabilities) bool { return true }

func toggle(pick func(config.ControlsConfig) *bool) func(config.ControlsConfig, purelink.Capabilities) bool {
	return func(c config.ControlsConfig, _ purelink.Capabilities) bool {
		return config.Shown(pick(c))
	}
}

func heaterShown(c config.ControlsConfig, _ purelink.Capabilities) bool {
	return config.Shown(c.HeaterCooler)
}

func heatShown(c config.ControlsConfig, caps purelink.Capabilities) bool {
	return caps.HeatAvailable && config.Shown(c.HeaterCooler)
}

var (
	airQualityShown = toggle(func(c config.ControlsConfig) *bool { return c.AirQuality })
	filterShown     = toggle(func(c config.ControlsConfig) *bool { return c.Filter })
)

// catalog is the full characteristic set in presentation order.
var catalog = []Characteristic{
	{
		Name: "fan_on", Service: ServiceAirPurifier, Format: FormatBool, Access: readWrite,
		shown: always,
		get:   func(a *purelink.Appliance, cb Callback) { a.FanOn(boolResult(cb)) },
		set: func(x *Accessory, v any, cb Callback) error {
			on, err := toBool(v)
			if err != nil {
				return err
			}
			x.appliance.SetFanOn(on, boolResult(cb))
			return nil
		},
	},
	{
		Name: "auto", Service: ServiceAirPurifier, Format: FormatBool, Access: readWrite,
		shown: toggle(func(c config.ControlsConfig) *bool { return c.Auto }),
		get:   func(a *purelink.Appliance, cb Callback) { a.Auto(boolResult(cb)) },
		set: func(x *Accessory, v any, cb Callback) error {
			on, err := toBool(v)
			if err != nil {
				return err
			}
			x.appliance.SetAuto(on, boolResult(cb))
			return nil
		},
	},
	{
		Name: "speed", Service: ServiceAirPurifier, Format: FormatInt, Unit: "percentage", Range: speedRange, Access: readWrite,
		shown: always,
		get:   func(a *purelink.Appliance, cb Callback) { a.Speed(intResult(cb)) },
		set: func(x *Accessory, v any, cb Callback) error {
			pct, err := toInt(v)
			if err != nil {
				return err
			}
			if err := inRange(float64(pct), speedRange); err != nil {
				return err
			}
			x.recordSpeed(pct)
			x.appliance.SetSpeed(pct, intResult(cb))
			return nil
		},
	},
	{
		Name: "oscillation", Service: ServiceAirPurifier, Format: FormatBool, Access: readWrite,
		shown: toggle(func(c config.ControlsConfig) *bool { return c.Rotation }),
		get:   func(a *purelink.Appliance, cb Callback) { a.Oscillation(boolResult(cb)) },
		set: func(x *Accessory, v any, cb Callback) error {
			on, err := toBool(v)
			if err != nil {
				return err
			}
			x.recordOscillation(on)
			x.appliance.SetOscillation(on, boolResult(cb))
			return nil
		},
	},
	{
		Name: "night_mode", Service: ServiceAirPurifier, Format: FormatBool, Access: readWrite,
		shown: toggle(func(c config.ControlsConfig) *bool { return c.NightMode }),
		get:   func(a *purelink.Appliance, cb Callback) { a.NightMode(boolResult(cb)) },
		set: func(x *Accessory, v any, cb Callback) error {
			on, err := toBool(v)
			if err != nil {
				return err
			}
			x.recordNightMode(on)
			x.appliance.SetNightMode(on, boolResult(cb))
			return nil
		},
	},
	{
		Name: "jet_focus", Service: ServiceAirPurifier, Format: FormatBool, Access: readWrite,
		shown: toggle(func(c config.ControlsConfig) *bool { return c.JetFocus }),
		get:   func(a *purelink.Appliance, cb Callback) { a.JetFocus(boolResult(cb)) },
		set: func(x *Accessory, v any, cb Callback) error {
			on, err := toBool(v)
			if err != nil {
				return err
			}
			x.appliance.SetJetFocus(on, boolResult(cb))
			return nil
		},
	},
	{
		Name: "temperature", Service: ServiceTemperature, Format: FormatFloat, Unit: "celsius",
		Range: &Range{Min: -50, Max: 100, Step: 0.01}, Access: readOnly,
		shown: always,
		get: func(a *purelink.Appliance, cb Callback) {
			a.Temperature(func(v float64) { cb(v, nil) })
		},
	},
	{
		Name: "humidity", Service: ServiceHumidity, Format: FormatInt, Unit: "percentage", Range: percent, Access: readOnly,
		shown: always,
		get:   func(a *purelink.Appliance, cb Callback) { a.Humidity(intResult(cb)) },
	},
	{
		Name: "air_quality", Service: ServiceAirQuality, Format: FormatInt, Range: &Range{Min: 0, Max: 5, Step: 1}, Access: readOnly,
		shown: airQualityShown,
		get: func(a *purelink.Appliance, cb Callback) {
			a.AirQuality(func(v purelink.AirQuality) { cb(int(v), nil) })
		},
	},
	{
		Name: "pm25_density", Service: ServiceAirQuality, Format: FormatInt, Range: pollutant, Access: readOnly,
		shown: airQualityShown,
		get:   func(a *purelink.Appliance, cb Callback) { a.PM25(intResult(cb)) },
	},
	{
		Name: "pm10_density", Service: ServiceAirQuality, Format: FormatInt, Range: pollutant, Access: readOnly,
		shown: airQualityShown,
		get:   func(a *purelink.Appliance, cb Callback) { a.PM10(intResult(cb)) },
	},
	{
		Name: "voc_density", Service: ServiceAirQuality, Format: FormatInt, Range: pollutant, Access: readOnly,
		shown: airQualityShown,
		get:   func(a *purelink.Appliance, cb Callback) { a.VOC(intResult(cb)) },
	},
	{
		Name: "no2_density", Service: ServiceAirQuality, Format: FormatInt, Range: pollutant, Access: readOnly,
		shown: airQualityShown,
		get:   func(a *purelink.Appliance, cb Callback) { a.NO2(intResult(cb)) },
	},
	{
		Name: "heater_cooler_active", Service: ServiceHeaterCooler, Format: FormatBool, Access: readWrite,
		shown: heaterShown,
		get:   func(a *purelink.Appliance, cb Callback) { a.HeaterCoolerActive(boolResult(cb)) },
		set: func(x *Accessory, v any, cb Callback) error {
			on, err := toBool(v)
			if err != nil {
				return err
			}
			x.appliance.SetHeaterCoolerActive(on, boolResult(cb))
			return nil
		},
	},
	{
		Name: "current_heater_cooler_state", Service: ServiceHeaterCooler, Format: FormatInt,
		Range: &Range{Min: 0, Max: 3, Step: 1}, Access: readOnly,
		shown: heaterShown,
		get: func(a *purelink.Appliance, cb Callback) {
			a.CurrentHeaterCooler(func(v purelink.HeaterCoolerCurrent) { cb(int(v), nil) })
		},
	},
	{
		Name: "target_heater_cooler_state", Service: ServiceHeaterCooler, Format: FormatInt,
		Range: &Range{Min: 0, Max: 2, Step: 1}, Access: readWrite,
		shown: heaterShown,
		get: func(a *purelink.Appliance, cb Callback) {
			a.TargetHeaterCooler(func(v purelink.HeaterCoolerTarget) { cb(int(v), nil) })
		},
		set: func(x *Accessory, v any, cb Callback) error {
			target, err := toTarget(v)
			if err != nil {
				return err
			}
			x.appliance.SetTargetHeaterCooler(target, func(t purelink.HeaterCoolerTarget) { cb(int(t), nil) })
			return nil
		},
	},
	{
		Name: "heat", Service: ServiceHeaterCooler, Format: FormatBool, Access: readWrite,
		shown: heatShown,
		get:   func(a *purelink.Appliance, cb Callback) { a.Heat(boolResult(cb)) },
		set: func(x *Accessory, v any, cb Callback) error {
			on, err := toBool(v)
			if err != nil {
				return err
			}
			x.appliance.SetHeat(on, boolResult(cb))
			return nil
		},
	},
	{
		Name: "heating_threshold", Service: ServiceHeaterCooler, Format: FormatFloat, Unit: "celsius",
		Range: heaterRange, Access: readWrite,
		shown: heatShown,
		get: func(a *purelink.Appliance, cb Callback) {
			a.HeatingThreshold(func(v float64) { cb(v, nil) })
		},
		set: func(x *Accessory, v any, cb Callback) error {
			c, err := toFloat(v)
			if err != nil {
				return err
			}
			if err := inRange(c, heaterRange); err != nil {
				return err
			}
			x.appliance.SetHeatingThreshold(c, func(t float64) { cb(t, nil) })
			return nil
		},
	},
	{
		Name: "filter_life", Service: ServiceFilter, Format: FormatFloat, Unit: "percentage", Range: percent, Access: readOnly,
		shown: filterShown,
		get: func(a *purelink.Appliance, cb Callback) {
			a.FilterLife(func(v float64) { cb(v, nil) })
		},
	},
	{
		Name: "filter_change_required", Service: ServiceFilter, Format: FormatBool, Access: readOnly,
		shown: filterShown,
		get:   func(a *purelink.Appliance, cb Callback) { a.FilterChangeRequired(boolResult(cb)) },
	},
}

// Catalog returns every known characteristic, exposed or not.
func Catalog() []Characteristic {
	out := make([]Characteristic, len(catalog))
	copy(out, catalog)
	return out
}

func lookup(name string) (Characteristic, bool) {
	for _, c := range catalog {
		if c.Name == name {
			return c, true
		}
	}
	return Characteristic{}, false
}

func boolResult(cb Callback) func(bool) {
	return func(v bool) { cb(v, nil) }
}

func intResult(cb Callback) func(int) {
	return func(v int) { cb(v, nil) }
}
