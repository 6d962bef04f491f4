package purelink

import "time"

// Capabilities are the per-appliance flags that change how fields are
// read and commands are written.
type Capabilities struct {
	HeatAvailable     bool `json:"heat_available"`
	NewGeneration     bool `json:"new_generation"`
	NightModeInverted bool `json:"night_mode_inverted"`
}

// HeaterCoolerCurrent is the reported heater/cooler activity.
type HeaterCoolerCurrent int

// Current heater/cooler states.
const (
	HeaterCoolerInactive HeaterCoolerCurrent = iota
	HeaterCoolerIdle
	HeaterCoolerHeating
	HeaterCoolerCooling
)

func (s HeaterCoolerCurrent) String() string {
	switch s {
	case HeaterCoolerIdle:
		return "IDLE"
	case HeaterCoolerHeating:
		return "HEATING"
	case HeaterCoolerCooling:
		return "COOLING"
	default:
		return "INACTIVE"
	}
}

// HeaterCoolerTarget is the requested heater/cooler mode.
type HeaterCoolerTarget int

// Target heater/cooler states.
const (
	TargetAuto HeaterCoolerTarget = iota
	TargetHeat
	TargetCool
)

func (t HeaterCoolerTarget) String() string {
	switch t {
	case TargetHeat:
		return "HEAT"
	case TargetCool:
		return "COOL"
	default:
		return "AUTO"
	}
}

const (
	// defaultSpeed is reported when fnsp is absent or not numeric ("AUTO").
	defaultSpeed = 50

	// filterRatedHours is the rated filter life used for percentages.
	filterRatedHours = 4380

	// filterChangeThreshold is the life percentage below which a change is due.
	filterChangeThreshold = 10
)

// DeviceState is the normalized operational state of one appliance.
// Derived fields are recomputed in full on every control-state message.
type DeviceState struct {
	UpdatedAt time.Time `json:"updated_at"`

	FanOn       bool `json:"fan_on"`
	Auto        bool `json:"auto"`
	Oscillation bool `json:"oscillation"`
	NightMode   bool `json:"night_mode"`
	Speed       int  `json:"speed"`
	JetFocus    bool `json:"jet_focus"`

	Heat             bool    `json:"heat"`
	HeatingThreshold float64 `json:"heating_threshold"`

	FilterLife           float64 `json:"filter_life"`
	FilterChangeRequired bool    `json:"filter_change_required"`

	CurrentHeaterCooler HeaterCoolerCurrent `json:"current_heater_cooler"`
	TargetHeaterCooler  HeaterCoolerTarget  `json:"target_heater_cooler"`
}

// ApplyControlMessage builds a device state from a CURRENT-STATE message.
// received is the local receipt time, which drives freshness.
func ApplyControlMessage(raw map[string]any, caps Capabilities, received time.Time) DeviceState {
	f := fieldSet(raw)
	s := DeviceState{UpdatedAt: received}

	s.FanOn = fieldIs(f, "fmod", "FAN") || fieldIs(f, "fmod", "AUTO") ||
		(caps.NewGeneration && fieldIs(f, "fpwr", "ON"))
	s.Auto = fieldIs(f, "fmod", "AUTO") ||
		(caps.NewGeneration && fieldIs(f, "auto", "ON") && s.FanOn)

	s.Oscillation = fieldIs(f, "oson", "ON")
	// Polarity only applies to a readable value; anything else stays off.
	switch nmod, _ := fieldString(f, "nmod"); nmod {
	case "ON", "OFF":
		s.NightMode = (nmod == "ON") != caps.NightModeInverted
	}

	s.Speed = defaultSpeed
	if n, ok := fieldInt(f, "fnsp"); ok {
		s.Speed = n * 10
	}

	if caps.NewGeneration {
		s.JetFocus = fieldIs(f, "fdir", "ON")
	} else {
		s.JetFocus = fieldIs(f, "ffoc", "ON")
	}

	if caps.HeatAvailable {
		s.Heat = fieldIs(f, "hmod", "HEAT")
		if t, ok := fieldFloat(f, "hmax"); ok {
			s.HeatingThreshold = decikelvinToCelsius(t)
		}
	}

	if hours, ok := filterHours(f); ok {
		s.FilterLife = hours * 100 / filterRatedHours
		s.FilterChangeRequired = s.FilterLife < filterChangeThreshold
	}

	s.CurrentHeaterCooler = HeaterCoolerInactive
	if s.FanOn {
		s.CurrentHeaterCooler = HeaterCoolerCooling
	}
	if caps.HeatAvailable && s.Heat {
		s.CurrentHeaterCooler = HeaterCoolerHeating
	}

	// power, then heat, then auto: later rules overwrite, so AUTO wins.
	s.TargetHeaterCooler = TargetCool
	if caps.HeatAvailable && s.Heat {
		s.TargetHeaterCooler = TargetHeat
	}
	if s.Auto {
		s.TargetHeaterCooler = TargetAuto
	}

	return s
}

// filterHours prefers the combined filf field and otherwise averages the
// carbon and HEPA fields that are present.
func filterHours(f map[string]any) (float64, bool) {
	if v, ok := fieldFloat(f, "filf"); ok {
		return v, true
	}

	var sum float64
	var n int
	for _, key := range []string{"cflr", "hflr"} {
		if v, ok := fieldFloat(f, key); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
