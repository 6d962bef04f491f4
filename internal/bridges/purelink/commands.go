package purelink

import (
	"fmt"
	"math"
	"time"
)

const (
	// defaultOscillationDelay separates an oscillation command from a
	// power-on in the same burst; firmware drops it otherwise.
	defaultOscillationDelay = 500 * time.Millisecond

	// celsiusOffsetDeciKelvin is 0 °C in decikelvin.
	celsiusOffsetDeciKelvin = 2731.5

	minHeatingThreshold = 1.0
	maxHeatingThreshold = 37.0
)

// Step is one STATE-SET payload. Delay is waited before publishing it.
type Step struct {
	Fields map[string]string
	Delay  time.Duration
}

// Plan is an ordered sequence of steps. An empty plan publishes nothing.
type Plan []Step

// UISnapshot exposes what the host UI last asked for, so power-on can
// resynchronise the appliance to it.
type UISnapshot interface {
	LastRequestedSpeed() int
	IsOscillationRequested() bool
	IsNightModeRequested() bool
}

type noUI struct{}

func (noUI) LastRequestedSpeed() int      { return 0 }
func (noUI) IsOscillationRequested() bool { return false }
func (noUI) IsNightModeRequested() bool   { return false }

// Encoder builds command plans for one appliance.
type Encoder struct {
	Caps             Capabilities
	OscillationDelay time.Duration
}

func (e Encoder) oscillationDelay() time.Duration {
	if e.OscillationDelay <= 0 {
		return defaultOscillationDelay
	}
	return e.OscillationDelay
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func single(fields map[string]string) Plan {
	return Plan{{Fields: fields}}
}

func (e Encoder) powerStep(on bool) Step {
	if e.Caps.NewGeneration {
		return Step{Fields: map[string]string{"fpwr": onOff(on)}}
	}
	if on {
		return Step{Fields: map[string]string{"fmod": "FAN"}}
	}
	return Step{Fields: map[string]string{"fmod": "OFF"}}
}

// Power switches the fan. Turning on while auto mode is active sends
// nothing. Turning on from off re-asserts the UI's last non-default speed,
// oscillation and night mode, in that order.
func (e Encoder) Power(on bool, current DeviceState, ui UISnapshot) Plan {
	if !on {
		return Plan{e.powerStep(false)}
	}
	if current.Auto {
		return Plan{}
	}

	plan := Plan{e.powerStep(true)}
	if current.FanOn {
		return plan
	}

	if ui == nil {
		ui = noUI{}
	}
	if speed := ui.LastRequestedSpeed(); speed > 0 {
		plan = append(plan, Step{Fields: speedFields(speed)})
	}
	if ui.IsOscillationRequested() {
		plan = append(plan, Step{
			Fields: map[string]string{"oson": "ON"},
			Delay:  e.oscillationDelay(),
		})
	}
	if ui.IsNightModeRequested() {
		plan = append(plan, Step{Fields: e.nightModeFields(true)})
	}
	return plan
}

// Auto switches auto mode. Legacy firmware has no separate auto flag, so
// leaving auto falls back to manual fan mode.
func (e Encoder) Auto(on bool) Plan {
	if e.Caps.NewGeneration {
		return single(map[string]string{"auto": onOff(on)})
	}
	if on {
		return single(map[string]string{"fmod": "AUTO"})
	}
	return single(map[string]string{"fmod": "FAN"})
}

// Speed sets the fan speed in percent. Zero turns the fan off; other
// values are clamped to 10..100 and rounded to the nearest step.
func (e Encoder) Speed(pct int) Plan {
	if pct <= 0 {
		return Plan{e.powerStep(false)}
	}
	return single(speedFields(pct))
}

func speedFields(pct int) map[string]string {
	step := int(math.Round(float64(pct) / 10))
	step = max(1, min(10, step))
	return map[string]string{"fnsp": fmt.Sprintf("%04d", step)}
}

// Oscillation switches oscillation, deferred when the fan is off.
func (e Encoder) Oscillation(on bool, current DeviceState) Plan {
	step := Step{Fields: map[string]string{"oson": onOff(on)}}
	if on && !current.FanOn {
		step.Delay = e.oscillationDelay()
	}
	return Plan{step}
}

// NightMode switches night mode, honouring inverted firmware polarity.
func (e Encoder) NightMode(on bool) Plan {
	return single(e.nightModeFields(on))
}

func (e Encoder) nightModeFields(on bool) map[string]string {
	return map[string]string{"nmod": onOff(on != e.Caps.NightModeInverted)}
}

// JetFocus switches the focused airflow.
func (e Encoder) JetFocus(on bool) Plan {
	if e.Caps.NewGeneration {
		return single(map[string]string{"fdir": onOff(on)})
	}
	return single(map[string]string{"ffoc": onOff(on)})
}

// Heat switches heating. Empty on appliances without a heater.
func (e Encoder) Heat(on bool) Plan {
	if !e.Caps.HeatAvailable {
		return Plan{}
	}
	if on {
		return single(map[string]string{"hmod": "HEAT"})
	}
	return single(map[string]string{"hmod": "OFF"})
}

// HeatingThreshold sets the target temperature in °C, clamped to 1..37
// and encoded as decikelvin.
func (e Encoder) HeatingThreshold(celsius float64) Plan {
	if !e.Caps.HeatAvailable {
		return Plan{}
	}
	c := math.Max(minHeatingThreshold, math.Min(maxHeatingThreshold, celsius))
	dk := int(math.Round(c*10 + celsiusOffsetDeciKelvin))
	return single(map[string]string{"hmax": fmt.Sprintf("%04d", dk)})
}

// TargetHeaterCooler selects AUTO, HEAT or COOL. COOL needs heat off
// before the fan is forced on, in that order.
func (e Encoder) TargetHeaterCooler(target HeaterCoolerTarget) Plan {
	switch target {
	case TargetHeat:
		if !e.Caps.HeatAvailable {
			return Plan{e.powerStep(true)}
		}
		return single(map[string]string{"hmod": "HEAT"})
	case TargetCool:
		plan := Plan{}
		if e.Caps.HeatAvailable {
			plan = append(plan, Step{Fields: map[string]string{"hmod": "OFF"}})
		}
		if e.Caps.NewGeneration {
			plan = append(plan, Step{Fields: map[string]string{"auto": "OFF"}})
		}
		return append(plan, e.powerStep(true))
	default:
		return e.Auto(true)
	}
}

// HeaterCoolerActive is the power switch of the heater/cooler service.
func (e Encoder) HeaterCoolerActive(on bool, current DeviceState, ui UISnapshot) Plan {
	return e.Power(on, current, ui)
}
