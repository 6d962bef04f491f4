package accessory

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
)

// Values arrive from JSON bodies and host bindings, so numbers may be
// float64, json.Number, int or strings.

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidValue, v)
		}
		return f != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, x)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: %T is not a boolean", ErrInvalidValue, v)
	}
}

func toFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, v)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, x)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrInvalidValue, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidValue, f)
	}
	return f, nil
}

func toInt(v any) (int, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

func inRange(f float64, r *Range) error {
	if r == nil {
		return nil
	}
	if f < r.Min || f > r.Max {
		return fmt.Errorf("%w: %v outside %v..%v", ErrInvalidValue, f, r.Min, r.Max)
	}
	return nil
}

// toTarget accepts the numeric host encoding or the state name.
func toTarget(v any) (purelink.HeaterCoolerTarget, error) {
	if s, ok := v.(string); ok {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "AUTO":
			return purelink.TargetAuto, nil
		case "HEAT":
			return purelink.TargetHeat, nil
		case "COOL":
			return purelink.TargetCool, nil
		}
	}
	n, err := toInt(v)
	if err != nil {
		return 0, err
	}
	switch t := purelink.HeaterCoolerTarget(n); t {
	case purelink.TargetAuto, purelink.TargetHeat, purelink.TargetCool:
		return t, nil
	default:
		return 0, fmt.Errorf("%w: heater/cooler target %d", ErrInvalidValue, n)
	}
}
