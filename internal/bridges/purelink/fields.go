package purelink

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// fieldSet returns the vendor field mapping of an inbound message: the
// nested "product-state" or "data" object when present, otherwise the
// message itself.
func fieldSet(raw map[string]any) map[string]any {
	for _, key := range []string{"product-state", "data"} {
		if nested, ok := raw[key].(map[string]any); ok {
			return nested
		}
	}
	return raw
}

// fieldString returns a field as a string. Values may be strings, numbers
// or [previous, current] pairs, in which case the last element wins.
func fieldString(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	return scalarString(v)
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), true
	case int:
		return strconv.Itoa(x), true
	case bool:
		return strconv.FormatBool(x), true
	case []any:
		if len(x) == 0 {
			return "", false
		}
		return scalarString(x[len(x)-1])
	default:
		return "", false
	}
}

// fieldIs reports whether a field equals want.
func fieldIs(fields map[string]any, key, want string) bool {
	s, ok := fieldString(fields, key)
	return ok && s == want
}

// fieldFloat parses a numeric field. "OFF", "INIT" and other
// non-numeric values report false.
func fieldFloat(fields map[string]any, key string) (float64, bool) {
	s, ok := fieldString(fields, key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// fieldInt parses an integer field, truncating decimals.
func fieldInt(fields map[string]any, key string) (int, bool) {
	f, ok := fieldFloat(fields, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// firstInt returns the first parseable field among keys.
func firstInt(fields map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		if n, ok := fieldInt(fields, k); ok {
			return n, true
		}
	}
	return 0, false
}

// hasAny reports whether any of keys is present, parseable or not.
func hasAny(fields map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

// round2 rounds to two decimals. Used for every temperature.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// decikelvinToCelsius converts a raw decikelvin reading.
func decikelvinToCelsius(raw float64) float64 {
	return round2(raw/10 - 273.15)
}
