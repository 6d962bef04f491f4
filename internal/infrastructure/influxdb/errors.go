package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when metrics export is switched off.
	// Callers treat it as "run without a sink", not as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrInvalidConfig means url, org or bucket is missing.
	ErrInvalidConfig = errors.New("influxdb: invalid configuration")

	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrNotConnected     = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps errors delivered to the SetOnError callback.
	// Sample writes are batched, so it never comes back from a Write call.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
