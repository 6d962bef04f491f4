package store

import "errors"

// Domain errors for the store package.
var (
	// ErrNotFound is returned when no row exists for the appliance.
	ErrNotFound = errors.New("store: not found")

	// ErrIDRequired is returned when a record has no appliance id.
	ErrIDRequired = errors.New("store: appliance id is required")
)
