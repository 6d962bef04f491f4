package accessory

import "errors"

// Domain errors for the accessory package. These describe bad host input;
// appliance reads and writes themselves never fail.
var (
	// ErrUnknownCharacteristic is returned for a name not in the catalog.
	ErrUnknownCharacteristic = errors.New("accessory: unknown characteristic")

	// ErrHidden is returned for a characteristic switched off in configuration
	// or unsupported by the model.
	ErrHidden = errors.New("accessory: characteristic not exposed")

	// ErrReadOnly is returned when writing a read-only characteristic.
	ErrReadOnly = errors.New("accessory: characteristic is read-only")

	// ErrInvalidValue is returned when a written value has the wrong type or range.
	ErrInvalidValue = errors.New("accessory: invalid value")

	// ErrApplianceRequired is returned when an accessory is built without an appliance.
	ErrApplianceRequired = errors.New("accessory: appliance is required")
)
