package mqtt

import "errors"

// Connection errors. An appliance's broker is the appliance itself, so
// ErrNotConnected usually means it is powered off or off the LAN.
var (
	ErrNotConnected   = errors.New("mqtt: client not connected")
	ErrInvalidAddress = errors.New("mqtt: invalid broker address")
)

// Operation errors.
var (
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrTimeout marks a token that did not complete in time. Async
	// publishes only log it.
	ErrTimeout = errors.New("mqtt: operation timed out")
)

// Argument errors.
var (
	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
