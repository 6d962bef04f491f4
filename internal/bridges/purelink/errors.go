package purelink

import "errors"

// Domain errors for the purelink bridge package.
//
// Accessor paths never return these to the host: transport, parse and
// timeout conditions resolve with cached or default values instead.
var (
	// ErrInvalidSerial is returned when a serial number does not match the
	// DYSON-xxx-yy-zzzzzzzz-mmm pattern.
	ErrInvalidSerial = errors.New("purelink: invalid serial number")

	// ErrInvalidCredential is returned when an appliance credential is empty.
	ErrInvalidCredential = errors.New("purelink: invalid credential")

	// ErrInvalidCredentialMode is returned for a credential mode other than
	// auto, hashed or plain.
	ErrInvalidCredentialMode = errors.New("purelink: invalid credential mode")

	// ErrMalformedMessage is returned when an inbound payload is not a JSON
	// object with a string "msg" field.
	ErrMalformedMessage = errors.New("purelink: malformed message")

	// ErrUnknownAppliance is returned when an appliance id is not registered.
	ErrUnknownAppliance = errors.New("purelink: unknown appliance")

	// ErrEngineClosed is returned when waiting on an engine that was closed.
	ErrEngineClosed = errors.New("purelink: engine closed")

	// ErrUnknownLinkState is returned when decoding an unrecognised link
	// state name.
	ErrUnknownLinkState = errors.New("purelink: unknown link state")

	// ErrConfigRequired is returned when a bridge is built without configuration.
	ErrConfigRequired = errors.New("purelink: config is required")
)
