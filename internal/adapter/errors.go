package adapter

import "errors"

// Domain errors for the adapter package.
var (
	// ErrDuplicateDevice is returned when a device id is already attached
	// or is being attached.
	ErrDuplicateDevice = errors.New("adapter: device already exists")

	// ErrUnknownDevice is returned for an id that is not attached.
	ErrUnknownDevice = errors.New("adapter: device not found")

	// ErrUnsupportedDevice is returned for zone players without audio
	// output, such as BRIDGE units.
	ErrUnsupportedDevice = errors.New("adapter: unsupported device")

	// ErrStopped is returned by AddDevice after Stop.
	ErrStopped = errors.New("adapter: stopped")
)
