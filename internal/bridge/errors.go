package bridge

import (
	"errors"

	"github.com/nerrad567/gray-logic-sonos/internal/adapter"
	"github.com/nerrad567/gray-logic-sonos/internal/speaker"
)

// Errors returned by the bridge.
var (
	// ErrMQTTRequired is returned by New without an MQTT client.
	ErrMQTTRequired = errors.New("bridge: MQTT client is required")

	// ErrNotStarted is returned for requests that need the registry
	// before Start has supplied it.
	ErrNotStarted = errors.New("bridge: not started")

	// ErrInvalidCommand is returned for a command or request the bridge
	// does not understand.
	ErrInvalidCommand = errors.New("bridge: invalid command")
)

// Error codes carried in acks and responses.
const (
	CodeUnknownDevice     = "UNKNOWN_DEVICE"
	CodeUnknownProperty   = "UNKNOWN_PROPERTY"
	CodeUnknownAction     = "UNKNOWN_ACTION"
	CodeInvalidValue      = "INVALID_VALUE"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeReadOnly          = "READ_ONLY"
	CodeNoTrack           = "NO_TRACK"
	CodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	CodeDisconnected      = "DISCONNECTED"
	CodeInvalidCommand    = "INVALID_COMMAND"
	CodeBridgeError       = "BRIDGE_ERROR"
)

// ErrorCode maps err to the code reported on the bus.
func ErrorCode(err error) string {
	var capErr *speaker.CapabilityError
	switch {
	case errors.Is(err, adapter.ErrUnknownDevice):
		return CodeUnknownDevice
	case errors.Is(err, speaker.ErrUnknownProperty):
		return CodeUnknownProperty
	case errors.Is(err, speaker.ErrUnknownAction):
		return CodeUnknownAction
	case errors.Is(err, speaker.ErrInvalidValue):
		return CodeInvalidValue
	case errors.Is(err, speaker.ErrInvalidInput):
		return CodeInvalidInput
	case errors.As(err, &capErr):
		return CodeReadOnly
	case errors.Is(err, speaker.ErrNoTrack):
		return CodeNoTrack
	case errors.Is(err, speaker.ErrDisconnected):
		return CodeDisconnected
	case speaker.IsRemoteFailure(err):
		return CodeDeviceUnreachable
	case errors.Is(err, ErrInvalidCommand):
		return CodeInvalidCommand
	default:
		return CodeBridgeError
	}
}
