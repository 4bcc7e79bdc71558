package speaker

import (
	"errors"
	"fmt"
)

// Domain errors for the speaker package.
var (
	// ErrUnknownProperty is returned for reads or writes of a property the
	// speaker does not expose.
	ErrUnknownProperty = errors.New("speaker: unknown property")

	// ErrUnknownAction is returned when an action name is not exposed.
	ErrUnknownAction = errors.New("speaker: unknown action")

	// ErrInvalidValue is returned when a written value does not match the
	// property's declared type or enum domain.
	ErrInvalidValue = errors.New("speaker: invalid property value")

	// ErrInvalidInput is returned when action input fails schema validation.
	ErrInvalidInput = errors.New("speaker: invalid action input")

	// ErrReadOnly is matched by every CapabilityError.
	ErrReadOnly = errors.New("speaker: property is read-only")

	// ErrNoTrack is matched by PreconditionErrors raised when a seek is
	// attempted without a loaded track.
	ErrNoTrack = errors.New("speaker: no track loaded")

	// ErrDisconnected is returned for operations on a speaker that has
	// already been handed to the disconnect policy or closed.
	ErrDisconnected = errors.New("speaker: device disconnected")
)

// CapabilityError rejects a write locally because the property is
// currently read-only. It never triggers the disconnect policy.
type CapabilityError struct {
	Property string
	Reason   string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("speaker: %s is read-only: %s", e.Property, e.Reason)
}

// Is matches ErrReadOnly.
func (e *CapabilityError) Is(target error) bool { return target == ErrReadOnly }

// PreconditionError rejects a write because required state is absent.
type PreconditionError struct {
	Property string
	Err      error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("speaker: cannot write %s: %v", e.Property, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// RemoteCommandFailure wraps any failed device command or follow-up query.
// The speaker hands every RemoteCommandFailure to its FailurePolicy.
type RemoteCommandFailure struct {
	Command string
	Err     error
}

func (e *RemoteCommandFailure) Error() string {
	return fmt.Sprintf("speaker: %s failed: %v", e.Command, e.Err)
}

func (e *RemoteCommandFailure) Unwrap() error { return e.Err }

// remote wraps err as a RemoteCommandFailure, passing nil through.
func remote(command string, err error) error {
	if err == nil {
		return nil
	}
	var rf *RemoteCommandFailure
	if errors.As(err, &rf) {
		return err
	}
	return &RemoteCommandFailure{Command: command, Err: err}
}

// IsRemoteFailure reports whether err requires the disconnect policy.
func IsRemoteFailure(err error) bool {
	var rf *RemoteCommandFailure
	return errors.As(err, &rf)
}
