package sonos

import (
	"errors"
	"fmt"
)

// Domain errors for the sonos package.
var (
	// ErrNoListener is returned by Subscribe on a client built without an
	// event listener.
	ErrNoListener = errors.New("sonos: no event listener configured")

	// ErrZoneNotFound is returned when a zone name is not in the topology.
	ErrZoneNotFound = errors.New("sonos: zone not found")

	// ErrListenerStopped is returned when subscribing through a stopped listener.
	ErrListenerStopped = errors.New("sonos: event listener stopped")

	// ErrSubscriptionRejected is returned when the device refuses a GENA
	// SUBSCRIBE or answers without a SID.
	ErrSubscriptionRejected = errors.New("sonos: subscription rejected")
)

// SOAPFault is a UPnP error returned by a zone player.
type SOAPFault struct {
	Action      string
	Code        int
	Description string
}

func (e *SOAPFault) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("sonos: %s fault %d: %s", e.Action, e.Code, e.Description)
	}
	return fmt.Sprintf("sonos: %s fault %d", e.Action, e.Code)
}

// HTTPError is a non-SOAP failure status from a zone player.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sonos: %s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
}
