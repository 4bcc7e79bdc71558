package bridge

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-sonos/internal/speaker"
)

// protocol is the protocol field of every message.
const protocol = "sonos"

// Command types accepted on graylogic/command/sonos/{device}.
const (
	CommandSetProperty = "set_property"
	CommandAction      = "action"
)

// Request actions accepted on graylogic/request/sonos/{request}.
const (
	RequestDescribe      = "describe"
	RequestList          = "list"
	RequestStartPairing  = "start_pairing"
	RequestCancelPairing = "cancel_pairing"
	RequestRemove        = "remove"
)

// CommandMessage asks the bridge to write a property or run an action.
// Topic: graylogic/command/sonos/{device}
type CommandMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// DeviceID defaults to the last topic segment.
	DeviceID string `json:"device_id,omitempty"`

	// Command is set_property or action.
	Command string `json:"command"`

	// Property and Value are used by set_property.
	Property string `json:"property,omitempty"`
	Value    any    `json:"value,omitempty"`

	// Action and Input are used by action.
	Action string              `json:"action,omitempty"`
	Input  speaker.ActionInput `json:"input,omitempty"`

	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

// Ack statuses.
const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// AckMessage reports the outcome of a command.
// Topic: graylogic/ack/sonos/{device}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// Value is the stored value after a successful set_property.
	Value any `json:"value,omitempty"`

	// ActionID is the record id of an action command.
	ActionID string `json:"action_id,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries a machine code and a readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorDetail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	return &ErrorDetail{Code: ErrorCode(err), Message: err.Error()}
}

// StateMessage is the retained property snapshot of a speaker.
// Topic: graylogic/state/sonos/{device}
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`
	Address   string         `json:"address,omitempty"`
}

// ActionMessage reports an action's lifecycle.
// Topic: graylogic/action/sonos/{device}
type ActionMessage struct {
	DeviceID  string               `json:"device_id"`
	Timestamp time.Time            `json:"timestamp"`
	Action    speaker.ActionRecord `json:"action"`
}

// DiscoveryMessage is the retained description of an attached speaker.
// Topic: graylogic/discovery/sonos/{device}
type DiscoveryMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Bridge    string    `json:"bridge"`
	Protocol  string    `json:"protocol"`
	speaker.Description
}

// RequestMessage is a bridge-level request.
// Topic: graylogic/request/sonos/{request}
type RequestMessage struct {
	// RequestID defaults to the last topic segment.
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Action is one of describe, list, start_pairing, cancel_pairing, remove.
	Action string `json:"action"`

	DeviceID string `json:"device_id,omitempty"`

	// Duration is the pairing window in seconds for start_pairing.
	// Zero means the configured window.
	Duration int `json:"duration,omitempty"`
}

// ResponseMessage answers a request.
// Topic: graylogic/response/sonos/{request}
type ResponseMessage struct {
	RequestID string       `json:"request_id"`
	Timestamp time.Time    `json:"timestamp"`
	Success   bool         `json:"success"`
	Data      any          `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// HealthStatus is the bridge's operational status.
type HealthStatus string

// Health statuses.
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained bridge health report.
// Topic: graylogic/health/sonos
type HealthMessage struct {
	Bridge         string       `json:"bridge"`
	Timestamp      time.Time    `json:"timestamp"`
	Status         HealthStatus `json:"status"`
	Version        string       `json:"version,omitempty"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	DevicesManaged int          `json:"devices_managed"`
	Pairing        bool         `json:"pairing"`
	Reason         string       `json:"reason,omitempty"`
}

// OfflinePayload is the will message registered with the broker, so a
// crashed bridge is reported offline.
func OfflinePayload(bridgeID string) []byte {
	payload, _ := json.Marshal(HealthMessage{ //nolint:errcheck // fixed struct always encodes
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	})
	return payload
}

func stateMap(props []speaker.Property) map[string]any {
	state := make(map[string]any, len(props))
	for _, p := range props {
		state[p.Name] = p.Value
	}
	return state
}
