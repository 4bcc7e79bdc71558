// Package bridge exposes attached Sonos speakers on the Gray Logic MQTT bus.
//
// Bridge implements the adapter's Host interface, so every property
// change, action status and registry change is published as it happens.
//
// # Published
//
//	graylogic/state/sonos/{device}      retained StateMessage, full snapshot
//	graylogic/discovery/sonos/{device}  retained DiscoveryMessage, empty on removal
//	graylogic/action/sonos/{device}     ActionMessage per lifecycle step
//	graylogic/ack/sonos/{device}        AckMessage per command
//	graylogic/response/sonos/{request}  ResponseMessage per request
//	graylogic/health/sonos              retained HealthMessage, offline via will
//
// # Subscribed
//
// Commands on graylogic/command/sonos/{device}:
//
//	{"id":"c1","command":"set_property","property":"volume","value":40}
//	{"id":"c2","command":"action","action":"group","input":{"Bedroom":true}}
//
// Requests on graylogic/request/sonos/{request}, with action one of
// describe, list, start_pairing, cancel_pairing or remove:
//
//	{"action":"start_pairing","duration":60}
//
// Failed commands and requests carry an error code such as
// UNKNOWN_DEVICE, INVALID_VALUE, READ_ONLY or DEVICE_UNREACHABLE.
package bridge
