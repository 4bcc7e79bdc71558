// Package adapter keeps the registry of attached speakers.
//
// Speakers are attached from three sources: addresses saved by earlier
// runs, addresses from configuration, and mDNS discovery during a pairing
// window. Each attach reads the device description; BRIDGE units are
// skipped and the zone player serial becomes the device id.
//
// # Disconnect Policy
//
// The adapter is every speaker's FailurePolicy. When a device command
// fails the speaker is closed (ticker stopped, events unsubscribed), then
// removed from the registry, and a pairing window is opened so the device
// can reattach once reachable. Commands are never retried. The saved
// address is kept, so a restart also reattaches it.
//
// # Hosts
//
// Registry changes and speaker notifications go to a Host. MultiHost fans
// them out; MetricsHost turns numeric and boolean property changes into
// time-series points.
package adapter
