// Package speaker keeps a host-side property model in step with one Sonos
// zone player.
//
// A Speaker owns a property cache and reconciles it from two directions:
// events pushed by the device, and writes requested by the host. Hosts see
// a flat set of typed properties and a few actions; the speaker turns those
// into device commands and keeps the cache current.
//
// # Architecture
//
//	 device events ──► EventBridge ──┐
//	                                 ├──► Cache ──► Notifier (host)
//	 host writes ───► SetValue ──────┘
//	                     │
//	                     ├─ ModeCoordinator   shuffle + repeat ⇄ one play mode
//	                     ├─ ProgressEstimator position between events
//	                     ├─ CapabilityProbe   fixed volume check
//	                     └─ TopologyActionBuilder  group action
//
// # Play Modes
//
// The device has one composite play mode; hosts see two properties.
// PlayMode is a closed enumeration with an explicit table:
//
//	NORMAL             shuffle=false repeat=None
//	SHUFFLE_NOREPEAT   shuffle=true  repeat=None
//	REPEAT_ALL         shuffle=false repeat=All
//	SHUFFLE            shuffle=true  repeat=All
//	REPEAT_ONE         shuffle=false repeat=One
//	SHUFFLE_REPEAT_ONE shuffle=true  repeat=One
//
// # Failure Policy
//
// Every failed device command or follow-up query becomes a
// RemoteCommandFailure. The speaker marks itself failed, stops its ticker
// and hands itself to the FailurePolicy. There is no retry. Capability and
// precondition errors are local rejections and leave the speaker connected.
//
// # Thread Safety
//
// One mutex serializes events, commands, actions and ticks per speaker.
// Property reads use the cache's own lock and never wait on a command.
package speaker
