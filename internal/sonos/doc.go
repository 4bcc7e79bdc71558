// Package sonos talks to Sonos zone players over their local UPnP interface.
//
// Client issues SOAP requests to the AVTransport, RenderingControl,
// ZoneGroupTopology and DeviceProperties services on port 1400. Listener
// runs one HTTP server for GENA event callbacks, shared by every client,
// and renews each subscription at half its granted timeout.
//
// # Events
//
// AVTransport and RenderingControl notifications carry a LastChange
// document holding only the variables that changed. The per-device decoder
// turns them into typed events:
//
//	CurrentPlayMode, CurrentCrossfadeMode,
//	CurrentTrackMetaData               → AVTransportEvent (last seen values filled in)
//	CurrentTrackMetaData (non-empty)   → CurrentTrackEvent (no position)
//	TransportState                     → PlayStateEvent, plus PlaybackStoppedEvent on STOPPED
//	Volume channel=Master              → VolumeEvent
//	Mute channel=Master                → MutedEvent
//
// AVTransportEvent.MetadataKnown stays false until the subscription has
// reported CurrentTrackMetaData once.
//
// # Grouping
//
// JoinGroup(name) points this zone's transport at x-rincon:<coordinator>
// of the group containing the named zone. LeaveGroup makes the zone a
// standalone coordinator.
package sonos
