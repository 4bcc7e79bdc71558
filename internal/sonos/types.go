package sonos

import (
	"context"
	"strings"
)

// PlayState is the normalised transport state of a zone player.
type PlayState string

// Transport states reported by GetTransportInfo and AVTransport events.
const (
	StatePlaying       PlayState = "playing"
	StatePaused        PlayState = "paused"
	StateStopped       PlayState = "stopped"
	StateTransitioning PlayState = "transitioning"
	StateNoMedia       PlayState = "no_media"
)

// parsePlayState maps a UPnP TransportState value to a PlayState.
func parsePlayState(s string) PlayState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PLAYING":
		return StatePlaying
	case "PAUSED_PLAYBACK":
		return StatePaused
	case "STOPPED":
		return StateStopped
	case "TRANSITIONING":
		return StateTransitioning
	default:
		return StateNoMedia
	}
}

// Track is the currently loaded track as reported by the device.
// Duration and Position are in whole seconds; zero means unknown.
type Track struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Duration int    `json:"duration"`
	Position int    `json:"position"`
	ArtURI   string `json:"art_uri,omitempty"`
}

// ZoneType values found in the device description.
const (
	// ZoneTypeBridge identifies a BRIDGE/BOOST unit which has no audio output.
	ZoneTypeBridge = "4"
)

// DeviceDescription is the subset of /xml/device_description.xml the bridge uses.
type DeviceDescription struct {
	SerialNum   string `json:"serial_num"`
	UDN         string `json:"udn"`
	ZoneType    string `json:"zone_type"`
	RoomName    string `json:"room_name"`
	DisplayName string `json:"display_name"`
	ModelName   string `json:"model_name"`
	ModelNumber string `json:"model_number"`
}

// ZoneInfo is returned by DeviceProperties GetZoneInfo.
type ZoneInfo struct {
	SerialNumber    string `json:"serial_number"`
	SoftwareVersion string `json:"software_version"`
	IPAddress       string `json:"ip_address"`
	MACAddress      string `json:"mac_address"`
}

// ZoneGroup is one playback group from the zone group topology.
type ZoneGroup struct {
	ID          string       `json:"id"`
	Coordinator string       `json:"coordinator"`
	Members     []ZoneMember `json:"members"`
}

// ZoneMember is one zone player inside a ZoneGroup.
type ZoneMember struct {
	UUID      string `json:"uuid"`
	ZoneName  string `json:"zone_name"`
	Location  string `json:"location"`
	Invisible bool   `json:"invisible"`
}

// CoordinatorMember returns the member whose UUID is the group coordinator.
func (g ZoneGroup) CoordinatorMember() (ZoneMember, bool) {
	for _, m := range g.Members {
		if m.UUID == g.Coordinator {
			return m, true
		}
	}
	return ZoneMember{}, false
}

// Event is a decoded device push notification.
type Event interface {
	// Channel names the logical event channel, e.g. "PlayState".
	Channel() string
}

// PlayStateEvent reports a transport state change.
type PlayStateEvent struct {
	State PlayState
}

// PlaybackStoppedEvent reports that the transport entered STOPPED.
type PlaybackStoppedEvent struct{}

// CurrentTrackEvent reports new track metadata. Position is zero when the
// event does not carry one.
type CurrentTrackEvent struct {
	Track Track
}

// AVTransportEvent carries transport settings from an AVTransport LastChange.
// HasMetadata is only meaningful when MetadataKnown is set, i.e. once the
// subscription has reported CurrentTrackMetaData at least once.
type AVTransportEvent struct {
	PlayMode      string
	Crossfade     bool
	HasMetadata   bool
	MetadataKnown bool
}

// VolumeEvent reports the master channel volume.
type VolumeEvent struct {
	Volume int
}

// MutedEvent reports the master channel mute state.
type MutedEvent struct {
	Muted bool
}

func (PlayStateEvent) Channel() string       { return "PlayState" }
func (PlaybackStoppedEvent) Channel() string { return "PlaybackStopped" }
func (CurrentTrackEvent) Channel() string    { return "CurrentTrack" }
func (AVTransportEvent) Channel() string     { return "AVTransport" }
func (VolumeEvent) Channel() string          { return "Volume" }
func (MutedEvent) Channel() string           { return "Muted" }

// EventHandler receives decoded events. Calls for one subscription are
// made sequentially in arrival order.
type EventHandler func(Event)

// Subscription is an active set of event subscriptions for one device.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}
