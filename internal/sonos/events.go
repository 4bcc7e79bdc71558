package sonos

import (
	"encoding/xml"
	"fmt"
	"strings"
	"sync"
)

// propertySet is the body of a GENA NOTIFY request.
type propertySet struct {
	XMLName    xml.Name `xml:"propertyset"`
	Properties []struct {
		Vars []struct {
			XMLName xml.Name
			Value   string `xml:",chardata"`
		} `xml:",any"`
	} `xml:"property"`
}

// lastChange is the document carried in a LastChange variable.
type lastChange struct {
	XMLName  xml.Name `xml:"Event"`
	Instance struct {
		Vars []struct {
			XMLName xml.Name
			Val     string `xml:"val,attr"`
			Channel string `xml:"channel,attr"`
		} `xml:",any"`
	} `xml:"InstanceID"`
}

// ParseLastChange extracts the LastChange variables from a NOTIFY body.
// Variables with a channel attribute are keyed "Name/Channel".
func ParseLastChange(body []byte) (map[string]string, error) {
	var ps propertySet
	if err := xml.Unmarshal(body, &ps); err != nil {
		return nil, fmt.Errorf("decoding property set: %w", err)
	}

	vars := make(map[string]string)
	for _, p := range ps.Properties {
		for _, v := range p.Vars {
			if v.XMLName.Local != "LastChange" {
				continue
			}
			var lc lastChange
			if err := xml.Unmarshal([]byte(strings.TrimSpace(v.Value)), &lc); err != nil {
				return nil, fmt.Errorf("decoding LastChange: %w", err)
			}
			for _, iv := range lc.Instance.Vars {
				key := iv.XMLName.Local
				if iv.Channel != "" {
					key += "/" + iv.Channel
				}
				vars[key] = iv.Val
			}
		}
	}
	return vars, nil
}

// eventDecoder turns LastChange notifications for one device into typed
// events. A LastChange carries only the variables that changed, so the
// decoder remembers the transport settings last seen and fills the gaps.
type eventDecoder struct {
	mu      sync.Mutex
	baseURL string
	handler EventHandler

	playMode      string
	crossfade     bool
	metadata      bool
	metadataKnown bool
}

func newEventDecoder(baseURL string, handler EventHandler) *eventDecoder {
	return &eventDecoder{baseURL: baseURL, handler: handler}
}

// avTransport handles an AVTransport NOTIFY body.
func (d *eventDecoder) avTransport(body []byte) error {
	vars, err := ParseLastChange(body)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ev := range d.decodeAVTransport(vars) {
		d.handler(ev)
	}
	return nil
}

// renderingControl handles a RenderingControl NOTIFY body.
func (d *eventDecoder) renderingControl(body []byte) error {
	vars, err := ParseLastChange(body)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ev := range decodeRenderingControl(vars) {
		d.handler(ev)
	}
	return nil
}

// decodeAVTransport maps AVTransport variables to events in a fixed order:
// transport settings, track, then play state. Caller holds mu.
func (d *eventDecoder) decodeAVTransport(vars map[string]string) []Event {
	var events []Event

	settings := false
	if v, ok := vars["CurrentPlayMode"]; ok {
		d.playMode = v
		settings = true
	}
	if v, ok := vars["CurrentCrossfadeMode"]; ok {
		d.crossfade = v != "0"
		settings = true
	}
	meta, hasMeta := vars["CurrentTrackMetaData"]
	if hasMeta {
		d.metadata = strings.TrimSpace(meta) != "" && meta != "NOT_IMPLEMENTED"
		d.metadataKnown = true
		settings = true
	}
	if settings {
		events = append(events, AVTransportEvent{
			PlayMode:      d.playMode,
			Crossfade:     d.crossfade,
			HasMetadata:   d.metadata,
			MetadataKnown: d.metadataKnown,
		})
	}

	if hasMeta && d.metadata {
		track, err := ParseTrackMetadata(meta, d.baseURL)
		if err == nil {
			if dur := ParseDuration(vars["CurrentTrackDuration"]); dur > 0 {
				track.Duration = dur
			}
			events = append(events, CurrentTrackEvent{Track: track})
		}
	}

	if v, ok := vars["TransportState"]; ok {
		state := parsePlayState(v)
		events = append(events, PlayStateEvent{State: state})
		if state == StateStopped {
			events = append(events, PlaybackStoppedEvent{})
		}
	}
	return events
}

// decodeRenderingControl maps master channel volume and mute.
func decodeRenderingControl(vars map[string]string) []Event {
	var events []Event
	if v, ok := vars["Volume/Master"]; ok {
		if n, err := parseInt(v); err == nil {
			events = append(events, VolumeEvent{Volume: n})
		}
	}
	if v, ok := vars["Mute/Master"]; ok {
		events = append(events, MutedEvent{Muted: parseBool(v)})
	}
	return events
}
