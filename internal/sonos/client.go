package sonos

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// DefaultPort is the zone player's UPnP HTTP port.
const DefaultPort = 1400

// ClientOptions holds optional configuration for a Client.
type ClientOptions struct {
	// HTTPClient performs SOAP and description requests. Defaults to a
	// client without timeout; every call is bounded by its context.
	HTTPClient *http.Client

	// Listener receives GENA event callbacks. Required for Subscribe.
	Listener *Listener

	// Logger is an optional structured logger.
	Logger Logger
}

// Client is a SOAP control client for one zone player.
//
// Thread Safety: Client holds no mutable state and is safe for concurrent use.
type Client struct {
	host     string
	baseURL  string
	http     *http.Client
	listener *Listener
	logger   Logger
}

// NewClient creates a client for the zone player at address. address is a
// host or host:port; the port defaults to 1400.
func NewClient(address string, opts ClientOptions) *Client {
	host := address
	port := strconv.Itoa(DefaultPort)
	if h, p, err := net.SplitHostPort(address); err == nil {
		host, port = h, p
	}

	c := &Client{
		host:     host,
		baseURL:  "http://" + net.JoinHostPort(host, port),
		http:     opts.HTTPClient,
		listener: opts.Listener,
		logger:   opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c
}

// Host returns the zone player's host.
func (c *Client) Host() string { return c.host }

// BaseURL returns the zone player's HTTP root, e.g. http://192.168.1.20:1400.
func (c *Client) BaseURL() string { return c.baseURL }

// DeviceDescription fetches and decodes /xml/device_description.xml.
func (c *Client) DeviceDescription(ctx context.Context) (DeviceDescription, error) {
	url := c.baseURL + "/xml/device_description.xml"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DeviceDescription{}, fmt.Errorf("creating description request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return DeviceDescription{}, fmt.Errorf("fetching device description: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DeviceDescription{}, &HTTPError{Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode}
	}

	var doc deviceDescriptionXML
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&doc); err != nil {
		return DeviceDescription{}, fmt.Errorf("decoding device description: %w", err)
	}
	return DeviceDescription{
		SerialNum:   doc.Device.SerialNum,
		UDN:         doc.Device.UDN,
		ZoneType:    doc.Device.ZoneType,
		RoomName:    doc.Device.RoomName,
		DisplayName: doc.Device.DisplayName,
		ModelName:   doc.Device.ModelName,
		ModelNumber: doc.Device.ModelNumber,
	}, nil
}

// ZoneName returns the zone (room) name.
func (c *Client) ZoneName(ctx context.Context) (string, error) {
	out, err := c.call(ctx, DeviceProperties, "GetZoneAttributes")
	if err != nil {
		return "", err
	}
	return out["CurrentZoneName"], nil
}

// ZoneInfo returns hardware details including the MAC address.
func (c *Client) ZoneInfo(ctx context.Context) (ZoneInfo, error) {
	out, err := c.call(ctx, DeviceProperties, "GetZoneInfo")
	if err != nil {
		return ZoneInfo{}, err
	}
	return ZoneInfo{
		SerialNumber:    out["SerialNumber"],
		SoftwareVersion: out["SoftwareVersion"],
		IPAddress:       out["IPAddress"],
		MACAddress:      out["MACAddress"],
	}, nil
}

// Volume returns the master volume.
func (c *Client) Volume(ctx context.Context) (int, error) {
	out, err := c.call(ctx, RenderingControl, "GetVolume", instance, master)
	if err != nil {
		return 0, err
	}
	return parseInt(out["CurrentVolume"])
}

// Muted returns the master mute state.
func (c *Client) Muted(ctx context.Context) (bool, error) {
	out, err := c.call(ctx, RenderingControl, "GetMute", instance, master)
	if err != nil {
		return false, err
	}
	return parseBool(out["CurrentMute"]), nil
}

// SupportsFixedVolume reports whether the zone has a line-level fixed output.
func (c *Client) SupportsFixedVolume(ctx context.Context) (bool, error) {
	out, err := c.call(ctx, RenderingControl, "GetSupportsOutputFixed", instance)
	if err != nil {
		return false, err
	}
	return parseBool(out["CurrentSupportsFixed"]), nil
}

// FixedVolume reports whether the fixed output is currently enabled.
func (c *Client) FixedVolume(ctx context.Context) (bool, error) {
	out, err := c.call(ctx, RenderingControl, "GetOutputFixed", instance)
	if err != nil {
		return false, err
	}
	return parseBool(out["CurrentFixed"]), nil
}

// TransportState returns the playback state.
func (c *Client) TransportState(ctx context.Context) (PlayState, error) {
	out, err := c.call(ctx, AVTransport, "GetTransportInfo", instance)
	if err != nil {
		return "", err
	}
	return parsePlayState(out["CurrentTransportState"]), nil
}

// CurrentTrack returns the loaded track with its current position.
func (c *Client) CurrentTrack(ctx context.Context) (Track, error) {
	out, err := c.call(ctx, AVTransport, "GetPositionInfo", instance)
	if err != nil {
		return Track{}, err
	}
	track, err := ParseTrackMetadata(out["TrackMetaData"], c.baseURL)
	if err != nil {
		return Track{}, err
	}
	if d := ParseDuration(out["TrackDuration"]); d > 0 {
		track.Duration = d
	}
	track.Position = ParseDuration(out["RelTime"])
	return track, nil
}

// PlayMode returns the raw play mode string, e.g. "SHUFFLE_NOREPEAT".
func (c *Client) PlayMode(ctx context.Context) (string, error) {
	out, err := c.call(ctx, AVTransport, "GetTransportSettings", instance)
	if err != nil {
		return "", err
	}
	return out["PlayMode"], nil
}

// CrossfadeMode reports whether crossfade is enabled.
func (c *Client) CrossfadeMode(ctx context.Context) (bool, error) {
	out, err := c.call(ctx, AVTransport, "GetCrossfadeMode", instance)
	if err != nil {
		return false, err
	}
	return parseBool(out["CrossfadeMode"]), nil
}

// AllGroups returns the household's zone group topology.
func (c *Client) AllGroups(ctx context.Context) ([]ZoneGroup, error) {
	out, err := c.call(ctx, ZoneGroupTopology, "GetZoneGroupState")
	if err != nil {
		return nil, err
	}
	return ParseZoneGroupState(out["ZoneGroupState"])
}

// Play starts playback.
func (c *Client) Play(ctx context.Context) error {
	_, err := c.call(ctx, AVTransport, "Play", instance, arg{"Speed", "1"})
	return err
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.call(ctx, AVTransport, "Pause", instance)
	return err
}

// Stop stops playback.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.call(ctx, AVTransport, "Stop", instance)
	return err
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) error {
	_, err := c.call(ctx, AVTransport, "Next", instance)
	return err
}

// Previous skips to the previous track.
func (c *Client) Previous(ctx context.Context) error {
	_, err := c.call(ctx, AVTransport, "Previous", instance)
	return err
}

// SetVolume sets the master volume.
func (c *Client) SetVolume(ctx context.Context, volume int) error {
	_, err := c.call(ctx, RenderingControl, "SetVolume", instance, master,
		arg{"DesiredVolume", strconv.Itoa(volume)})
	return err
}

// SetMuted sets the master mute state.
func (c *Client) SetMuted(ctx context.Context, muted bool) error {
	_, err := c.call(ctx, RenderingControl, "SetMute", instance, master, boolArg("DesiredMute", muted))
	return err
}

// SetPlayMode sets the raw play mode string.
func (c *Client) SetPlayMode(ctx context.Context, mode string) error {
	_, err := c.call(ctx, AVTransport, "SetPlayMode", instance, arg{"NewPlayMode", mode})
	return err
}

// Seek moves to an absolute position in the current track.
func (c *Client) Seek(ctx context.Context, position int) error {
	_, err := c.call(ctx, AVTransport, "Seek", instance,
		arg{"Unit", "REL_TIME"}, arg{"Target", FormatDuration(position)})
	return err
}

// SetCrossfade enables or disables crossfade.
func (c *Client) SetCrossfade(ctx context.Context, crossfade bool) error {
	_, err := c.call(ctx, AVTransport, "SetCrossfadeMode", instance, boolArg("CrossfadeMode", crossfade))
	return err
}

// LeaveGroup makes this zone the coordinator of its own group.
func (c *Client) LeaveGroup(ctx context.Context) error {
	_, err := c.call(ctx, AVTransport, "BecomeCoordinatorOfStandaloneGroup", instance)
	return err
}

// JoinGroup adds this zone to the group containing the zone named zoneName.
// The name is matched case-insensitively.
func (c *Client) JoinGroup(ctx context.Context, zoneName string) error {
	groups, err := c.AllGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		for _, m := range g.Members {
			if strings.EqualFold(m.ZoneName, zoneName) {
				return c.setTransportURI(ctx, "x-rincon:"+g.Coordinator, "")
			}
		}
	}
	return fmt.Errorf("%w: %q", ErrZoneNotFound, zoneName)
}

// PlayURI loads uri as the transport source and starts playback.
func (c *Client) PlayURI(ctx context.Context, uri string) error {
	if err := c.setTransportURI(ctx, uri, ""); err != nil {
		return err
	}
	return c.Play(ctx)
}

func (c *Client) setTransportURI(ctx context.Context, uri, metadata string) error {
	_, err := c.call(ctx, AVTransport, "SetAVTransportURI", instance,
		arg{"CurrentURI", uri}, arg{"CurrentURIMetaData", metadata})
	return err
}

// Subscribe opens AVTransport and RenderingControl event subscriptions and
// delivers decoded events to handler one at a time.
func (c *Client) Subscribe(ctx context.Context, handler EventHandler) (Subscription, error) {
	if c.listener == nil {
		return nil, ErrNoListener
	}

	dec := newEventDecoder(c.baseURL, handler)
	av, err := c.listener.Subscribe(ctx, c.baseURL, AVTransport.Event, dec.avTransport)
	if err != nil {
		return nil, fmt.Errorf("subscribing to AVTransport: %w", err)
	}
	rc, err := c.listener.Subscribe(ctx, c.baseURL, RenderingControl.Event, dec.renderingControl)
	if err != nil {
		_ = av.Unsubscribe(ctx)
		return nil, fmt.Errorf("subscribing to RenderingControl: %w", err)
	}

	c.logger.Debug("subscribed to events", "host", c.host)
	return subscriptions{av, rc}, nil
}

// subscriptions cancels several GENA subscriptions together.
type subscriptions []Subscription

func (s subscriptions) Unsubscribe(ctx context.Context) error {
	var first error
	for _, sub := range s {
		if err := sub.Unsubscribe(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
