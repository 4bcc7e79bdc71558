// Package sonostest provides an in-memory zone player for tests.
package sonostest

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-sonos/internal/sonos"
)

// ErrUnreachable is a convenient failure for SetError.
var ErrUnreachable = errors.New("sonostest: device unreachable")

// MAC is the default MAC address of a MockDevice. Its zone identifiers
// start with "RINCON_000E58AABBCC".
const MAC = "00:0E:58:AA:BB:CC"

// MockDevice implements the speaker's device surface in memory.
//
// Query methods return the exported fields; command methods record their
// name and update the fields the way a real zone player would. Any method
// can be made to fail with SetError.
type MockDevice struct {
	mu sync.Mutex

	Description   sonos.DeviceDescription
	Name          string
	Vol           int
	Mute          bool
	State         sonos.PlayState
	Track         sonos.Track
	Mode          string
	Crossfade     bool
	SupportsFixed bool
	Fixed         bool
	Groups        []sonos.ZoneGroup
	Info          sonos.ZoneInfo
	LastURI       string
	LastSeek      int
	Joined        []string

	errs         map[string]error
	calls        []string
	handler      sonos.EventHandler
	subscribed   bool
	unsubscribed bool
}

// NewMockDevice returns a stopped, ungrouped zone player named "Kitchen".
func NewMockDevice() *MockDevice {
	uuid := "RINCON_000E58AABBCC01400"
	return &MockDevice{
		Description: sonos.DeviceDescription{
			SerialNum: "00-0E-58-AA-BB-CC:7",
			UDN:       "uuid:" + uuid,
			ZoneType:  "9",
			RoomName:  "Kitchen",
		},
		Name:  "Kitchen",
		Vol:   30,
		State: sonos.StateStopped,
		Mode:  "NORMAL",
		Info:  sonos.ZoneInfo{MACAddress: MAC, IPAddress: "192.168.1.20"},
		Groups: []sonos.ZoneGroup{{
			ID:          uuid + ":1",
			Coordinator: uuid,
			Members: []sonos.ZoneMember{{
				UUID:     uuid,
				ZoneName: "Kitchen",
				Location: "http://192.168.1.20:1400/xml/device_description.xml",
			}},
		}},
		errs: make(map[string]error),
	}
}

// SetError makes method fail with err. A nil err clears the failure.
func (d *MockDevice) SetError(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.errs, method)
		return
	}
	d.errs[method] = err
}

// Calls returns the names of the commands issued so far.
func (d *MockDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// CallCount returns how often the named command was issued.
func (d *MockDevice) CallCount(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == method {
			n++
		}
	}
	return n
}

// ClearCalls forgets the recorded commands.
func (d *MockDevice) ClearCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Update runs fn with the device locked, for changing state mid-test.
func (d *MockDevice) Update(fn func(d *MockDevice)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

// Emit delivers an event to the subscribed handler, if any.
func (d *MockDevice) Emit(ev sonos.Event) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Subscribed reports whether a subscription is open.
func (d *MockDevice) Subscribed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subscribed && !d.unsubscribed
}

// Unsubscribed reports whether the subscription was cancelled.
func (d *MockDevice) Unsubscribed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unsubscribed
}

// command records a command and returns its configured error. Caller holds mu.
func (d *MockDevice) command(method string) error {
	d.calls = append(d.calls, method)
	return d.errs[method]
}

func (d *MockDevice) DeviceDescription(ctx context.Context) (sonos.DeviceDescription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Description, d.errs["DeviceDescription"]
}

func (d *MockDevice) ZoneName(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Name, d.errs["ZoneName"]
}

func (d *MockDevice) Volume(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Vol, d.errs["Volume"]
}

func (d *MockDevice) Muted(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Mute, d.errs["Muted"]
}

func (d *MockDevice) TransportState(ctx context.Context) (sonos.PlayState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.State, d.errs["TransportState"]
}

func (d *MockDevice) CurrentTrack(ctx context.Context) (sonos.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "CurrentTrack")
	if err := ctx.Err(); err != nil {
		return sonos.Track{}, err
	}
	return d.Track, d.errs["CurrentTrack"]
}

func (d *MockDevice) PlayMode(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Mode, d.errs["PlayMode"]
}

func (d *MockDevice) CrossfadeMode(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Crossfade, d.errs["CrossfadeMode"]
}

func (d *MockDevice) SupportsFixedVolume(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.SupportsFixed, d.errs["SupportsFixedVolume"]
}

func (d *MockDevice) FixedVolume(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "FixedVolume")
	return d.Fixed, d.errs["FixedVolume"]
}

func (d *MockDevice) AllGroups(ctx context.Context) ([]sonos.ZoneGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sonos.ZoneGroup(nil), d.Groups...), d.errs["AllGroups"]
}

func (d *MockDevice) ZoneInfo(ctx context.Context) (sonos.ZoneInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Info, d.errs["ZoneInfo"]
}

func (d *MockDevice) Play(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command("Play"); err != nil {
		return err
	}
	d.State = sonos.StatePlaying
	return nil
}

func (d *MockDevice) Pause(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command("Pause"); err != nil {
		return err
	}
	d.State = sonos.StatePaused
	return nil
}

func (d *MockDevice) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command("Stop"); err != nil {
		return err
	}
	d.State = sonos.StateStopped
	return nil
}

func (d *MockDevice) Next(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.command("Next")
}

func (d *MockDevice) Previous(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.command("Previous")
}

func (d *MockDevice) SetVolume(ctx context.Context, volume int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command("SetVolume"); err != nil {
		return err
	}
	d.Vol = volume
	return nil
}

func (d *MockDevice) SetMuted(ctx context.Context, muted bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command("SetMuted"); err != nil {
		return err
	}
	d.Mute = muted
	return nil
}

func (d *MockDevice) SetPlayMode(ctx context.Context, mode string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command("SetPlayMode"); err != nil {
		return err
	}
	d.Mode = mode
	return nil
}

func (d *MockDevice) Seek(ctx context.Context, position int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command("Seek"); err != nil {
		return err
	}
	d.LastSeek = position
	return nil
}

func (d *MockDevice) SetCrossfade(ctx context.Context, crossfade bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command("SetCrossfade"); err != nil {
		return err
	}
	d.Crossfade = crossfade
	return nil
}

func (d *MockDevice) JoinGroup(ctx context.Context, zoneName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command("JoinGroup"); err != nil {
		return err
	}
	d.Joined = append(d.Joined, zoneName)
	return nil
}

func (d *MockDevice) LeaveGroup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.command("LeaveGroup")
}

func (d *MockDevice) PlayURI(ctx context.Context, uri string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command("PlayURI"); err != nil {
		return err
	}
	d.LastURI = uri
	d.State = sonos.StatePlaying
	return nil
}

func (d *MockDevice) Subscribe(ctx context.Context, handler sonos.EventHandler) (sonos.Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.errs["Subscribe"]; err != nil {
		return nil, err
	}
	d.handler = handler
	d.subscribed = true
	return mockSubscription{d: d}, nil
}

type mockSubscription struct{ d *MockDevice }

func (s mockSubscription) Unsubscribe(ctx context.Context) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.unsubscribed = true
	s.d.handler = nil
	return nil
}
