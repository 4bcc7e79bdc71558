package speaker

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sonos/internal/sonos"
	"github.com/nerrad567/gray-logic-sonos/internal/sonos/sonostest"
)

func TestNewValidation(t *testing.T) {
	d := sonostest.NewMockDevice()
	dial := newDialRecorder().Dial

	tests := []struct {
		name string
		opts Options
	}{
		{"missing id", Options{Device: d, Dial: dial}},
		{"missing device", Options{ID: "x", Dial: dial}},
		{"missing dialer", Options{ID: "x", Device: d}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New() error = nil")
			}
		})
	}
}

func TestInitPopulatesCache(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) {
		d.Vol = 45
		d.Mute = true
		d.State = sonos.StatePlaying
		d.Track = sonos.Track{Title: "Song", Artist: "Band", Album: "Record", Duration: 200, Position: 50, ArtURI: "http://192.168.1.20:1400/getaa?u=x"}
		d.Mode = "SHUFFLE"
		d.Crossfade = true
	})

	want := map[string]any{
		PropVolume:    45,
		PropMuted:     true,
		PropPlaying:   true,
		PropTrack:     "Song",
		PropArtist:    "Band",
		PropAlbum:     "Record",
		PropProgress:  25.0,
		PropPosition:  50,
		PropShuffle:   true,
		PropRepeat:    "All",
		PropCrossfade: true,
		PropAlbumArt:  "/media/sonos/00-0E-58-AA-BB-CC:7/album.png",
	}
	for name, v := range want {
		if got := h.value(t, name); got != v {
			t.Errorf("%s = %v (%T), want %v (%T)", name, got, got, v, v)
		}
	}

	if h.speaker.Title() != "Kitchen" {
		t.Errorf("Title() = %q", h.speaker.Title())
	}
	if !h.speaker.TickerActive() {
		t.Error("ticker not running for a playing track")
	}
	if len(h.notifier.changesFor(PropVolume)) != 0 {
		t.Error("Init notified the host")
	}
	if !h.device.Subscribed() {
		t.Error("not subscribed")
	}
}

func TestInitFailures(t *testing.T) {
	for _, method := range []string{"ZoneName", "Muted", "CurrentTrack", "ZoneInfo", "Subscribe"} {
		t.Run(method, func(t *testing.T) {
			h := newHarness(t, func(d *sonostest.MockDevice) {
				d.SetError(method, sonostest.ErrUnreachable)
			})
			if err := h.speaker.Init(context.Background()); err == nil {
				t.Fatal("Init() error = nil")
			}
			if h.failure.count() != 0 {
				t.Error("Init failure escalated to the disconnect policy")
			}
		})
	}
}

func TestProgressEndToEnd(t *testing.T) {
	h := startHarness(t, nil)

	h.device.Update(func(d *sonostest.MockDevice) {
		d.Track = sonos.Track{Title: "Long Song", Duration: 180}
	})
	h.device.Emit(sonos.CurrentTrackEvent{Track: sonos.Track{Title: "Long Song", Duration: 180}})
	h.device.Emit(sonos.PlayStateEvent{State: sonos.StatePlaying})

	waitFor(t, "ticker start", h.speaker.TickerActive)
	h.tickers.tick(t, 10)

	waitFor(t, "position 10", func() bool { return h.value(t, PropPosition) == 10 })
	progress := h.value(t, PropProgress).(float64)
	if math.Abs(progress-5.5556) > 0.001 {
		t.Errorf("progress = %v, want ~5.5556", progress)
	}

	h.device.Emit(sonos.AVTransportEvent{PlayMode: "NORMAL", HasMetadata: false, MetadataKnown: true})
	h.device.Emit(sonos.MutedEvent{Muted: true})
	waitFor(t, "metadata cleared", func() bool { return h.value(t, PropMuted) == true })

	if got := h.value(t, PropTrack); got != "" {
		t.Errorf("track = %v, want empty", got)
	}

	if got := h.value(t, PropProgress); got != 0.0 {
		t.Errorf("progress = %v, want 0", got)
	}
	if h.speaker.TickerActive() {
		t.Error("ticker still running after metadata cleared")
	}
	waitFor(t, "ticker stopped", h.tickers.latest().isStopped)
}

func TestCurrentTrackWithoutPositionIsRequeried(t *testing.T) {
	h := startHarness(t, nil)
	h.device.ClearCalls()
	h.device.Update(func(d *sonostest.MockDevice) {
		d.Track = sonos.Track{Title: "Song", Duration: 100, Position: 40}
	})

	h.device.Emit(sonos.CurrentTrackEvent{Track: sonos.Track{Title: "Song", Duration: 100}})
	waitFor(t, "position 40", func() bool { return h.value(t, PropPosition) == 40 })

	if h.device.CallCount("CurrentTrack") != 1 {
		t.Errorf("CurrentTrack queried %d times, want 1", h.device.CallCount("CurrentTrack"))
	}
}

func TestCurrentTrackRequeryFailureEscalates(t *testing.T) {
	h := startHarness(t, nil)
	h.device.SetError("CurrentTrack", sonostest.ErrUnreachable)

	h.device.Emit(sonos.CurrentTrackEvent{Track: sonos.Track{Title: "Song", Duration: 100}})
	waitFor(t, "escalation", func() bool { return h.failure.count() == 1 })

	if !h.speaker.Failed() {
		t.Error("speaker not marked failed")
	}
	if _, err := h.speaker.SetValue(context.Background(), PropMuted, true); !errors.Is(err, ErrDisconnected) {
		t.Errorf("SetValue() after failure error = %v, want ErrDisconnected", err)
	}
}

func TestEventsUpdateCache(t *testing.T) {
	h := startHarness(t, nil)

	h.device.Emit(sonos.VolumeEvent{Volume: 62})
	h.device.Emit(sonos.AVTransportEvent{PlayMode: "SHUFFLE_REPEAT_ONE", Crossfade: true, HasMetadata: true, MetadataKnown: true})
	h.device.Emit(sonos.MutedEvent{Muted: true})
	waitFor(t, "muted", func() bool { return h.value(t, PropMuted) == true })

	checks := map[string]any{
		PropVolume:    62,
		PropShuffle:   true,
		PropRepeat:    "One",
		PropCrossfade: true,
	}
	for name, want := range checks {
		if got := h.value(t, name); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	if got := h.notifier.changesFor(PropVolume); !reflect.DeepEqual(got, []any{62}) {
		t.Errorf("volume notifications = %v", got)
	}
}

func TestUnknownPlayModeIgnored(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) { d.Mode = "REPEAT_ALL" })

	h.device.Emit(sonos.AVTransportEvent{PlayMode: "PARTY", HasMetadata: true, MetadataKnown: true})
	h.device.Emit(sonos.MutedEvent{Muted: true})
	waitFor(t, "muted", func() bool { return h.value(t, PropMuted) == true })

	if h.value(t, PropRepeat) != "All" || h.value(t, PropShuffle) != false {
		t.Errorf("play mode changed by unknown event")
	}
}

func TestPlaybackStoppedClearsTrack(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) {
		d.State = sonos.StatePlaying
		d.Track = sonos.Track{Title: "Song", Duration: 100, Position: 10}
	})

	h.device.Emit(sonos.PlaybackStoppedEvent{})
	h.device.Emit(sonos.MutedEvent{Muted: true})
	waitFor(t, "stopped", func() bool { return h.value(t, PropMuted) == true })

	if h.value(t, PropPlaying) != false {
		t.Error("still playing")
	}

	if h.value(t, PropTrack) != "" || h.value(t, PropPosition) != 0 {
		t.Error("track state not cleared")
	}
	if h.speaker.TickerActive() {
		t.Error("ticker still running")
	}
}

func TestVolumeEventIgnoredWhileFixed(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) {
		d.SupportsFixed = true
		d.Fixed = true
	})

	p, _ := h.speaker.Property(PropVolume)
	if !p.ReadOnly {
		t.Fatal("volume not read-only under fixed volume")
	}

	h.device.Emit(sonos.VolumeEvent{Volume: 80})
	h.device.Emit(sonos.MutedEvent{Muted: true})
	waitFor(t, "muted", func() bool { return h.value(t, PropMuted) == true })

	if got := h.value(t, PropVolume); got != 0 {
		t.Errorf("volume = %v, want untouched 0", got)
	}
}

func TestSetVolumeRechecksFixedVolume(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) { d.SupportsFixed = true })
	h.device.Update(func(d *sonostest.MockDevice) { d.Fixed = true })

	_, err := h.speaker.SetValue(context.Background(), PropVolume, float64(50))
	var ce *CapabilityError
	if !errors.As(err, &ce) || !errors.Is(err, ErrReadOnly) {
		t.Fatalf("SetValue() error = %v, want CapabilityError", err)
	}
	if h.device.CallCount("SetVolume") != 0 {
		t.Error("SetVolume sent while fixed")
	}
	if p, _ := h.speaker.Property(PropVolume); !p.ReadOnly {
		t.Error("volume not marked read-only")
	}
	if h.speaker.Failed() || h.failure.count() != 0 {
		t.Error("capability rejection escalated")
	}

	// Fixed volume released out of band: the next write goes through.
	h.device.Update(func(d *sonostest.MockDevice) { d.Fixed = false })
	if _, err := h.speaker.SetValue(context.Background(), PropVolume, float64(50)); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if p, _ := h.speaker.Property(PropVolume); p.ReadOnly || p.Value != 50 {
		t.Errorf("volume = %+v", p)
	}
}

func TestSetValue(t *testing.T) {
	tests := []struct {
		name    string
		prop    string
		value   any
		command string
		want    any
	}{
		{"volume", PropVolume, float64(55), "SetVolume", 55},
		{"muted", PropMuted, true, "SetMuted", true},
		{"crossfade", PropCrossfade, true, "SetCrossfade", true},
		{"play", PropPlaying, true, "Play", true},
		{"shuffle", PropShuffle, true, "SetPlayMode", true},
		{"repeat", PropRepeat, "All", "SetPlayMode", "All"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startHarness(t, nil)

			got, err := h.speaker.SetValue(context.Background(), tt.prop, tt.value)
			if err != nil {
				t.Fatalf("SetValue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SetValue() = %v, want %v", got, tt.want)
			}
			if h.device.CallCount(tt.command) != 1 {
				t.Errorf("%s calls = %d, want 1", tt.command, h.device.CallCount(tt.command))
			}
			if v := h.value(t, tt.prop); v != tt.want {
				t.Errorf("cached %s = %v", tt.prop, v)
			}
			if n := h.notifier.changesFor(tt.prop); !reflect.DeepEqual(n, []any{tt.want}) {
				t.Errorf("notifications = %v", n)
			}
		})
	}
}

func TestSetValueIdempotent(t *testing.T) {
	h := startHarness(t, nil)

	got, err := h.speaker.SetValue(context.Background(), PropVolume, float64(30))
	if err != nil || got != 30 {
		t.Fatalf("SetValue() = %v, %v", got, err)
	}
	if h.device.CallCount("SetVolume") != 0 {
		t.Error("command sent for unchanged value")
	}
	if len(h.notifier.changesFor(PropVolume)) != 0 {
		t.Error("notified for unchanged value")
	}
}

func TestSetValueLocalRejections(t *testing.T) {
	tests := []struct {
		name  string
		prop  string
		value any
		want  error
	}{
		{"unknown property", "bass", 3, ErrUnknownProperty},
		{"read-only", PropTrack, "x", ErrReadOnly},
		{"wrong type", PropMuted, "yes", ErrInvalidValue},
		{"out of range", PropVolume, float64(150), ErrInvalidValue},
		{"bad enum", PropRepeat, "Sometimes", ErrInvalidValue},
		{"seek without track", PropProgress, 50.0, ErrNoTrack},
		{"position without track", PropPosition, float64(10), ErrNoTrack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startHarness(t, nil)
			h.device.ClearCalls()

			_, err := h.speaker.SetValue(context.Background(), tt.prop, tt.value)
			if !errors.Is(err, tt.want) {
				t.Fatalf("SetValue() error = %v, want %v", err, tt.want)
			}
			if len(h.device.Calls()) != 0 {
				t.Errorf("commands sent: %v", h.device.Calls())
			}
			if h.speaker.Failed() {
				t.Error("local rejection marked speaker failed")
			}
		})
	}
}

func TestShuffleThenRepeatComposes(t *testing.T) {
	h := startHarness(t, nil)
	ctx := context.Background()

	if _, err := h.speaker.SetValue(ctx, PropShuffle, true); err != nil {
		t.Fatal(err)
	}
	if _, err := h.speaker.SetValue(ctx, PropRepeat, "One"); err != nil {
		t.Fatal(err)
	}
	h.device.Update(func(d *sonostest.MockDevice) {
		if d.Mode != "SHUFFLE_REPEAT_ONE" {
			t.Errorf("device mode = %q, want SHUFFLE_REPEAT_ONE", d.Mode)
		}
	})
}

func TestSeek(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) {
		d.Track = sonos.Track{Title: "Song", Duration: 200, Position: 10}
	})
	ctx := context.Background()

	got, err := h.speaker.SetValue(ctx, PropProgress, 50.0)
	if err != nil {
		t.Fatalf("seek by percent error = %v", err)
	}
	if got != 50.0 || h.device.LastSeek != 100 || h.value(t, PropPosition) != 100 {
		t.Errorf("seek by percent: got %v, device at %d", got, h.device.LastSeek)
	}

	if _, err := h.speaker.SetValue(ctx, PropPosition, float64(150)); err != nil {
		t.Fatalf("seek by position error = %v", err)
	}
	if h.device.LastSeek != 150 || h.value(t, PropProgress) != 75.0 {
		t.Errorf("seek by position: device at %d, progress %v", h.device.LastSeek, h.value(t, PropProgress))
	}

	if _, err := h.speaker.SetValue(ctx, PropPosition, float64(201)); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("seek beyond duration error = %v, want ErrInvalidValue", err)
	}
}

func TestCommandFailureEscalates(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) {
		d.State = sonos.StatePlaying
		d.Track = sonos.Track{Title: "Song", Duration: 100, Position: 10}
	})
	h.device.SetError("SetMuted", sonostest.ErrUnreachable)

	_, err := h.speaker.SetValue(context.Background(), PropMuted, true)
	var rf *RemoteCommandFailure
	if !errors.As(err, &rf) || rf.Command != "setMuted" {
		t.Fatalf("SetValue() error = %v, want RemoteCommandFailure(setMuted)", err)
	}

	if h.failure.count() != 1 {
		t.Errorf("escalations = %d, want 1", h.failure.count())
	}
	if h.speaker.TickerActive() {
		t.Error("ticker running after failure")
	}
	waitFor(t, "ticker stopped", h.tickers.latest().isStopped)
	if !h.device.Unsubscribed() {
		t.Error("subscription not cancelled")
	}
	if _, err := h.speaker.SetValue(context.Background(), PropVolume, float64(10)); !errors.Is(err, ErrDisconnected) {
		t.Errorf("SetValue() after failure = %v, want ErrDisconnected", err)
	}
}

func TestSingleTicker(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) {
		d.State = sonos.StatePlaying
		d.Track = sonos.Track{Title: "One", Duration: 100, Position: 10}
	})
	if h.tickers.count() != 1 {
		t.Fatalf("tickers = %d, want 1", h.tickers.count())
	}

	h.device.Emit(sonos.PlayStateEvent{State: sonos.StatePlaying})
	h.device.Emit(sonos.PlayStateEvent{State: sonos.StatePlaying})
	h.device.Emit(sonos.MutedEvent{Muted: true})
	waitFor(t, "muted", func() bool { return h.value(t, PropMuted) == true })
	if h.tickers.count() != 1 {
		t.Errorf("repeated play events created %d tickers", h.tickers.count())
	}

	first := h.tickers.latest()
	h.device.Emit(sonos.CurrentTrackEvent{Track: sonos.Track{Title: "Two", Duration: 100, Position: 5}})
	waitFor(t, "second ticker", func() bool { return h.tickers.count() == 2 })
	waitFor(t, "first ticker stopped", first.isStopped)

	// A tick from the replaced ticker's generation is dropped.
	h.speaker.tick(1)
	if got := h.value(t, PropPosition); got != 5 {
		t.Errorf("position = %v after stale tick, want 5", got)
	}
}

func TestPauseStopsTicker(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) {
		d.State = sonos.StatePlaying
		d.Track = sonos.Track{Title: "Song", Duration: 100, Position: 10}
	})

	if _, err := h.speaker.SetValue(context.Background(), PropPlaying, false); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if h.device.CallCount("Pause") != 1 {
		t.Error("Pause not sent")
	}
	if h.speaker.TickerActive() {
		t.Error("ticker running while paused")
	}
}

func TestPerformActionLifecycle(t *testing.T) {
	h := startHarness(t, nil)

	rec, err := h.speaker.PerformAction(context.Background(), ActionNext, nil)
	if err != nil {
		t.Fatalf("PerformAction() error = %v", err)
	}
	if rec.Status != ActionCompleted || rec.TimeCompleted == nil || rec.ID == "" {
		t.Errorf("record = %+v", rec)
	}
	if h.device.CallCount("Next") != 1 {
		t.Error("Next not sent")
	}

	records := h.notifier.actionRecords()
	if len(records) != 2 {
		t.Fatalf("action notifications = %d, want 2", len(records))
	}
	if records[0].Status != ActionPending || records[1].Status != ActionCompleted {
		t.Errorf("statuses = %s, %s", records[0].Status, records[1].Status)
	}
	if records[0].ID != records[1].ID {
		t.Error("pending and completed records have different ids")
	}
}

func TestPerformActionCommands(t *testing.T) {
	tests := []struct {
		action  string
		input   ActionInput
		command string
	}{
		{ActionNext, nil, "Next"},
		{ActionPrev, nil, "Previous"},
		{ActionStop, nil, "Stop"},
		{ActionPlayURI, ActionInput{{Name: "uri", Value: "x-rincon-mp3radio://stream.example.com/live"}}, "PlayURI"},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			h := startHarness(t, nil)
			if _, err := h.speaker.PerformAction(context.Background(), tt.action, tt.input); err != nil {
				t.Fatalf("PerformAction() error = %v", err)
			}
			if h.device.CallCount(tt.command) != 1 {
				t.Errorf("%s calls = %d", tt.command, h.device.CallCount(tt.command))
			}
		})
	}
}

func TestPerformActionRejections(t *testing.T) {
	tests := []struct {
		name   string
		action string
		input  ActionInput
		want   error
	}{
		{"unknown action", "shuffleAll", nil, ErrUnknownAction},
		{"missing uri", ActionPlayURI, ActionInput{}, ErrInvalidInput},
		{"wrong uri type", ActionPlayURI, ActionInput{{Name: "uri", Value: 7.0}}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startHarness(t, nil)
			if _, err := h.speaker.PerformAction(context.Background(), tt.action, tt.input); !errors.Is(err, tt.want) {
				t.Fatalf("PerformAction() error = %v, want %v", err, tt.want)
			}
			if len(h.notifier.actionRecords()) != 0 {
				t.Error("rejected action was reported")
			}
		})
	}
}

func TestPerformActionFailure(t *testing.T) {
	h := startHarness(t, nil)
	h.device.SetError("Next", sonostest.ErrUnreachable)

	rec, err := h.speaker.PerformAction(context.Background(), ActionNext, nil)
	if !IsRemoteFailure(err) {
		t.Fatalf("PerformAction() error = %v, want RemoteCommandFailure", err)
	}
	if rec.Status != ActionFailed || rec.Error == "" {
		t.Errorf("record = %+v", rec)
	}
	if h.failure.count() != 1 {
		t.Errorf("escalations = %d", h.failure.count())
	}
}

func TestGroupAction(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) { d.Groups = testGroups() })

	var spec ActionSpec
	for _, a := range h.speaker.Actions() {
		if a.Name == ActionGroup {
			spec = a
		}
	}
	if len(spec.Input.Required) != 2 {
		t.Fatalf("group fields = %v", spec.Input.Required)
	}

	input := ActionInput{{Name: "Living Room", Value: true}, {Name: "Bedroom", Value: false}}
	if _, err := h.speaker.PerformAction(context.Background(), ActionGroup, input); err != nil {
		t.Fatalf("PerformAction(group) error = %v", err)
	}
	if got := h.dialer.dialed(); !reflect.DeepEqual(got, []string{"192.168.1.21"}) {
		t.Errorf("dialed = %v", got)
	}

	missing := ActionInput{{Name: "Living Room", Value: true}}
	if _, err := h.speaker.PerformAction(context.Background(), ActionGroup, missing); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("PerformAction(missing field) error = %v, want ErrInvalidInput", err)
	}
}

func TestDescribeRebuildsGroupAction(t *testing.T) {
	h := startHarness(t, nil)
	h.device.Update(func(d *sonostest.MockDevice) { d.Groups = testGroups() })

	desc, err := h.speaker.Describe(context.Background())
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if desc.Title != "Kitchen" || len(desc.Properties) != 12 {
		t.Errorf("description = %+v", desc)
	}
	last := desc.Actions[len(desc.Actions)-1]
	if last.Name != ActionGroup || len(last.Input.Properties) != 2 {
		t.Errorf("group action = %+v", last)
	}
}

func TestCloseIdempotent(t *testing.T) {
	h := startHarness(t, nil)
	ctx := context.Background()

	if err := h.speaker.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.speaker.Close(ctx); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if !h.device.Unsubscribed() {
		t.Error("subscription not cancelled")
	}
	if _, err := h.speaker.PerformAction(ctx, ActionNext, nil); !errors.Is(err, ErrDisconnected) {
		t.Errorf("PerformAction() after Close = %v, want ErrDisconnected", err)
	}
	if h.failure.count() != 0 {
		t.Error("Close escalated")
	}
}

func TestActionInputKeepsOrder(t *testing.T) {
	var in ActionInput
	if err := in.UnmarshalJSON([]byte(`{"Bedroom": true, "Attic": false, "Kitchen": true}`)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	var names []string
	for _, f := range in {
		names = append(names, f.Name)
	}
	if want := []string{"Bedroom", "Attic", "Kitchen"}; !reflect.DeepEqual(names, want) {
		t.Errorf("order = %v, want %v", names, want)
	}

	out, err := in.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(out) != `{"Bedroom":true,"Attic":false,"Kitchen":true}` {
		t.Errorf("MarshalJSON() = %s", out)
	}

	if err := in.UnmarshalJSON([]byte(`[1,2]`)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("UnmarshalJSON(array) error = %v", err)
	}
}

func TestSlowAlbumArtDoesNotStallCommands(t *testing.T) {
	art := &stallingArt{}
	h := startHarnessWith(t, nil, func(o *Options) {
		o.Art = art
		o.CommandTimeout = 200 * time.Millisecond
		o.ArtTimeout = time.Minute
	})
	h.device.Update(func(d *sonostest.MockDevice) {
		d.Track = sonos.Track{Title: "Slow", Duration: 100, Position: 30}
	})

	h.device.Emit(sonos.CurrentTrackEvent{Track: sonos.Track{
		Title: "Slow", Duration: 100, ArtURI: "http://art.example/slow.jpg",
	}})
	waitFor(t, "position 30", func() bool { return h.value(t, PropPosition) == 30 })
	waitFor(t, "art fetch", func() bool { started, _ := art.counts(); return started == 1 })

	// Outlive the command deadline while the art host is still silent.
	time.Sleep(300 * time.Millisecond)
	if _, err := h.speaker.SetValue(context.Background(), PropMuted, true); err != nil {
		t.Fatalf("SetValue() during art fetch error = %v", err)
	}
	if h.speaker.Failed() || h.failure.count() != 0 {
		t.Fatal("slow album art escalated to the disconnect policy")
	}

	if err := h.speaker.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ended := art.counts(); ended != 1 {
		t.Errorf("art fetches ended = %d after Close, want 1", ended)
	}
}

func TestAlbumArtFetchedOncePerURI(t *testing.T) {
	h := startHarness(t, nil)
	track := sonos.Track{Title: "Song", Duration: 100, Position: 10, ArtURI: "http://art.example/a.jpg"}

	h.device.Emit(sonos.CurrentTrackEvent{Track: track})
	track.Position = 20
	h.device.Emit(sonos.CurrentTrackEvent{Track: track})
	waitFor(t, "position 20", func() bool { return h.value(t, PropPosition) == 20 })
	waitFor(t, "album art", func() bool {
		return h.value(t, PropAlbumArt) == "/media/sonos/00-0E-58-AA-BB-CC:7/album.png"
	})

	want := []string{"", "http://art.example/a.jpg"}
	if got := h.art.calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("art updates = %q, want %q", got, want)
	}
}

func TestSetUnchangedVolumeChecksFixedVolume(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) {
		d.SupportsFixed = true
		d.Vol = 30
	})
	// Fixed volume switched on out of band; the cache still says writable.
	h.device.Update(func(d *sonostest.MockDevice) { d.Fixed = true })

	_, err := h.speaker.SetValue(context.Background(), PropVolume, float64(30))
	var ce *CapabilityError
	if !errors.As(err, &ce) {
		t.Fatalf("SetValue() error = %v, want CapabilityError", err)
	}
	if p, _ := h.speaker.Property(PropVolume); !p.ReadOnly {
		t.Error("volume not marked read-only")
	}

	h.device.Update(func(d *sonostest.MockDevice) { d.Fixed = false })
	got, err := h.speaker.SetValue(context.Background(), PropVolume, float64(30))
	if err != nil || got != 30 {
		t.Fatalf("SetValue() = %v, %v", got, err)
	}
	if p, _ := h.speaker.Property(PropVolume); p.ReadOnly {
		t.Error("volume still read-only after fixed volume was released")
	}
	if h.device.CallCount("SetVolume") != 0 {
		t.Error("command sent for unchanged value")
	}
}

func TestPlayModeOnlyChangeKeepsTrack(t *testing.T) {
	h := startHarness(t, func(d *sonostest.MockDevice) {
		d.State = sonos.StatePlaying
		d.Track = sonos.Track{Title: "Song", Duration: 100, Position: 10}
	})

	// No CurrentTrackMetaData seen yet on this subscription.
	h.device.Emit(sonos.AVTransportEvent{PlayMode: "REPEAT_ALL"})
	h.device.Emit(sonos.MutedEvent{Muted: true})
	waitFor(t, "muted", func() bool { return h.value(t, PropMuted) == true })

	if h.value(t, PropRepeat) != "All" {
		t.Errorf("repeat = %v, want All", h.value(t, PropRepeat))
	}
	if h.value(t, PropTrack) != "Song" || h.value(t, PropPosition) != 10 {
		t.Error("track cleared by a play mode change")
	}
	if !h.speaker.TickerActive() {
		t.Error("ticker stopped by a play mode change")
	}
}
