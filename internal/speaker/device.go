package speaker

import (
	"context"

	"github.com/nerrad567/gray-logic-sonos/internal/sonos"
)

// Device is the control surface of one zone player.
//
// Every method performs one request/response round trip and may block
// until ctx is done. *sonos.Client implements it.
type Device interface {
	// Queries
	ZoneName(ctx context.Context) (string, error)
	Volume(ctx context.Context) (int, error)
	Muted(ctx context.Context) (bool, error)
	TransportState(ctx context.Context) (sonos.PlayState, error)
	CurrentTrack(ctx context.Context) (sonos.Track, error)
	PlayMode(ctx context.Context) (string, error)
	CrossfadeMode(ctx context.Context) (bool, error)
	SupportsFixedVolume(ctx context.Context) (bool, error)
	FixedVolume(ctx context.Context) (bool, error)
	AllGroups(ctx context.Context) ([]sonos.ZoneGroup, error)
	ZoneInfo(ctx context.Context) (sonos.ZoneInfo, error)

	// Commands
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetVolume(ctx context.Context, volume int) error
	SetMuted(ctx context.Context, muted bool) error
	SetPlayMode(ctx context.Context, mode string) error
	Seek(ctx context.Context, position int) error
	SetCrossfade(ctx context.Context, crossfade bool) error
	LeaveGroup(ctx context.Context) error
	PlayURI(ctx context.Context, uri string) error

	// Subscribe opens all event channels. The handler is called
	// sequentially in arrival order until the subscription is cancelled.
	Subscribe(ctx context.Context, handler sonos.EventHandler) (sonos.Subscription, error)
}

// Notifier receives host-facing notifications from a speaker.
// Calls may come from any of the speaker's goroutines.
type Notifier interface {
	PropertyChanged(deviceID string, p Property)
	ActionStatus(deviceID string, a ActionRecord)
}

// FailurePolicy handles a speaker that must be assumed disconnected.
//
// The speaker has already stopped its ticker and rejects further events
// and commands when AssumeDisconnected is called. The policy is expected
// to Close the speaker, deregister it and reopen discovery.
type FailurePolicy interface {
	AssumeDisconnected(s *Speaker, err error)
}

// ArtStore stores album art for a speaker. Update with an empty artURI
// removes any stored art. It returns the host-facing reference of the
// stored image, or "" when nothing is stored.
type ArtStore interface {
	Update(ctx context.Context, deviceID, artURI string) (string, error)
}

// Logger defines the logging interface used by speakers.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
