package speaker

import "context"

// PlayMode is the device's single composite shuffle/repeat setting.
type PlayMode uint8

// The six reachable play modes.
const (
	PlayModeNormal PlayMode = iota
	PlayModeShuffleNoRepeat
	PlayModeShuffle
	PlayModeRepeatOne
	PlayModeShuffleRepeatOne
	PlayModeRepeatAll
)

// Repeat is the host-side repeat setting.
type Repeat string

// Repeat values as exposed in the repeat property's enum.
const (
	RepeatNone Repeat = "None"
	RepeatOne  Repeat = "One"
	RepeatAll  Repeat = "All"
)

// playModeTable is the complete bijection between device modes, their
// wire strings and the (shuffle, repeat) pair.
var playModeTable = [...]struct {
	mode    PlayMode
	wire    string
	shuffle bool
	repeat  Repeat
}{
	{PlayModeNormal, "NORMAL", false, RepeatNone},
	{PlayModeShuffleNoRepeat, "SHUFFLE_NOREPEAT", true, RepeatNone},
	{PlayModeShuffle, "SHUFFLE", true, RepeatAll},
	{PlayModeRepeatOne, "REPEAT_ONE", false, RepeatOne},
	{PlayModeShuffleRepeatOne, "SHUFFLE_REPEAT_ONE", true, RepeatOne},
	{PlayModeRepeatAll, "REPEAT_ALL", false, RepeatAll},
}

// ParsePlayMode decodes a device play mode string.
func ParsePlayMode(wire string) (PlayMode, bool) {
	for _, row := range playModeTable {
		if row.wire == wire {
			return row.mode, true
		}
	}
	return PlayModeNormal, false
}

// ComposePlayMode returns the mode for a (shuffle, repeat) pair. Unknown
// repeat values are treated as RepeatNone.
func ComposePlayMode(shuffle bool, repeat Repeat) PlayMode {
	for _, row := range playModeTable {
		if row.shuffle == shuffle && row.repeat == repeat {
			return row.mode
		}
	}
	return ComposePlayMode(shuffle, RepeatNone)
}

// String returns the device wire string.
func (m PlayMode) String() string {
	if int(m) < len(playModeTable) {
		return playModeTable[m].wire
	}
	return "NORMAL"
}

// Shuffle reports whether the mode shuffles.
func (m PlayMode) Shuffle() bool {
	if int(m) < len(playModeTable) {
		return playModeTable[m].shuffle
	}
	return false
}

// Repeat returns the mode's repeat setting.
func (m PlayMode) Repeat() Repeat {
	if int(m) < len(playModeTable) {
		return playModeTable[m].repeat
	}
	return RepeatNone
}

// playModeSetter is the device command the coordinator drives.
type playModeSetter interface {
	SetPlayMode(ctx context.Context, mode string) error
}

// ModeCoordinator keeps the last-known play mode intent and turns writes
// to one half of the (shuffle, repeat) pair into a single composite
// device command.
//
// A write composes the target from the coordinator's own intent for the
// other half, never from the property cache, so a shuffle write followed
// immediately by a repeat write cannot resurrect a stale shuffle value.
// Callers serialize access.
type ModeCoordinator struct {
	device playModeSetter
	intent PlayMode
}

// NewModeCoordinator creates a coordinator starting at PlayModeNormal.
func NewModeCoordinator(device playModeSetter) *ModeCoordinator {
	return &ModeCoordinator{device: device}
}

// Intent returns the current composite intent.
func (c *ModeCoordinator) Intent() PlayMode { return c.intent }

// Observe records a device-reported mode. Unknown strings leave the intent
// untouched and return ok=false.
func (c *ModeCoordinator) Observe(wire string) (mode PlayMode, ok bool) {
	mode, ok = ParsePlayMode(wire)
	if ok {
		c.intent = mode
	}
	return c.intent, ok
}

// SetShuffle sends the mode combining shuffle with the held repeat intent.
func (c *ModeCoordinator) SetShuffle(ctx context.Context, shuffle bool) error {
	return c.apply(ctx, ComposePlayMode(shuffle, c.intent.Repeat()))
}

// SetRepeat sends the mode combining repeat with the held shuffle intent.
func (c *ModeCoordinator) SetRepeat(ctx context.Context, repeat Repeat) error {
	return c.apply(ctx, ComposePlayMode(c.intent.Shuffle(), repeat))
}

func (c *ModeCoordinator) apply(ctx context.Context, target PlayMode) error {
	if err := c.device.SetPlayMode(ctx, target.String()); err != nil {
		return remote("setPlayMode", err)
	}
	c.intent = target
	return nil
}
