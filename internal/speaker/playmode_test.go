package speaker

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-sonos/internal/sonos/sonostest"
)

func TestPlayModeTableBijection(t *testing.T) {
	wires := map[string]bool{}
	pairs := map[[2]any]bool{}

	for _, row := range playModeTable {
		if wires[row.wire] {
			t.Errorf("duplicate wire string %q", row.wire)
		}
		wires[row.wire] = true

		key := [2]any{row.shuffle, row.repeat}
		if pairs[key] {
			t.Errorf("duplicate pair shuffle=%v repeat=%v", row.shuffle, row.repeat)
		}
		pairs[key] = true

		parsed, ok := ParsePlayMode(row.wire)
		if !ok || parsed != row.mode {
			t.Errorf("ParsePlayMode(%q) = %v, %v; want %v", row.wire, parsed, ok, row.mode)
		}
		if got := ComposePlayMode(row.shuffle, row.repeat); got != row.mode {
			t.Errorf("ComposePlayMode(%v, %v) = %v, want %v", row.shuffle, row.repeat, got, row.mode)
		}
		if row.mode.String() != row.wire {
			t.Errorf("%v.String() = %q", row.mode, row.mode.String())
		}
	}
	if len(pairs) != 6 {
		t.Errorf("table covers %d pairs, want 6", len(pairs))
	}
}

func TestPlayModeDecomposition(t *testing.T) {
	tests := []struct {
		wire    string
		shuffle bool
		repeat  Repeat
	}{
		{"NORMAL", false, RepeatNone},
		{"SHUFFLE_NOREPEAT", true, RepeatNone},
		{"REPEAT_ALL", false, RepeatAll},
		{"SHUFFLE", true, RepeatAll},
		{"REPEAT_ONE", false, RepeatOne},
		{"SHUFFLE_REPEAT_ONE", true, RepeatOne},
	}

	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			mode, ok := ParsePlayMode(tt.wire)
			if !ok {
				t.Fatalf("ParsePlayMode(%q) not ok", tt.wire)
			}
			if mode.Shuffle() != tt.shuffle || mode.Repeat() != tt.repeat {
				t.Errorf("got shuffle=%v repeat=%v, want %v %v", mode.Shuffle(), mode.Repeat(), tt.shuffle, tt.repeat)
			}
		})
	}
}

func TestParsePlayModeUnknown(t *testing.T) {
	for _, wire := range []string{"", "normal", "SHUFFLE_REPEAT_ALL", "PARTY"} {
		if _, ok := ParsePlayMode(wire); ok {
			t.Errorf("ParsePlayMode(%q) ok, want unknown", wire)
		}
	}
}

func TestModeCoordinatorObserveUnknownKeepsIntent(t *testing.T) {
	c := NewModeCoordinator(sonostest.NewMockDevice())
	c.Observe("SHUFFLE")

	mode, ok := c.Observe("PARTY_MODE")
	if ok {
		t.Fatal("Observe(unknown) ok = true")
	}
	if mode != PlayModeShuffle || c.Intent() != PlayModeShuffle {
		t.Errorf("intent = %v, want SHUFFLE", c.Intent())
	}
}

func TestModeCoordinatorUsesHeldIntent(t *testing.T) {
	d := sonostest.NewMockDevice()
	c := NewModeCoordinator(d)
	ctx := context.Background()

	// Shuffle then repeat in quick succession: the second write must keep
	// the shuffle from the first.
	if err := c.SetShuffle(ctx, true); err != nil {
		t.Fatalf("SetShuffle() error = %v", err)
	}
	if d.Mode != "SHUFFLE_NOREPEAT" {
		t.Fatalf("device mode = %q, want SHUFFLE_NOREPEAT", d.Mode)
	}
	if err := c.SetRepeat(ctx, RepeatOne); err != nil {
		t.Fatalf("SetRepeat() error = %v", err)
	}
	if d.Mode != "SHUFFLE_REPEAT_ONE" {
		t.Errorf("device mode = %q, want SHUFFLE_REPEAT_ONE", d.Mode)
	}
	if c.Intent() != PlayModeShuffleRepeatOne {
		t.Errorf("intent = %v", c.Intent())
	}
}

func TestModeCoordinatorRepeatAllWithShuffle(t *testing.T) {
	d := sonostest.NewMockDevice()
	c := NewModeCoordinator(d)
	c.Observe("SHUFFLE_NOREPEAT")

	if err := c.SetRepeat(context.Background(), RepeatAll); err != nil {
		t.Fatalf("SetRepeat() error = %v", err)
	}
	if d.Mode != "SHUFFLE" {
		t.Errorf("device mode = %q, want SHUFFLE", d.Mode)
	}
}

func TestModeCoordinatorFailureKeepsIntent(t *testing.T) {
	d := sonostest.NewMockDevice()
	d.SetError("SetPlayMode", sonostest.ErrUnreachable)
	c := NewModeCoordinator(d)
	c.Observe("REPEAT_ALL")

	err := c.SetShuffle(context.Background(), true)
	var rf *RemoteCommandFailure
	if !errors.As(err, &rf) {
		t.Fatalf("SetShuffle() error = %v, want RemoteCommandFailure", err)
	}
	if rf.Command != "setPlayMode" {
		t.Errorf("Command = %q", rf.Command)
	}
	if c.Intent() != PlayModeRepeatAll {
		t.Errorf("intent = %v, want REPEAT_ALL", c.Intent())
	}
}
