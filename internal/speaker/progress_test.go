package speaker

import (
	"errors"
	"math"
	"testing"
)

func TestProgressTickStopsAtDuration(t *testing.T) {
	var p ProgressEstimator
	p.Load(3, 1)
	p.SetPlaying(true)

	for i := 0; i < 5; i++ {
		p.Tick()
	}
	if p.Position() != 3 {
		t.Errorf("Position() = %d, want 3", p.Position())
	}
	if p.Tick() {
		t.Error("Tick() at duration reported movement")
	}
}

func TestProgressInactive(t *testing.T) {
	tests := []struct {
		name     string
		duration int
		playing  bool
	}{
		{"paused", 100, false},
		{"no track", 0, true},
		{"neither", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p ProgressEstimator
			p.Load(tt.duration, 0)
			p.SetPlaying(tt.playing)
			if p.Active() {
				t.Error("Active() = true")
			}
			if p.Tick() {
				t.Error("Tick() moved an inactive estimator")
			}
		})
	}
}

func TestProgressLoadClamps(t *testing.T) {
	var p ProgressEstimator
	p.Load(100, 250)
	if p.Position() != 100 {
		t.Errorf("Position() = %d, want 100", p.Position())
	}
	p.Load(100, -4)
	if p.Position() != 0 {
		t.Errorf("Position() = %d, want 0", p.Position())
	}
	p.Load(-1, 10)
	if p.Duration() != 0 || p.Position() != 0 {
		t.Errorf("negative duration kept: %d/%d", p.Position(), p.Duration())
	}
}

func TestPercentToPosition(t *testing.T) {
	tests := []struct {
		percent  float64
		duration int
		want     int
	}{
		{50, 200, 100},
		{33.3, 200, 66},
		{99.9, 10, 9},
		{100, 180, 180},
		{0, 180, 0},
		{-5, 180, 0},
		{150, 180, 180},
		{50, 0, 0},
	}

	for _, tt := range tests {
		if got := PercentToPosition(tt.percent, tt.duration); got != tt.want {
			t.Errorf("PercentToPosition(%v, %d) = %d, want %d", tt.percent, tt.duration, got, tt.want)
		}
	}
}

func TestPositionToPercent(t *testing.T) {
	if got := PositionToPercent(45, 180); got != 25 {
		t.Errorf("PositionToPercent(45, 180) = %v, want 25", got)
	}
	if got := PositionToPercent(10, 0); got != 0 {
		t.Errorf("PositionToPercent(10, 0) = %v, want 0", got)
	}
	if got := PositionToPercent(10, 180); math.Abs(got-5.5556) > 0.001 {
		t.Errorf("PositionToPercent(10, 180) = %v", got)
	}
}

func TestPercentPositionRoundTrip(t *testing.T) {
	// Converting a position to percent and back loses at most one second
	// and never moves forward.
	for d := 1; d <= 600; d++ {
		for pos := 0; pos <= d; pos++ {
			back := PercentToPosition(PositionToPercent(pos, d), d)
			if diff := pos - back; diff < 0 || diff > 1 {
				t.Fatalf("position %d of %d came back as %d", pos, d, back)
			}
		}
	}
}

func TestSeekWithoutTrack(t *testing.T) {
	var p ProgressEstimator

	_, err := p.SeekByPercent(50)
	var pe *PreconditionError
	if !errors.As(err, &pe) || !errors.Is(err, ErrNoTrack) {
		t.Fatalf("SeekByPercent() error = %v, want PreconditionError(ErrNoTrack)", err)
	}
	if pe.Property != PropProgress {
		t.Errorf("Property = %q", pe.Property)
	}

	if _, err := p.SeekByPosition(10); !errors.Is(err, ErrNoTrack) {
		t.Errorf("SeekByPosition() error = %v, want ErrNoTrack", err)
	}
}

func TestSeekByPositionBeyondDuration(t *testing.T) {
	var p ProgressEstimator
	p.Load(120, 0)

	if _, err := p.SeekByPosition(121); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("SeekByPosition(121) error = %v, want ErrInvalidValue", err)
	}
	got, err := p.SeekByPosition(120)
	if err != nil || got != 120 {
		t.Errorf("SeekByPosition(120) = %d, %v", got, err)
	}
}

func TestSeekedUpdatesPosition(t *testing.T) {
	var p ProgressEstimator
	p.Load(200, 10)
	p.Seeked(150)
	if p.Position() != 150 || p.Percent() != 75 {
		t.Errorf("after Seeked: %d (%v%%)", p.Position(), p.Percent())
	}
}
