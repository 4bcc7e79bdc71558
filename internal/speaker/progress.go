package speaker

import (
	"fmt"
	"math"
	"time"
)

// tickInterval is the local extrapolation step.
const tickInterval = time.Second

// Ticker delivers periodic ticks. *time.Ticker is adapted by realTicker;
// tests substitute a manually driven implementation.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the production TickerFactory.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ProgressEstimator tracks the playback position between device events.
//
// It is pure state: the owning speaker runs the ticker goroutine and calls
// Tick under its lock. Duration 0 means no track is loaded and progress is
// inactive.
type ProgressEstimator struct {
	duration int
	position int
	playing  bool
}

// Load replaces the track timing. Position is clamped to [0, duration].
func (p *ProgressEstimator) Load(duration, position int) {
	if duration < 0 {
		duration = 0
	}
	p.duration = duration
	p.position = clampPosition(position, duration)
}

// Reset clears the track timing.
func (p *ProgressEstimator) Reset() {
	p.duration = 0
	p.position = 0
}

// SetPlaying records the transport state.
func (p *ProgressEstimator) SetPlaying(playing bool) { p.playing = playing }

// Playing reports the last recorded transport state.
func (p *ProgressEstimator) Playing() bool { return p.playing }

// Active reports whether a ticker should be running.
func (p *ProgressEstimator) Active() bool { return p.playing && p.duration > 0 }

// Duration returns the track length in seconds.
func (p *ProgressEstimator) Duration() int { return p.duration }

// Position returns the estimated position in seconds.
func (p *ProgressEstimator) Position() int { return p.position }

// Percent returns the position as a percentage of the duration, or 0 when
// no track is loaded.
func (p *ProgressEstimator) Percent() float64 {
	return PositionToPercent(p.position, p.duration)
}

// Tick advances the position by one step and reports whether it moved.
// The position never passes the duration.
func (p *ProgressEstimator) Tick() bool {
	if !p.Active() || p.position >= p.duration {
		return false
	}
	p.position++
	return true
}

// SeekByPercent converts a percentage to an absolute seek target.
func (p *ProgressEstimator) SeekByPercent(percent float64) (int, error) {
	if p.duration == 0 {
		return 0, &PreconditionError{Property: PropProgress, Err: ErrNoTrack}
	}
	return PercentToPosition(percent, p.duration), nil
}

// SeekByPosition validates an absolute seek target.
func (p *ProgressEstimator) SeekByPosition(position int) (int, error) {
	if p.duration == 0 {
		return 0, &PreconditionError{Property: PropPosition, Err: ErrNoTrack}
	}
	if position > p.duration {
		return 0, fmt.Errorf("%w: position %d beyond duration %d", ErrInvalidValue, position, p.duration)
	}
	return position, nil
}

// Seeked records a position confirmed by a successful seek command.
func (p *ProgressEstimator) Seeked(position int) {
	p.position = clampPosition(position, p.duration)
}

// PercentToPosition converts a percentage of duration to whole seconds,
// truncating toward zero.
func PercentToPosition(percent float64, duration int) int {
	if duration <= 0 || percent <= 0 {
		return 0
	}
	pos := int(math.Floor(percent / 100 * float64(duration)))
	return clampPosition(pos, duration)
}

// PositionToPercent converts a position to a percentage of duration.
func PositionToPercent(position, duration int) float64 {
	if duration <= 0 {
		return 0
	}
	return float64(position) / float64(duration) * 100
}

func clampPosition(position, duration int) int {
	if position < 0 {
		return 0
	}
	if position > duration {
		return duration
	}
	return position
}
