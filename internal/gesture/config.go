// Package gesture interprets per-frame hand landmarks as an operating mode
// chosen by the left hand and an action performed by the right hand.
package gesture

import (
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Config holds the thresholds of the gesture engine.
type Config struct {
	// DebounceFrames is how many consecutive frames a new mode candidate
	// must be seen before it is committed.
	DebounceFrames int

	// SwipeCooldown is the minimum time between two confirmed swipes.
	SwipeCooldown time.Duration

	// SwipeMinDistance is the palm displacement, in pixels, a swipe must exceed.
	SwipeMinDistance float64

	// SwipeAxisRatio is the minimum ratio of the dominant axis to the other one.
	SwipeAxisRatio float64

	// SwipeMinDuration and SwipeMaxDuration bound the time spanned by the
	// history window: (min, max].
	SwipeMinDuration time.Duration
	SwipeMaxDuration time.Duration

	// HistorySize is the capacity of the palm position history.
	HistorySize int

	// PushFrames is the open-palm frame count that must be exceeded before
	// Push is emitted.
	PushFrames int

	// ModePinchThreshold is the squared index/thumb tip distance under which
	// the left hand selects Drag mode.
	ModePinchThreshold float64

	// ActionPinchThreshold is the squared index/thumb tip distance under
	// which the right hand taps or drags.
	ActionPinchThreshold float64

	// HandScaleReference, when positive, rescales pinch distances to a hand
	// whose wrist to middle knuckle distance equals this value.
	HandScaleReference float64
}

// DefaultConfig returns the default engine thresholds.
func DefaultConfig() Config {
	return Config{
		DebounceFrames:       5,
		SwipeCooldown:        500 * time.Millisecond,
		SwipeMinDistance:     40,
		SwipeAxisRatio:       1.3,
		SwipeMinDuration:     50 * time.Millisecond,
		SwipeMaxDuration:     500 * time.Millisecond,
		HistorySize:          10,
		PushFrames:           4,
		ModePinchThreshold:   0.002,
		ActionPinchThreshold: 0.003,
	}
}

// withDefaults replaces non-positive fields with their default values.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DebounceFrames <= 0 {
		c.DebounceFrames = def.DebounceFrames
	}
	if c.SwipeCooldown <= 0 {
		c.SwipeCooldown = def.SwipeCooldown
	}
	if c.SwipeMinDistance <= 0 {
		c.SwipeMinDistance = def.SwipeMinDistance
	}
	if c.SwipeAxisRatio <= 0 {
		c.SwipeAxisRatio = def.SwipeAxisRatio
	}
	if c.SwipeMinDuration <= 0 {
		c.SwipeMinDuration = def.SwipeMinDuration
	}
	if c.SwipeMaxDuration <= 0 {
		c.SwipeMaxDuration = def.SwipeMaxDuration
	}
	if c.HistorySize < 3 {
		c.HistorySize = def.HistorySize
	}
	if c.PushFrames <= 0 {
		c.PushFrames = def.PushFrames
	}
	if c.ModePinchThreshold <= 0 {
		c.ModePinchThreshold = def.ModePinchThreshold
	}
	if c.ActionPinchThreshold <= 0 {
		c.ActionPinchThreshold = def.ActionPinchThreshold
	}
	return c
}

// PinchDistSq returns the squared distance between the index and thumb tips.
// With a HandScaleReference set, the distance is expressed as if the hand
// had the reference size.
func (c Config) PinchDistSq(h *detector.HandLandmarks) float64 {
	d := detector.DistSq(h.Points[detector.IndexTip], h.Points[detector.ThumbTip])
	if c.HandScaleReference <= 0 {
		return d
	}
	scale := h.Scale()
	if scale <= 0 {
		return d
	}
	k := c.HandScaleReference / scale
	return d * k * k
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for swipe timing.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}
