package gesture

import (
	"math"
	"time"
)

type swipeSample struct {
	at   time.Time
	x, y float64
}

// SwipeDetector recognizes fast straight palm movements from a bounded
// history of palm positions in pixels.
type SwipeDetector struct {
	cfg       Config
	history   []swipeSample // ring buffer
	head      int           // index of the oldest sample
	size      int
	lastSwipe time.Time
}

// NewSwipeDetector creates a SwipeDetector with cfg's history capacity and
// swipe thresholds.
func NewSwipeDetector(cfg Config) *SwipeDetector {
	cfg = cfg.withDefaults()
	return &SwipeDetector{
		cfg:     cfg,
		history: make([]swipeSample, cfg.HistorySize),
	}
}

// Add records a palm position, evicting the oldest sample when full.
func (d *SwipeDetector) Add(at time.Time, x, y float64) {
	s := swipeSample{at: at, x: x, y: y}
	if d.size < len(d.history) {
		d.history[(d.head+d.size)%len(d.history)] = s
		d.size++
		return
	}
	d.history[d.head] = s
	d.head = (d.head + 1) % len(d.history)
}

// Reset clears the position history. The cooldown is kept.
func (d *SwipeDetector) Reset() {
	d.head = 0
	d.size = 0
}

// Len returns the number of samples in the history.
func (d *SwipeDetector) Len() int {
	return d.size
}

func (d *SwipeDetector) oldest() swipeSample {
	return d.history[d.head]
}

func (d *SwipeDetector) newest() swipeSample {
	return d.history[(d.head+d.size-1)%len(d.history)]
}

// Check compares the oldest and newest samples and reports the swipe
// direction if the movement qualifies. A confirmed swipe starts the cooldown.
func (d *SwipeDetector) Check(now time.Time) (Direction, bool) {
	if d.size < 3 {
		return DirectionNone, false
	}
	if !d.lastSwipe.IsZero() && now.Sub(d.lastSwipe) < d.cfg.SwipeCooldown {
		return DirectionNone, false
	}

	first, last := d.oldest(), d.newest()

	elapsed := last.at.Sub(first.at)
	if elapsed <= d.cfg.SwipeMinDuration || elapsed > d.cfg.SwipeMaxDuration {
		return DirectionNone, false
	}

	dx := last.x - first.x
	dy := last.y - first.y
	if math.Hypot(dx, dy) <= d.cfg.SwipeMinDistance {
		return DirectionNone, false
	}

	var dir Direction
	ax, ay := math.Abs(dx), math.Abs(dy)
	if ax > ay {
		if ax/(ay+1) < d.cfg.SwipeAxisRatio {
			return DirectionNone, false
		}
		dir = DirectionLeft
		if dx > 0 {
			dir = DirectionRight
		}
	} else {
		if ay/(ax+1) < d.cfg.SwipeAxisRatio {
			return DirectionNone, false
		}
		dir = DirectionUp
		if dy > 0 {
			dir = DirectionDown
		}
	}

	d.lastSwipe = now
	return dir, true
}
