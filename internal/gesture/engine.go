package gesture

import (
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Engine is the dual-hand gesture state machine. The left hand selects a
// mode, which is committed only after it has been seen for DebounceFrames
// consecutive frames; the right hand then performs an action under the
// grammar of the committed mode.
//
// Engine is not safe for concurrent use. One goroutine owns it and calls
// Update once per frame.
type Engine struct {
	cfg   Config
	clock Clock

	mode          Mode
	pending       Mode
	pendingFrames int

	swipe *SwipeDetector
	push  *PushDetector
}

// NewEngine creates an Engine starting in ModeNeutral. Non-positive
// thresholds in cfg fall back to DefaultConfig values.
func NewEngine(cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:   cfg,
		clock: time.Now,
		swipe: NewSwipeDetector(cfg),
		push:  NewPushDetector(cfg.PushFrames),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Mode returns the committed mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Reset returns the engine to ModeNeutral and clears all transient state,
// including the swipe cooldown.
func (e *Engine) Reset() {
	e.mode = ModeNeutral
	e.pending = ModeNeutral
	e.pendingFrames = 0
	e.swipe = NewSwipeDetector(e.cfg)
	e.push.Reset()
}

// Update consumes one frame. Either hand may be nil when it is not tracked.
func (e *Engine) Update(left, right *detector.HandLandmarks) Result {
	now := e.clock()

	e.commit(DetectMode(left, e.mode, e.cfg))

	if right != nil {
		palm := right.Points[detector.PalmCenter]
		e.swipe.Add(now, float64(palm.PX), float64(palm.PY))
	} else {
		e.swipe.Reset()
		e.push.Reset()
	}

	if e.mode == ModeNeutral {
		e.push.Reset()
		return Result{Mode: ModeNeutral, Action: ActionIdle}
	}

	action, dir := e.detectAction(right, now)
	return Result{Mode: e.mode, Action: action, Direction: dir}
}

// commit applies the debounce rule to a mode candidate.
func (e *Engine) commit(candidate Mode) {
	if candidate == e.mode {
		e.pendingFrames = 0
		return
	}

	if candidate == e.pending && e.pendingFrames > 0 {
		e.pendingFrames++
	} else {
		e.pending = candidate
		e.pendingFrames = 1
	}

	if e.pendingFrames >= e.cfg.DebounceFrames {
		e.mode = candidate
		e.pendingFrames = 0
	}
}

// detectAction applies the grammar of the committed mode to the right hand.
func (e *Engine) detectAction(right *detector.HandLandmarks, now time.Time) (Action, Direction) {
	if right == nil {
		return ActionIdle, DirectionNone
	}

	fingers := Fingers(right)
	if e.mode != ModeSystem || fingers != AllFingers {
		e.push.Reset()
	}

	if e.mode == ModeArmed {
		switch fingers {
		case NoFingers:
			return ActionTap, DirectionNone
		case Index:
			return ActionCursor, DirectionNone
		}
	}

	if fingers == NoFingers {
		return ActionCancel, DirectionNone
	}

	switch e.mode {
	case ModeClick:
		if e.cfg.PinchDistSq(right) < e.cfg.ActionPinchThreshold {
			return ActionTap, DirectionNone
		}
	case ModeDrag:
		if e.cfg.PinchDistSq(right) < e.cfg.ActionPinchThreshold {
			return ActionDrag, DirectionNone
		}
	case ModeScroll:
		return ActionScroll, DirectionNone
	case ModeSystem:
		switch fingers {
		case AllFingers:
			if e.push.Observe() {
				return ActionPush, DirectionNone
			}
		case Index | Middle:
			if dir, ok := e.swipe.Check(now); ok {
				return ActionFlick, dir
			}
		}
	case ModeNeutral, ModeArmed:
	}

	return ActionIdle, DirectionNone
}
