package gesture

import "github.com/ayusman/mudra/internal/detector"

// Mode is the operating mode selected by the left hand.
type Mode int

const (
	ModeNeutral Mode = iota
	ModeArmed
	ModeClick
	ModeScroll
	ModeSystem
	ModeDrag
)

func (m Mode) String() string {
	switch m {
	case ModeNeutral:
		return "neutral"
	case ModeArmed:
		return "armed"
	case ModeClick:
		return "click"
	case ModeScroll:
		return "scroll"
	case ModeSystem:
		return "system"
	case ModeDrag:
		return "drag"
	default:
		return "unknown"
	}
}

// DetectMode returns the mode candidate for the left hand. Poses that match
// no rule keep the current mode.
func DetectMode(left *detector.HandLandmarks, current Mode, cfg Config) Mode {
	if left == nil {
		return ModeNeutral
	}

	switch Fingers(left) {
	case NoFingers:
		return ModeNeutral
	case AllFingers:
		return ModeArmed
	case Thumb:
		return ModeClick
	case Index | Middle:
		return ModeScroll
	case Index | Middle | Ring:
		return ModeSystem
	}

	if cfg.PinchDistSq(left) < cfg.ModePinchThreshold {
		return ModeDrag
	}
	return current
}
