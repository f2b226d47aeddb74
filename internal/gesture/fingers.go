package gesture

import (
	"math/bits"
	"strings"

	"github.com/ayusman/mudra/internal/detector"
)

// FingerSet is the set of extended fingers of one hand.
type FingerSet uint8

// Fingers of a hand.
const (
	Thumb FingerSet = 1 << iota
	Index
	Middle
	Ring
	Pinky

	NoFingers  FingerSet = 0
	AllFingers           = Thumb | Index | Middle | Ring | Pinky
)

var fingerNames = []struct {
	finger FingerSet
	name   string
}{
	{Thumb, "Thumb"},
	{Index, "Index"},
	{Middle, "Middle"},
	{Ring, "Ring"},
	{Pinky, "Pinky"},
}

// Has reports whether every finger in f is extended.
func (s FingerSet) Has(f FingerSet) bool {
	return s&f == f
}

// Count returns the number of extended fingers.
func (s FingerSet) Count() int {
	return bits.OnesCount8(uint8(s))
}

func (s FingerSet) String() string {
	if s == NoFingers {
		return "none"
	}
	var names []string
	for _, fn := range fingerNames {
		if s.Has(fn.finger) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "+")
}

// fingerJoints pairs each long finger with its tip and PIP landmarks.
var fingerJoints = []struct {
	finger   FingerSet
	tip, pip int
}{
	{Index, detector.IndexTip, detector.IndexPIP},
	{Middle, detector.MiddleTip, detector.MiddlePIP},
	{Ring, detector.RingTip, detector.RingPIP},
	{Pinky, detector.PinkyTip, detector.PinkyPIP},
}

const (
	fingerExtendRatio  = 1.05
	thumbExtendRatio   = 1.1
	thumbIndexMinDist2 = 0.005
)

// Fingers classifies which fingers of h are extended. A long finger is
// extended when its tip is farther from the wrist than its PIP joint. The
// thumb must also clear the index knuckle, otherwise a thumb folded across
// the palm would count. A nil hand has no fingers.
func Fingers(h *detector.HandLandmarks) FingerSet {
	if h == nil {
		return NoFingers
	}

	p := &h.Points
	wrist := p[detector.Wrist]

	var s FingerSet
	for _, j := range fingerJoints {
		if detector.DistSq(p[j.tip], wrist) > detector.DistSq(p[j.pip], wrist)*fingerExtendRatio {
			s |= j.finger
		}
	}

	tip := p[detector.ThumbTip]
	if detector.DistSq(tip, wrist) > detector.DistSq(p[detector.ThumbIP], wrist)*thumbExtendRatio &&
		detector.DistSq(tip, p[detector.IndexMCP]) > thumbIndexMinDist2 {
		s |= Thumb
	}

	return s
}
