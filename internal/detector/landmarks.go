// Package detector provides hand detection interfaces and types for gesture recognition.
package detector

import "math"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// PalmCenter is the landmark used as a stable proxy for the palm position.
const PalmCenter = MiddleMCP

// Handedness labels reported by the landmark source.
const (
	LeftHand  = "Left"
	RightHand = "Right"
)

// Landmark is a tracked hand point. X and Y are normalized to the frame
// ([0,1] nominally), Z is relative depth. PX and PY are the same point in
// pixels for the frame size the landmarks were produced at.
type Landmark struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	PX int     `json:"px"`
	PY int     `json:"py"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Landmark `json:"points"`
	Handedness string                 `json:"handedness"` // "Left" or "Right"
	Score      float64                `json:"score"`
}

// DistSq returns the squared distance between two landmarks in the
// normalized image plane. Depth is ignored.
func DistSq(a, b Landmark) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// distance3D calculates the Euclidean distance between two landmarks including depth.
func distance3D(a, b Landmark) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Scale returns the planar distance from the wrist to the middle finger MCP,
// a hand-size reference that is stable across poses.
func (h *HandLandmarks) Scale() float64 {
	if h == nil {
		return 0
	}
	return math.Sqrt(DistSq(h.Points[Wrist], h.Points[MiddleMCP]))
}

// WithPixels fills PX and PY for every point from the normalized
// coordinates and the given frame size.
func (h *HandLandmarks) WithPixels(width, height int) {
	for i := range h.Points {
		h.Points[i].PX = int(h.Points[i].X * float64(width))
		h.Points[i].PY = int(h.Points[i].Y * float64(height))
	}
}

// Normalize normalizes the hand landmarks relative to wrist position and hand size.
// The normalized landmarks have the wrist at origin (0,0,0) and are scaled
// so that the distance from wrist to middle finger MCP is 1.0.
// Pixel coordinates are not carried over.
func (h *HandLandmarks) Normalize() *HandLandmarks {
	if h == nil {
		return nil
	}

	normalized := &HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	wrist := h.Points[Wrist]
	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i] = Landmark{
			X: h.Points[i].X - wrist.X,
			Y: h.Points[i].Y - wrist.Y,
			Z: h.Points[i].Z - wrist.Z,
		}
	}

	scale := distance3D(Landmark{}, normalized.Points[MiddleMCP])

	// Avoid division by zero
	if scale < 1e-10 {
		return normalized
	}

	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i].X /= scale
		normalized.Points[i].Y /= scale
		normalized.Points[i].Z /= scale
	}

	return normalized
}

// Split picks at most one hand per label, keeping the highest-scoring one
// when the source reports duplicates. Hands with an unknown label are ignored.
func Split(hands []HandLandmarks) (left, right *HandLandmarks) {
	for i := range hands {
		h := &hands[i]
		switch h.Handedness {
		case LeftHand:
			if left == nil || h.Score > left.Score {
				left = h
			}
		case RightHand:
			if right == nil || h.Score > right.Score {
				right = h
			}
		}
	}
	return left, right
}
