package detector

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// Frame size used for the pixel coordinates of the preset poses.
const (
	MockFrameWidth  = 640
	MockFrameHeight = 480
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.hands == nil {
		return nil, nil
	}
	out := make([]HandLandmarks, len(m.hands))
	copy(out, m.hands)
	return out, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Finger extension flags for PoseLandmarks.
const (
	PoseThumb = 1 << iota
	PoseIndex
	PoseMiddle
	PoseRing
	PosePinky

	PoseAll = PoseThumb | PoseIndex | PoseMiddle | PoseRing | PosePinky
)

// fingerColumn places one finger's MCP/PIP/DIP/tip column. The palm faces
// the camera with the fingers pointing up (y decreases upward).
type fingerColumn struct {
	mcp, pip, dip, tip int
	x                  float64
}

var fingerColumns = []struct {
	flag int
	col  fingerColumn
}{
	{PoseIndex, fingerColumn{IndexMCP, IndexPIP, IndexDIP, IndexTip, 0.56}},
	{PoseMiddle, fingerColumn{MiddleMCP, MiddlePIP, MiddleDIP, MiddleTip, 0.50}},
	{PoseRing, fingerColumn{RingMCP, RingPIP, RingDIP, RingTip, 0.44}},
	{PosePinky, fingerColumn{PinkyMCP, PinkyPIP, PinkyDIP, PinkyTip, 0.38}},
}

// PoseLandmarks builds a hand with the wrist at (0.5, 0.8) and the fingers
// named by flags extended. Curled fingertips rest against the palm and a
// folded thumb crosses towards the index knuckle.
func PoseLandmarks(handedness string, flags int) HandLandmarks {
	h := HandLandmarks{
		Handedness: handedness,
		Score:      0.95,
	}

	h.Points[Wrist] = Landmark{X: 0.5, Y: 0.8}
	h.Points[ThumbCMC] = Landmark{X: 0.55, Y: 0.77}
	h.Points[ThumbMCP] = Landmark{X: 0.60, Y: 0.74}
	h.Points[ThumbIP] = Landmark{X: 0.66, Y: 0.70}
	if flags&PoseThumb != 0 {
		h.Points[ThumbTip] = Landmark{X: 0.74, Y: 0.64}
	} else {
		h.Points[ThumbTip] = Landmark{X: 0.54, Y: 0.70}
	}

	for _, fc := range fingerColumns {
		c := fc.col
		h.Points[c.mcp] = Landmark{X: c.x, Y: 0.65}
		h.Points[c.pip] = Landmark{X: c.x, Y: 0.55}
		if flags&fc.flag != 0 {
			h.Points[c.dip] = Landmark{X: c.x, Y: 0.47}
			h.Points[c.tip] = Landmark{X: c.x, Y: 0.40}
		} else {
			h.Points[c.dip] = Landmark{X: c.x, Y: 0.60}
			h.Points[c.tip] = Landmark{X: c.x, Y: 0.66}
		}
	}

	h.WithPixels(MockFrameWidth, MockFrameHeight)
	return h
}

// FistLandmarks returns a closed fist: no finger extended.
func FistLandmarks(handedness string) HandLandmarks {
	return PoseLandmarks(handedness, 0)
}

// OpenPalmLandmarks returns an open palm with all five fingers extended.
func OpenPalmLandmarks(handedness string) HandLandmarks {
	return PoseLandmarks(handedness, PoseAll)
}

// ThumbOnlyLandmarks returns a thumbs-up style pose: only the thumb extended.
func ThumbOnlyLandmarks(handedness string) HandLandmarks {
	return PoseLandmarks(handedness, PoseThumb)
}

// PointLandmarks returns a pointing pose: only the index finger extended.
func PointLandmarks(handedness string) HandLandmarks {
	return PoseLandmarks(handedness, PoseIndex)
}

// PeaceLandmarks returns index and middle fingers extended.
func PeaceLandmarks(handedness string) HandLandmarks {
	return PoseLandmarks(handedness, PoseIndex|PoseMiddle)
}

// ThreeFingerLandmarks returns index, middle and ring fingers extended.
func ThreeFingerLandmarks(handedness string) HandLandmarks {
	return PoseLandmarks(handedness, PoseIndex|PoseMiddle|PoseRing)
}

// PinchLandmarks returns an "OK" pose: middle, ring and pinky extended,
// index bent down to meet the thumb. gapSq is the squared normalized
// distance between the index and thumb tips.
func PinchLandmarks(handedness string, gapSq float64) HandLandmarks {
	h := PoseLandmarks(handedness, PoseThumb|PoseMiddle|PoseRing|PosePinky)

	h.Points[IndexDIP] = Landmark{X: 0.59, Y: 0.57}
	h.Points[IndexTip] = Landmark{X: 0.60, Y: 0.60}
	h.Points[ThumbTip] = Landmark{X: 0.60 + math.Sqrt(gapSq), Y: 0.60}

	h.WithPixels(MockFrameWidth, MockFrameHeight)
	return h
}

// Translated returns a copy of h moved by (dx, dy) in normalized units.
func Translated(h HandLandmarks, dx, dy float64) HandLandmarks {
	for i := range h.Points {
		h.Points[i].X += dx
		h.Points[i].Y += dy
	}
	h.WithPixels(MockFrameWidth, MockFrameHeight)
	return h
}

// AtPalm returns a copy of h moved so that its palm centre sits at (x, y).
func AtPalm(h HandLandmarks, x, y float64) HandLandmarks {
	p := h.Points[PalmCenter]
	return Translated(h, x-p.X, y-p.Y)
}
