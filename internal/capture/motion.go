package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Motion detection constants.
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21).
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection.
	DiffThreshold = 25
	// DefaultIdleAfter is how long the scene must be still before the
	// detector reports idle.
	DefaultIdleAfter = 2 * time.Second
)

// MotionDetector decides whether the scene is active by frame differencing.
// The pipeline lowers the camera frame rate while the scene is idle.
type MotionDetector struct {
	threshold   float64
	idleAfter   time.Duration
	prevGray    gocv.Mat
	initialized bool
	active      bool
	lastMotion  time.Time
	mu          sync.Mutex
}

// NewMotionDetector creates a MotionDetector. threshold is the percentage of
// pixels that must change between frames to count as motion (1.0 means 1%).
// The scene turns idle after idleAfter without motion.
func NewMotionDetector(threshold float64, idleAfter time.Duration) *MotionDetector {
	if threshold <= 0 {
		threshold = 1.0
	}
	if idleAfter <= 0 {
		idleAfter = DefaultIdleAfter
	}
	return &MotionDetector{
		threshold: threshold,
		idleAfter: idleAfter,
		prevGray:  gocv.NewMat(),
	}
}

// Detect compares frame with the previous one and returns whether motion was
// detected and the percentage of pixels that changed. The first frame only
// sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detect(frame)
}

func (m *MotionDetector) detect(frame *gocv.Mat) (bool, float64) {
	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.initialized {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changePercent := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&m.prevGray)

	return changePercent > m.threshold, changePercent
}

// Observe runs Detect on frame and updates the active/idle state at now.
// It returns the current state and whether it changed with this frame.
func (m *MotionDetector) Observe(frame *gocv.Mat, now time.Time) (active, changed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	moved, _ := m.detect(frame)
	return m.update(moved, now)
}

func (m *MotionDetector) update(moved bool, now time.Time) (active, changed bool) {
	was := m.active
	switch {
	case moved:
		m.lastMotion = now
		m.active = true
	case m.active && now.Sub(m.lastMotion) > m.idleAfter:
		m.active = false
	}
	return m.active, m.active != was
}

// Active reports whether motion was seen within the idle timeout.
func (m *MotionDetector) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Reset clears the baseline frame and returns to idle.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
	m.active = false
}

// Close releases resources used by the motion detector.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prevGray.Close()
	m.prevGray = gocv.NewMat()
	m.initialized = false
}
