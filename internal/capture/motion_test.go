package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func TestNewMotionDetector(t *testing.T) {
	tests := []struct {
		name          string
		threshold     float64
		idleAfter     time.Duration
		wantThreshold float64
		wantIdleAfter time.Duration
	}{
		{"explicit", 5.0, time.Second, 5.0, time.Second},
		{"low threshold", 0.5, 3 * time.Second, 0.5, 3 * time.Second},
		{"defaults", 0, 0, 1.0, DefaultIdleAfter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := NewMotionDetector(tt.threshold, tt.idleAfter)
			defer md.Close()

			assert.Equal(t, tt.wantThreshold, md.threshold)
			assert.Equal(t, tt.wantIdleAfter, md.idleAfter)
			assert.False(t, md.initialized)
			assert.False(t, md.Active())
		})
	}
}

func TestMotionDetector_IdleTimeout(t *testing.T) {
	md := NewMotionDetector(1.0, 2*time.Second)
	defer md.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	active, changed := md.update(false, start)
	assert.False(t, active)
	assert.False(t, changed)

	active, changed = md.update(true, start)
	assert.True(t, active)
	assert.True(t, changed)

	active, changed = md.update(false, start.Add(time.Second))
	assert.True(t, active, "still inside the idle timeout")
	assert.False(t, changed)

	active, changed = md.update(false, start.Add(2500*time.Millisecond))
	assert.False(t, active)
	assert.True(t, changed)
}

func TestMotionDetector_NoMotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0, 0)
	defer md.Close()

	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	detected, changePercent := md.Detect(&frame1)
	assert.False(t, detected, "first frame should not detect motion")
	assert.Zero(t, changePercent)

	detected, changePercent = md.Detect(&frame2)
	assert.False(t, detected, "identical frames, changePercent = %f", changePercent)
}

func TestMotionDetector_WithMotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0, 0)
	defer md.Close()

	blackFrame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer blackFrame.Close()
	whiteFrame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer whiteFrame.Close()
	whiteFrame.SetTo(gocv.NewScalar(255, 255, 255, 0))

	now := time.Now()
	active, _ := md.Observe(&blackFrame, now)
	assert.False(t, active)

	active, changed := md.Observe(&whiteFrame, now.Add(33*time.Millisecond))
	assert.True(t, active)
	assert.True(t, changed)
}

func TestMotionDetector_Reset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0, 0)
	defer md.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	md.Detect(&frame)
	assert.True(t, md.initialized)

	md.Reset()
	assert.False(t, md.initialized)
	assert.True(t, md.prevGray.Empty())
	assert.False(t, md.Active())
}

func TestMotionDetector_Close_Multiple(t *testing.T) {
	md := NewMotionDetector(1.0, 0)

	md.Close()
	md.Close()
}

func TestMotionDetector_EmptyFrame(t *testing.T) {
	md := NewMotionDetector(1.0, 0)
	defer md.Close()

	detected, changePercent := md.Detect(nil)
	assert.False(t, detected)
	assert.Zero(t, changePercent)
}
