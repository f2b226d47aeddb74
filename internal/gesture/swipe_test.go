package gesture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// feed adds n evenly spaced samples moving from (x0,y0) to (x1,y1) over span.
func feed(d *SwipeDetector, start time.Time, span time.Duration, n int, x0, y0, x1, y1 float64) time.Time {
	var at time.Time
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		at = start.Add(time.Duration(f * float64(span)))
		d.Add(at, x0+(x1-x0)*f, y0+(y1-y0)*f)
	}
	return at
}

func TestSwipeDetector_Check(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		span    time.Duration
		dx, dy  float64
		wantDir Direction
		wantOK  bool
	}{
		{"right", 5, 200 * time.Millisecond, 192, 0, DirectionRight, true},
		{"left", 5, 200 * time.Millisecond, -100, 10, DirectionLeft, true},
		{"down", 4, 150 * time.Millisecond, 5, 80, DirectionDown, true},
		{"up", 4, 150 * time.Millisecond, 0, -80, DirectionUp, true},
		{"at max duration", 5, 500 * time.Millisecond, 100, 0, DirectionRight, true},
		{"too few samples", 2, 200 * time.Millisecond, 192, 0, DirectionNone, false},
		{"too slow", 5, 600 * time.Millisecond, 192, 0, DirectionNone, false},
		{"too fast", 5, 40 * time.Millisecond, 192, 0, DirectionNone, false},
		{"too short", 5, 200 * time.Millisecond, 30, 0, DirectionNone, false},
		{"diagonal", 5, 200 * time.Millisecond, 60, 50, DirectionNone, false},
		{"exact minimum distance", 5, 200 * time.Millisecond, 40, 0, DirectionNone, false},
		{"axis ratio at threshold", 5, 200 * time.Millisecond, 65, 49, DirectionRight, true},
		{"axis ratio below threshold", 5, 200 * time.Millisecond, 65, 50, DirectionNone, false},
		{"vertical ratio at threshold", 5, 200 * time.Millisecond, 49, 65, DirectionDown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewSwipeDetector(DefaultConfig())
			end := feed(d, t0, tt.span, tt.n, 100, 200, 100+tt.dx, 200+tt.dy)

			dir, ok := d.Check(end)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantDir, dir)
		})
	}
}

func TestSwipeDetector_Cooldown(t *testing.T) {
	d := NewSwipeDetector(DefaultConfig())
	end := feed(d, t0, 200*time.Millisecond, 5, 100, 200, 300, 200)

	_, ok := d.Check(end)
	assert.True(t, ok)

	// Same qualifying history, still inside the cooldown.
	_, ok = d.Check(end.Add(100 * time.Millisecond))
	assert.False(t, ok, "second swipe inside cooldown")

	d.Reset()
	end = feed(d, end.Add(200*time.Millisecond), 200*time.Millisecond, 5, 300, 200, 100, 200)
	_, ok = d.Check(end.Add(-150 * time.Millisecond))
	assert.False(t, ok, "reset must not clear the cooldown")

	dir, ok := d.Check(t0.Add(200*time.Millisecond + 500*time.Millisecond))
	assert.True(t, ok, "cooldown elapsed")
	assert.Equal(t, DirectionLeft, dir)
}

func TestSwipeDetector_Eviction(t *testing.T) {
	d := NewSwipeDetector(DefaultConfig())
	for i := 0; i < 15; i++ {
		d.Add(t0.Add(time.Duration(i)*10*time.Millisecond), float64(i), 0)
	}

	assert.Equal(t, 10, d.Len())
	assert.Equal(t, 5.0, d.oldest().x)
	assert.Equal(t, 14.0, d.newest().x)

	d.Reset()
	assert.Zero(t, d.Len())
}
