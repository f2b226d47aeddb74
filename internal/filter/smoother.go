package filter

import "math"

// Smoother is an exponential moving average whose coefficient grows with
// the speed of the input: slow movement is smoothed heavily, fast movement
// passes through with little lag.
type Smoother struct {
	baseAlpha float64
	speedGain float64
	minAlpha  float64
	maxAlpha  float64

	prevX, prevY float64
	alpha        float64
}

// NewSmoother creates a Smoother with alpha = clamp(base + speed*gain, min, max).
func NewSmoother(baseAlpha, speedGain, minAlpha, maxAlpha float64) *Smoother {
	return &Smoother{
		baseAlpha: baseAlpha,
		speedGain: speedGain,
		minAlpha:  minAlpha,
		maxAlpha:  maxAlpha,
		alpha:     0.5,
	}
}

// Reset sets the previous output to (x, y).
func (s *Smoother) Reset(x, y float64) {
	s.prevX = x
	s.prevY = y
}

// Smooth blends (x, y) into the previous output. The speed is measured
// against the previous output over dt seconds and is zero when dt is not
// positive.
func (s *Smoother) Smooth(x, y, dt float64) (float64, float64) {
	speed := 0.0
	if dt > 0 {
		speed = math.Hypot(x-s.prevX, y-s.prevY) / dt
	}
	if math.IsNaN(speed) {
		speed = 0
	}

	s.alpha = math.Max(s.minAlpha, math.Min(s.maxAlpha, s.baseAlpha+speed*s.speedGain))

	s.prevX = s.alpha*x + (1-s.alpha)*s.prevX
	s.prevY = s.alpha*y + (1-s.alpha)*s.prevY
	return s.prevX, s.prevY
}

// Alpha returns the coefficient used by the last Smooth call.
func (s *Smoother) Alpha() float64 {
	return s.alpha
}
