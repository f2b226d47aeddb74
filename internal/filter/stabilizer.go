package filter

import "time"

// Config holds the tuning of a Stabilizer.
type Config struct {
	ProcessNoise     float64
	MeasurementNoise float64

	BaseAlpha float64
	SpeedGain float64
	MinAlpha  float64
	MaxAlpha  float64

	// FallbackFPS gives the time step of the first Sample after a reset.
	FallbackFPS float64
}

// DefaultConfig returns the default stabilizer tuning.
func DefaultConfig() Config {
	return Config{
		ProcessNoise:     1e-4,
		MeasurementNoise: 1e-2,
		BaseAlpha:        0.05,
		SpeedGain:        0.1,
		MinAlpha:         0.01,
		MaxAlpha:         0.8,
		FallbackFPS:      30,
	}
}

// Stabilizer runs a Kalman estimate through an adaptive Smoother. Use one
// per tracked point; it is not safe for concurrent use.
type Stabilizer struct {
	cfg      Config
	kalman   *Kalman
	smoother *Smoother
	last     time.Time
}

// NewStabilizer creates a Stabilizer at the origin.
func NewStabilizer(cfg Config) *Stabilizer {
	def := DefaultConfig()
	if cfg.ProcessNoise <= 0 {
		cfg.ProcessNoise = def.ProcessNoise
	}
	if cfg.MeasurementNoise <= 0 {
		cfg.MeasurementNoise = def.MeasurementNoise
	}
	if cfg.BaseAlpha == 0 && cfg.SpeedGain == 0 {
		cfg.BaseAlpha, cfg.SpeedGain = def.BaseAlpha, def.SpeedGain
	}
	if cfg.MaxAlpha <= 0 || cfg.MaxAlpha > 1 {
		cfg.MaxAlpha = def.MaxAlpha
	}
	if cfg.MinAlpha <= 0 || cfg.MinAlpha > cfg.MaxAlpha {
		cfg.MinAlpha = def.MinAlpha
	}
	if cfg.FallbackFPS <= 0 {
		cfg.FallbackFPS = def.FallbackFPS
	}

	return &Stabilizer{
		cfg:      cfg,
		kalman:   NewKalman(cfg.ProcessNoise, cfg.MeasurementNoise),
		smoother: NewSmoother(cfg.BaseAlpha, cfg.SpeedGain, cfg.MinAlpha, cfg.MaxAlpha),
	}
}

// Process filters one measurement taken dt seconds after the previous one.
func (s *Stabilizer) Process(x, y, dt float64) (float64, float64) {
	s.kalman.Predict()
	kx, ky := s.kalman.Update(x, y)
	return s.smoother.Smooth(kx, ky, dt)
}

// Reset re-seeds both stages at (x, y) and forgets the last sample time.
func (s *Stabilizer) Reset(x, y float64) {
	s.kalman.Reset(x, y)
	s.smoother.Reset(x, y)
	s.last = time.Time{}
}

// Sample filters a measurement taken at now, deriving dt from the previous
// sample. The first sample after a reset assumes one frame at FallbackFPS.
func (s *Stabilizer) Sample(x, y float64, now time.Time) (float64, float64) {
	dt := 1 / s.cfg.FallbackFPS
	if !s.last.IsZero() {
		dt = now.Sub(s.last).Seconds()
	}
	s.last = now
	return s.Process(x, y, dt)
}

// Alpha returns the smoothing coefficient of the last step.
func (s *Stabilizer) Alpha() float64 {
	return s.smoother.Alpha()
}
