package gesture

// PushDetector counts consecutive open-palm frames.
type PushDetector struct {
	threshold int
	count     int
}

// NewPushDetector creates a PushDetector that fires once more than
// threshold consecutive frames have been observed.
func NewPushDetector(threshold int) *PushDetector {
	return &PushDetector{threshold: threshold}
}

// Observe records one open-palm frame and reports whether the pose has been
// held long enough. It keeps reporting true while the pose holds.
func (p *PushDetector) Observe() bool {
	p.count++
	return p.count > p.threshold
}

// Reset clears the counter.
func (p *PushDetector) Reset() {
	p.count = 0
}

// Count returns the current number of consecutive frames.
func (p *PushDetector) Count() int {
	return p.count
}
