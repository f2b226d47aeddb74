package input

import (
	"sync"

	"github.com/rs/zerolog"
)

// EventKind identifies a recorded actuator call.
type EventKind string

const (
	EventMove    EventKind = "move"
	EventScroll  EventKind = "scroll"
	EventPress   EventKind = "press"
	EventRelease EventKind = "release"
	EventKey     EventKind = "key"
)

// Event is one recorded actuator call.
type Event struct {
	Kind   EventKind
	DX, DY int
	Button Button
	Key    string
}

// Recorder is an Actuator that only logs and records what it is asked to do.
// It backs dry runs and tests.
type Recorder struct {
	mu     sync.Mutex
	log    zerolog.Logger
	events []Event
	limit  int
	closed bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder(log zerolog.Logger) *Recorder {
	return &Recorder{log: log.With().Str("component", "input").Str("actuator", "dry-run").Logger()}
}

func (r *Recorder) record(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.events = append(r.events, e)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append(r.events[:0], r.events[len(r.events)-r.limit:]...)
	}
	r.log.Debug().
		Str("kind", string(e.Kind)).
		Int("dx", e.DX).
		Int("dy", e.DY).
		Str("button", e.Button.String()).
		Str("key", e.Key).
		Msg("Input event")
	return nil
}

// Move records a pointer move.
func (r *Recorder) Move(dx, dy int) error {
	return r.record(Event{Kind: EventMove, DX: dx, DY: dy})
}

// Scroll records a wheel turn.
func (r *Recorder) Scroll(dy int) error {
	return r.record(Event{Kind: EventScroll, DY: dy})
}

// Press records a button press.
func (r *Recorder) Press(b Button) error {
	return r.record(Event{Kind: EventPress, Button: b})
}

// Release records a button release.
func (r *Recorder) Release(b Button) error {
	return r.record(Event{Kind: EventRelease, Button: b})
}

// TapKey records a key tap.
func (r *Recorder) TapKey(key string) error {
	return r.record(Event{Kind: EventKey, Key: key})
}

// Close marks the recorder closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// SetLimit keeps only the newest n events. Zero keeps everything.
func (r *Recorder) SetLimit(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limit = n
}

// Reset discards the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
