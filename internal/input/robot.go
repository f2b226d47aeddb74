package input

import (
	"fmt"
	"sync"

	"github.com/go-vgo/robotgo"
	"github.com/rs/zerolog"
)

// RobotActuator drives the real pointer and keyboard through robotgo.
type RobotActuator struct {
	mu     sync.Mutex
	log    zerolog.Logger
	held   map[Button]bool
	closed bool
}

// NewRobotActuator creates an actuator for the current desktop session.
func NewRobotActuator(log zerolog.Logger) *RobotActuator {
	return &RobotActuator{
		log:  log.With().Str("component", "input").Logger(),
		held: make(map[Button]bool),
	}
}

// Move moves the pointer relative to its current position.
func (r *RobotActuator) Move(dx, dy int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if dx == 0 && dy == 0 {
		return nil
	}
	robotgo.MoveRelative(dx, dy)
	return nil
}

// Scroll turns the vertical wheel.
func (r *RobotActuator) Scroll(dy int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if dy == 0 {
		return nil
	}
	robotgo.Scroll(0, dy)
	return nil
}

// Press holds b down.
func (r *RobotActuator) Press(b Button) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if err := robotgo.Toggle(b.String()); err != nil {
		return fmt.Errorf("press %s: %w", b, err)
	}
	r.held[b] = true
	return nil
}

// Release lets b go.
func (r *RobotActuator) Release(b Button) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	return r.release(b)
}

func (r *RobotActuator) release(b Button) error {
	if err := robotgo.Toggle(b.String(), "up"); err != nil {
		return fmt.Errorf("release %s: %w", b, err)
	}
	delete(r.held, b)
	return nil
}

// TapKey presses and releases key.
func (r *RobotActuator) TapKey(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if err := robotgo.KeyTap(key); err != nil {
		return fmt.Errorf("tap key %q: %w", key, err)
	}
	r.log.Debug().Str("key", key).Msg("Key tapped")
	return nil
}

// Close releases any buttons still held. Further calls return ErrClosed.
func (r *RobotActuator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	for b := range r.held {
		if err := r.release(b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
