// Package input injects pointer and keyboard events into the operating system.
package input

import "errors"

// ErrClosed is returned by an Actuator after Close.
var ErrClosed = errors.New("actuator closed")

// Button is a mouse button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	default:
		return "unknown"
	}
}

// Actuator performs operating system input on behalf of the dispatcher.
type Actuator interface {
	// Move moves the pointer by (dx, dy) pixels.
	Move(dx, dy int) error

	// Scroll turns the vertical wheel by dy units.
	Scroll(dy int) error

	// Press holds a mouse button down.
	Press(b Button) error

	// Release lets a held mouse button go.
	Release(b Button) error

	// TapKey presses and releases a named key ("left", "space", ...).
	TapKey(key string) error

	// Close releases any resources held by the actuator.
	Close() error
}
