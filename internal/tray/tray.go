// Package tray provides the system tray menu for mudra.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"
)

// Tray is the system tray menu: an enable toggle, the current mode and
// action, a dashboard link and quit.
type Tray struct {
	onToggle    func(enabled bool)
	onDashboard func()
	onQuit      func()
	enabled     bool
	state       string
	log         zerolog.Logger
	mu          sync.RWMutex

	menuToggle *systray.MenuItem
	menuState  *systray.MenuItem
}

// New creates a Tray showing the given enabled state.
func New(enabled bool, log zerolog.Logger) *Tray {
	return &Tray{
		enabled: enabled,
		state:   statusLine("neutral", "idle", ""),
		log:     log.With().Str("component", "tray").Logger(),
	}
}

// OnToggle sets the callback run when the user flips the enable toggle.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnDashboard sets the callback run by "Open Dashboard...".
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback run by "Quit" before the tray exits.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run shows the tray. It must be called from the main goroutine and
// blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("mudra")
	systray.SetTooltip("mudra hand gesture control")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle gesture control")
	systray.AddSeparator()
	t.menuState = systray.AddMenuItem(t.state, "Current mode and action")
	t.menuState.Disable()
	toggle := t.menuToggle
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit mudra")

	go func() {
		for {
			select {
			case <-toggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
	t.log.Debug().Msg("Tray ready")
}

func (t *Tray) onExit() {
	t.log.Debug().Msg("Tray exited")
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
	systray.Quit()
}

// SetEnabled reflects an enable change made elsewhere, e.g. the dashboard.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled == enabled {
		return
	}
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetState updates the mode and action line. Repeated states are ignored,
// so it is cheap to call for every frame.
func (t *Tray) SetState(mode, action, direction string) {
	line := statusLine(mode, action, direction)

	t.mu.Lock()
	defer t.mu.Unlock()
	if line == t.state {
		return
	}
	t.state = line
	if t.menuState != nil {
		t.menuState.SetTitle(line)
	}
}

// State returns the current mode and action line.
func (t *Tray) State() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsEnabled returns the toggle state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func statusLine(mode, action, direction string) string {
	if direction != "" {
		action += " " + direction
	}
	return "Mode: " + mode + " · " + action
}
