// Package app wires the camera, landmark detector, gesture engine,
// stabilizer and input dispatcher into a running pipeline.
package app

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/input"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
)

// Frame rates the pipeline switches between on motion.
const (
	DefaultIdleFPS   = 5
	DefaultActiveFPS = 30
)

const settingEnabled = "enabled"

// Config holds the application settings.
type Config struct {
	Camera          capture.Config
	Detector        detector.Config
	MotionThreshold float64
	IdleAfter       time.Duration
	IdleFPS         int
	ActiveFPS       int

	Gesture  gesture.Config
	Filter   filter.Config
	Dispatch DispatchConfig

	// Enabled is the initial control state. A value persisted in Store
	// takes precedence.
	Enabled bool

	// Store receives sessions and transition events. Optional.
	Store *store.Store
	// SessionConfig is the effective configuration as JSON, kept with
	// each session.
	SessionConfig string

	PluginDir     string
	PluginTimeout time.Duration

	Log   zerolog.Logger
	Clock func() time.Time
}

// Snapshot is the observable state after one frame.
type Snapshot struct {
	At        time.Time               `json:"at"`
	Mode      string                  `json:"mode"`
	Action    string                  `json:"action"`
	Direction string                  `json:"direction,omitempty"`
	Enabled   bool                    `json:"enabled"`
	Dragging  bool                    `json:"dragging"`
	Left      *detector.HandLandmarks `json:"left,omitempty"`
	Right     *detector.HandLandmarks `json:"right,omitempty"`
}

// Status summarizes the application for the dashboard and tray.
type Status struct {
	Enabled   bool   `json:"enabled"`
	Running   bool   `json:"running"`
	Active    bool   `json:"active"`
	FPS       int    `json:"fps"`
	Mode      string `json:"mode"`
	Action    string `json:"action"`
	Direction string `json:"direction,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Frames    int64  `json:"frames"`
}

// Observer receives every published snapshot. It runs on the pipeline
// goroutine and must not block.
type Observer func(Snapshot)

// FrameObserver receives JPEG-encoded debug frames with the overlay drawn.
type FrameObserver func(jpeg []byte)

// Option customizes an App.
type Option func(*App)

// WithCamera replaces the camera built from Config.Camera.
func WithCamera(c capture.Camera) Option {
	return func(a *App) { a.camera = c }
}

// WithDetector replaces the MediaPipe detector.
func WithDetector(d detector.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithActuator replaces the robotgo actuator.
func WithActuator(act input.Actuator) Option {
	return func(a *App) { a.actuator = act }
}

// WithPluginRunner replaces the runner built from Config.PluginDir.
func WithPluginRunner(r PluginRunner) Option {
	return func(a *App) { a.runner = r }
}

// App runs the gesture pipeline.
type App struct {
	cfg   Config
	log   zerolog.Logger
	clock func() time.Time

	camera   capture.Camera
	motion   *capture.MotionDetector
	detector detector.Detector
	actuator input.Actuator

	pluginMgr *plugin.Manager
	runner    PluginRunner

	// procMu guards the per-frame state below.
	procMu     sync.Mutex
	engine     *gesture.Engine
	stabilizer *filter.Stabilizer
	dispatch   *Dispatcher
	session    *store.Session
	lastResult gesture.Result
	recorded   bool
	latest     Snapshot
	seq        uint64
	frames     int64

	// pubMu orders snapshot delivery; published is the last seq delivered.
	pubMu     sync.Mutex
	published uint64

	mu        sync.RWMutex
	enabled   bool
	fps       int
	stopCh    chan struct{}
	doneCh    chan struct{}
	observers map[int]Observer
	frameObs  map[int]FrameObserver
	nextObsID int
}

// New creates an App. Without WithDetector it uses MediaPipe, falling back
// to an empty mock detector when the service script is missing. Without
// WithActuator it drives the real desktop through robotgo.
func New(cfg Config, opts ...Option) *App {
	if cfg.IdleFPS <= 0 {
		cfg.IdleFPS = DefaultIdleFPS
	}
	if cfg.ActiveFPS <= 0 {
		cfg.ActiveFPS = DefaultActiveFPS
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	a := &App{
		cfg:       cfg,
		log:       cfg.Log.With().Str("component", "app").Logger(),
		clock:     cfg.Clock,
		enabled:   cfg.Enabled,
		fps:       cfg.IdleFPS,
		observers: make(map[int]Observer),
		frameObs:  make(map[int]FrameObserver),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(cfg.Camera)
	}
	a.motion = capture.NewMotionDetector(cfg.MotionThreshold, cfg.IdleAfter)

	if a.detector == nil {
		if mp, err := detector.NewMediaPipeDetector(cfg.Detector); err == nil {
			a.detector = mp
			a.log.Info().Msg("Using MediaPipe hand detection")
		} else {
			a.log.Warn().Err(err).Msg("MediaPipe not available, using mock detector")
			a.detector = detector.NewMockDetector()
		}
	}

	if a.actuator == nil {
		a.actuator = input.NewRobotActuator(cfg.Log)
	}

	if a.runner == nil && cfg.PluginDir != "" {
		a.pluginMgr = plugin.NewManager(cfg.PluginDir, cfg.Log)
		a.runner = NewPluginRunner(a.pluginMgr, plugin.NewExecutor(cfg.PluginTimeout))
	}

	a.engine = gesture.NewEngine(cfg.Gesture, gesture.WithClock(gesture.Clock(a.clock)))
	a.stabilizer = filter.NewStabilizer(cfg.Filter)
	a.dispatch = NewDispatcher(cfg.Dispatch, a.actuator, a.stabilizer, a.runner, cfg.Log)
	a.latest = Snapshot{Mode: gesture.ModeNeutral.String(), Action: gesture.ActionIdle.String()}

	if cfg.Store != nil {
		if v, err := cfg.Store.Settings().Get(settingEnabled); err == nil {
			if enabled, err := strconv.ParseBool(v); err == nil {
				a.enabled = enabled
			}
		}
	}
	a.latest.Enabled = a.enabled

	return a
}

// DiscoverPlugins scans the plugin directory.
func (a *App) DiscoverPlugins() error {
	if a.pluginMgr == nil {
		return nil
	}
	return a.pluginMgr.Discover()
}

// PluginManager returns the plugin manager, nil without a plugin directory.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// SetEnabled turns gesture control on or off. Turning it off releases any
// held button and returns the engine to neutral.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	a.mu.Unlock()

	if !changed {
		return
	}

	if !enabled {
		a.procMu.Lock()
		if err := a.dispatch.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to release input")
		}
		a.engine.Reset()
		a.recorded = false
		snap, seq := a.resetLatest()
		a.procMu.Unlock()
		a.publish(snap, seq)
	}

	if a.cfg.Store != nil {
		if err := a.cfg.Store.Settings().Set(settingEnabled, strconv.FormatBool(enabled)); err != nil {
			a.log.Warn().Err(err).Msg("Failed to persist enabled state")
		}
	}
	a.log.Info().Bool("enabled", enabled).Msg("Gesture control toggled")
}

// IsEnabled reports whether gesture control is on.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Running reports whether the pipeline goroutine is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// Latest returns the most recent snapshot.
func (a *App) Latest() Snapshot {
	a.procMu.Lock()
	defer a.procMu.Unlock()
	snap := a.latest
	snap.Enabled = a.IsEnabled()
	return snap
}

// Status returns a summary of the application state.
func (a *App) Status() Status {
	a.procMu.Lock()
	snap := a.latest
	frames := a.frames
	var sessionID string
	if a.session != nil {
		sessionID = a.session.ID
	}
	a.procMu.Unlock()

	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{
		Enabled:   a.enabled,
		Running:   a.stopCh != nil,
		Active:    a.motion.Active(),
		FPS:       a.fps,
		Mode:      snap.Mode,
		Action:    snap.Action,
		Direction: snap.Direction,
		SessionID: sessionID,
		Frames:    frames,
	}
}

// Subscribe registers fn for every snapshot and returns a function that
// removes it.
func (a *App) Subscribe(fn Observer) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextObsID
	a.nextObsID++
	a.observers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.observers, id)
	}
}

// SubscribeFrames registers fn for overlay frames. Frames are only encoded
// while at least one frame observer is registered.
func (a *App) SubscribeFrames(fn FrameObserver) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextObsID
	a.nextObsID++
	a.frameObs[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.frameObs, id)
	}
}

// setLatest stores snap as the newest snapshot and returns its sequence
// number. Callers hold procMu.
func (a *App) setLatest(snap Snapshot) (Snapshot, uint64) {
	a.seq++
	a.latest = snap
	return snap, a.seq
}

// resetLatest stores a neutral, idle snapshot. Callers hold procMu.
func (a *App) resetLatest() (Snapshot, uint64) {
	return a.setLatest(Snapshot{
		At:     a.clock(),
		Mode:   gesture.ModeNeutral.String(),
		Action: gesture.ActionIdle.String(),
	})
}

// publish delivers snap to the observers unless a newer snapshot has
// already been delivered.
func (a *App) publish(snap Snapshot, seq uint64) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	if seq <= a.published {
		return
	}
	a.published = seq

	a.mu.RLock()
	obs := make([]Observer, 0, len(a.observers))
	for _, fn := range a.observers {
		obs = append(obs, fn)
	}
	a.mu.RUnlock()

	for _, fn := range obs {
		fn(snap)
	}
}

func (a *App) frameObservers() []FrameObserver {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.frameObs) == 0 {
		return nil
	}
	obs := make([]FrameObserver, 0, len(a.frameObs))
	for _, fn := range a.frameObs {
		obs = append(obs, fn)
	}
	return obs
}

// Start opens the camera and launches the pipeline. Starting a running
// App is a no-op.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(a.cfg.IdleFPS)
	a.fps = a.cfg.IdleFPS
	a.motion.Reset()

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	a.log.Info().Int("fps", a.fps).Msg("Detection pipeline started")
	return nil
}

// Stop halts the pipeline, releases held input, closes the camera and
// ends the current session. The App can be started again.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh

	if err := a.camera.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Error closing camera")
	}

	a.procMu.Lock()
	if err := a.dispatch.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to release input")
	}
	a.engine.Reset()
	a.recorded = false
	snap, seq := a.resetLatest()
	snap.Enabled = a.IsEnabled()
	a.endSession()
	a.procMu.Unlock()
	a.publish(snap, seq)

	a.log.Info().Msg("Detection pipeline stopped")
}

// Close stops the pipeline and releases the detector, motion detector and
// actuator. The store belongs to the caller.
func (a *App) Close() error {
	a.Stop()

	a.procMu.Lock()
	if err := a.dispatch.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to release input")
	}
	a.endSession()
	a.procMu.Unlock()

	a.motion.Close()

	var firstErr error
	if err := a.detector.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Error closing detector")
		firstErr = err
	}
	if err := a.actuator.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
