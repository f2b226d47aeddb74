package app

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/input"
	"github.com/ayusman/mudra/internal/plugin"
)

// Triggers name the one-shot actions that can be rebound.
const (
	TriggerFlickUp    = "flick_up"
	TriggerFlickDown  = "flick_down"
	TriggerFlickLeft  = "flick_left"
	TriggerFlickRight = "flick_right"
	TriggerPush       = "push"
)

// Binding is what a trigger does: tap Key, or run Plugin with Action and
// Params. A binding with a plugin ignores Key.
type Binding struct {
	Key    string         `mapstructure:"key" json:"key,omitempty"`
	Plugin string         `mapstructure:"plugin" json:"plugin,omitempty"`
	Action string         `mapstructure:"action" json:"action,omitempty"`
	Params map[string]any `mapstructure:"params" json:"params,omitempty"`
}

// DefaultBindings maps flicks to the arrow keys and push to space.
func DefaultBindings() map[string]Binding {
	return map[string]Binding{
		TriggerFlickUp:    {Key: "up"},
		TriggerFlickDown:  {Key: "down"},
		TriggerFlickLeft:  {Key: "left"},
		TriggerFlickRight: {Key: "right"},
		TriggerPush:       {Key: "space"},
	}
}

// DispatchConfig tunes how actions become input.
type DispatchConfig struct {
	SensitivityX      float64
	SensitivityY      float64
	ScrollSensitivity float64
	// ScrollDeadzone is the smallest scaled y change that scrolls.
	ScrollDeadzone float64
	// TapHold is how long a tap keeps the button down.
	TapHold  time.Duration
	Bindings map[string]Binding
}

// DefaultDispatchConfig returns the stock tuning.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		SensitivityX:      4.0,
		SensitivityY:      4.0,
		ScrollSensitivity: 1.0,
		ScrollDeadzone:    2.0,
		TapHold:           50 * time.Millisecond,
		Bindings:          DefaultBindings(),
	}
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	def := DefaultDispatchConfig()
	if c.SensitivityX <= 0 {
		c.SensitivityX = def.SensitivityX
	}
	if c.SensitivityY <= 0 {
		c.SensitivityY = def.SensitivityY
	}
	if c.ScrollSensitivity <= 0 {
		c.ScrollSensitivity = def.ScrollSensitivity
	}
	if c.ScrollDeadzone <= 0 {
		c.ScrollDeadzone = def.ScrollDeadzone
	}
	if c.TapHold < 0 {
		c.TapHold = 0
	}
	if c.Bindings == nil {
		c.Bindings = def.Bindings
	}
	return c
}

// PluginRunner runs a named plugin.
type PluginRunner interface {
	Run(ctx context.Context, name string, req *plugin.Request) error
}

// pluginRunner runs plugins found by a Manager through an Executor.
type pluginRunner struct {
	manager  *plugin.Manager
	executor *plugin.Executor
}

// NewPluginRunner returns a PluginRunner backed by manager and executor.
func NewPluginRunner(manager *plugin.Manager, executor *plugin.Executor) PluginRunner {
	return &pluginRunner{manager: manager, executor: executor}
}

func (r *pluginRunner) Run(ctx context.Context, name string, req *plugin.Request) error {
	p, err := r.manager.Get(name)
	if err != nil {
		return err
	}
	if !p.Manifest.Supports(req.Action) {
		return errors.New("plugin " + name + " does not support action " + req.Action)
	}
	resp, err := r.executor.Execute(ctx, p, req)
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}

// Dispatcher turns engine results into pointer and keyboard input. One-shot
// actions fire on the frame the action changes; cursor, drag and scroll act
// every frame.
type Dispatcher struct {
	cfg     DispatchConfig
	act     input.Actuator
	stab    *filter.Stabilizer
	plugins PluginRunner
	log     zerolog.Logger
	sleep   func(time.Duration)

	last     gesture.Action
	dragging bool
	prevX    float64
	prevY    float64
	havePrev bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. plugins may be nil when no binding
// names a plugin.
func NewDispatcher(cfg DispatchConfig, act input.Actuator, stab *filter.Stabilizer, plugins PluginRunner, log zerolog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:     cfg.withDefaults(),
		act:     act,
		stab:    stab,
		plugins: plugins,
		log:     log.With().Str("component", "dispatch").Logger(),
		sleep:   time.Sleep,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dragging reports whether the left button is held for a drag.
func (d *Dispatcher) Dragging() bool {
	return d.dragging
}

// Dispatch acts on one engine result. right is the right hand of the same
// frame, nil when absent. Actuator failures are logged and the first one
// is returned; dispatch state advances regardless.
func (d *Dispatcher) Dispatch(res gesture.Result, right *detector.HandLandmarks, now time.Time) error {
	var errs []error
	track := func(err error) {
		if err != nil {
			d.log.Warn().Err(err).Str("action", res.Action.String()).Msg("Input failed")
			errs = append(errs, err)
		}
	}

	if res.Action != d.last {
		d.havePrev = false
		track(d.enter(res, right))
		d.last = res.Action
	}

	switch res.Action {
	case gesture.ActionCursor, gesture.ActionDrag:
		if right == nil {
			d.havePrev = false
			break
		}
		tip := right.Points[detector.IndexTip]
		sx, sy := d.stab.Sample(tip.X, tip.Y, now)
		if d.havePrev {
			dx := (sx - d.prevX) * 1000 * d.cfg.SensitivityX
			dy := (sy - d.prevY) * 1000 * d.cfg.SensitivityY
			ix, iy := int(math.Round(dx)), int(math.Round(dy))
			if ix != 0 || iy != 0 {
				track(d.act.Move(ix, iy))
			}
		}
		d.prevX, d.prevY, d.havePrev = sx, sy, true

	case gesture.ActionScroll:
		if right == nil {
			d.havePrev = false
			break
		}
		tip := right.Points[detector.IndexTip]
		if d.havePrev {
			dy := (tip.Y - d.prevY) * 1000
			if math.Abs(dy) > d.cfg.ScrollDeadzone {
				if n := int(math.Round(dy * d.cfg.ScrollSensitivity)); n != 0 {
					track(d.act.Scroll(n))
				}
			}
		}
		d.prevX, d.prevY, d.havePrev = tip.X, tip.Y, true

	default:
		d.havePrev = false
	}

	return errors.Join(errs...)
}

// enter runs the one-shot behaviour for a newly entered action.
func (d *Dispatcher) enter(res gesture.Result, right *detector.HandLandmarks) error {
	var errs []error

	if d.last == gesture.ActionDrag && res.Action != gesture.ActionDrag && d.dragging {
		d.dragging = false
		errs = append(errs, d.act.Release(input.ButtonLeft))
		d.log.Debug().Msg("Drag released")
	}

	switch res.Action {
	case gesture.ActionFlick:
		errs = append(errs, d.trigger(flickTrigger(res.Direction), res))

	case gesture.ActionPush:
		errs = append(errs, d.trigger(TriggerPush, res))

	case gesture.ActionDrag:
		if !d.dragging {
			if err := d.act.Press(input.ButtonLeft); err != nil {
				errs = append(errs, err)
			} else {
				d.dragging = true
				d.log.Debug().Msg("Drag pressed")
			}
		}
		d.reseed(right)

	case gesture.ActionCursor:
		d.reseed(right)

	case gesture.ActionTap:
		if err := d.act.Press(input.ButtonLeft); err != nil {
			errs = append(errs, err)
			break
		}
		if d.cfg.TapHold > 0 {
			d.sleep(d.cfg.TapHold)
		}
		errs = append(errs, d.act.Release(input.ButtonLeft))
	}

	return errors.Join(errs...)
}

// reseed restarts smoothing at the right index tip.
func (d *Dispatcher) reseed(right *detector.HandLandmarks) {
	if right == nil {
		return
	}
	tip := right.Points[detector.IndexTip]
	d.stab.Reset(tip.X, tip.Y)
}

func flickTrigger(dir gesture.Direction) string {
	switch dir {
	case gesture.DirectionUp:
		return TriggerFlickUp
	case gesture.DirectionDown:
		return TriggerFlickDown
	case gesture.DirectionLeft:
		return TriggerFlickLeft
	case gesture.DirectionRight:
		return TriggerFlickRight
	default:
		return ""
	}
}

// trigger fires the binding for name. Key bindings tap synchronously;
// plugin bindings run in the background.
func (d *Dispatcher) trigger(name string, res gesture.Result) error {
	b, ok := d.cfg.Bindings[name]
	if !ok || name == "" {
		d.log.Debug().Str("trigger", name).Msg("No binding")
		return nil
	}

	d.log.Info().
		Str("trigger", name).
		Str("key", b.Key).
		Str("plugin", b.Plugin).
		Msg("Trigger fired")

	if b.Plugin == "" {
		if b.Key == "" {
			return nil
		}
		return d.act.TapKey(b.Key)
	}

	if d.plugins == nil {
		return errors.New("no plugin runner for " + b.Plugin)
	}

	req := &plugin.Request{
		Action:  b.Action,
		Trigger: name,
		Mode:    res.Mode.String(),
	}
	if len(b.Params) > 0 {
		params, err := json.Marshal(b.Params)
		if err != nil {
			return err
		}
		req.Params = params
	}

	ctx := d.ctx
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.plugins.Run(ctx, b.Plugin, req); err != nil {
			d.log.Warn().Err(err).Str("plugin", b.Plugin).Str("trigger", name).Msg("Plugin run failed")
		}
	}()
	return nil
}

// Wait blocks until background plugin runs finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close releases a held drag button, cancels running plugins and waits
// for them to exit. The dispatcher can be used again afterwards.
func (d *Dispatcher) Close() error {
	var err error
	if d.dragging {
		d.dragging = false
		err = d.act.Release(input.ButtonLeft)
	}
	d.last = gesture.ActionIdle
	d.havePrev = false

	d.cancel()
	d.wg.Wait()
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return err
}
