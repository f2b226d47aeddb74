// Package config loads mudra settings from YAML and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

// EnvPrefix prefixes environment overrides, e.g. MUDRA_CAMERA_FPS.
const EnvPrefix = "MUDRA"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full application configuration.
type Config struct {
	Camera   CameraConfig   `mapstructure:"camera"`
	Detector DetectorConfig `mapstructure:"detector"`
	Gesture  GestureConfig  `mapstructure:"gesture"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Control  ControlConfig  `mapstructure:"control"`
	Plugins  PluginsConfig  `mapstructure:"plugins"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`

	file string
}

// CameraConfig selects the capture device and the motion-driven frame rates.
type CameraConfig struct {
	Device          int           `mapstructure:"device"`
	Width           int           `mapstructure:"width"`
	Height          int           `mapstructure:"height"`
	Mirror          bool          `mapstructure:"mirror"`
	IdleFPS         int           `mapstructure:"idle_fps"`
	ActiveFPS       int           `mapstructure:"active_fps"`
	MotionThreshold float64       `mapstructure:"motion_threshold"`
	IdleAfter       time.Duration `mapstructure:"idle_after"`
}

// DetectorConfig tunes the MediaPipe landmark service.
type DetectorConfig struct {
	MaxHands        int     `mapstructure:"max_hands"`
	MinConfidence   float64 `mapstructure:"min_confidence"`
	MinTrackingConf float64 `mapstructure:"min_tracking_confidence"`
	Script          string  `mapstructure:"script"`
}

// GestureConfig tunes mode debounce, swipes, push and pinches.
type GestureConfig struct {
	DebounceFrames       int           `mapstructure:"debounce_frames"`
	SwipeCooldown        time.Duration `mapstructure:"swipe_cooldown"`
	SwipeMinDistance     float64       `mapstructure:"swipe_min_distance"`
	SwipeAxisRatio       float64       `mapstructure:"swipe_axis_ratio"`
	SwipeMinDuration     time.Duration `mapstructure:"swipe_min_duration"`
	SwipeMaxDuration     time.Duration `mapstructure:"swipe_max_duration"`
	HistorySize          int           `mapstructure:"history_size"`
	PushFrames           int           `mapstructure:"push_frames"`
	ModePinchThreshold   float64       `mapstructure:"mode_pinch_threshold"`
	ActionPinchThreshold float64       `mapstructure:"action_pinch_threshold"`
	HandScaleReference   float64       `mapstructure:"hand_scale_reference"`
}

// FilterConfig tunes the Kalman and adaptive smoothing stages.
type FilterConfig struct {
	ProcessNoise     float64 `mapstructure:"process_noise"`
	MeasurementNoise float64 `mapstructure:"measurement_noise"`
	BaseAlpha        float64 `mapstructure:"base_alpha"`
	SpeedGain        float64 `mapstructure:"speed_gain"`
	MinAlpha         float64 `mapstructure:"min_alpha"`
	MaxAlpha         float64 `mapstructure:"max_alpha"`
	FallbackFPS      float64 `mapstructure:"fallback_fps"`
}

// ControlConfig maps actions to pointer and keyboard input.
type ControlConfig struct {
	Enabled           bool                   `mapstructure:"enabled"`
	SensitivityX      float64                `mapstructure:"sensitivity_x"`
	SensitivityY      float64                `mapstructure:"sensitivity_y"`
	ScrollSensitivity float64                `mapstructure:"scroll_sensitivity"`
	ScrollDeadzone    float64                `mapstructure:"scroll_deadzone"`
	TapHold           time.Duration          `mapstructure:"tap_hold"`
	Bindings          map[string]app.Binding `mapstructure:"bindings"`
}

// PluginsConfig locates external plugins.
type PluginsConfig struct {
	Dir     string        `mapstructure:"dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig configures the dashboard.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

// StoreConfig locates the event log database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Dir returns the per-user configuration directory, ~/.mudra.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mudra"
	}
	return filepath.Join(home, ".mudra")
}

// DefaultFile returns the default configuration file path.
func DefaultFile() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the stock configuration.
func Default() *Config {
	cam := capture.DefaultConfig()
	det := detector.DefaultConfig()
	g := gesture.DefaultConfig()
	f := filter.DefaultConfig()
	d := app.DefaultDispatchConfig()

	return &Config{
		Camera: CameraConfig{
			Device:          cam.DeviceID,
			Width:           cam.Width,
			Height:          cam.Height,
			Mirror:          cam.Mirror,
			IdleFPS:         app.DefaultIdleFPS,
			ActiveFPS:       app.DefaultActiveFPS,
			MotionThreshold: 1.0,
			IdleAfter:       capture.DefaultIdleAfter,
		},
		Detector: DetectorConfig{
			MaxHands:        det.MaxHands,
			MinConfidence:   det.MinConfidence,
			MinTrackingConf: det.MinTrackingConf,
		},
		Gesture: GestureConfig{
			DebounceFrames:       g.DebounceFrames,
			SwipeCooldown:        g.SwipeCooldown,
			SwipeMinDistance:     g.SwipeMinDistance,
			SwipeAxisRatio:       g.SwipeAxisRatio,
			SwipeMinDuration:     g.SwipeMinDuration,
			SwipeMaxDuration:     g.SwipeMaxDuration,
			HistorySize:          g.HistorySize,
			PushFrames:           g.PushFrames,
			ModePinchThreshold:   g.ModePinchThreshold,
			ActionPinchThreshold: g.ActionPinchThreshold,
			HandScaleReference:   g.HandScaleReference,
		},
		Filter: FilterConfig{
			ProcessNoise:     f.ProcessNoise,
			MeasurementNoise: f.MeasurementNoise,
			BaseAlpha:        f.BaseAlpha,
			SpeedGain:        f.SpeedGain,
			MinAlpha:         f.MinAlpha,
			MaxAlpha:         f.MaxAlpha,
			FallbackFPS:      f.FallbackFPS,
		},
		Control: ControlConfig{
			Enabled:           true,
			SensitivityX:      d.SensitivityX,
			SensitivityY:      d.SensitivityY,
			ScrollSensitivity: d.ScrollSensitivity,
			ScrollDeadzone:    d.ScrollDeadzone,
			TapHold:           d.TapHold,
			Bindings:          d.Bindings,
		},
		Plugins: PluginsConfig{
			Dir:     filepath.Join(Dir(), "plugins"),
			Timeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8420",
		},
		Store: StoreConfig{
			Path: filepath.Join(Dir(), "mudra.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads the configuration. An empty path searches ~/.mudra and the
// working directory for config.yaml and falls back to defaults when none
// exists; an explicit path must exist. Environment variables prefixed with
// MUDRA_ override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	for section, values := range Default().Settings() {
		for key, value := range values.(map[string]any) {
			// Bindings stay unset so a configured map replaces the
			// defaults instead of merging into them.
			if section == "control" && key == "bindings" {
				continue
			}
			v.SetDefault(section+"."+key, value)
		}
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Control.Bindings == nil {
		cfg.Control.Bindings = app.DefaultBindings()
	}
	cfg.file = v.ConfigFileUsed()
	cfg.Plugins.Dir = expandHome(cfg.Plugins.Dir)
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Server.StaticDir = expandHome(cfg.Server.StaticDir)
	cfg.Detector.Script = expandHome(cfg.Detector.Script)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// File returns the file the configuration was read from, empty when it
// came from defaults and the environment only.
func (c *Config) File() string {
	return c.file
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Camera.Width > 0 && c.Camera.Height > 0, "camera.width and camera.height must be positive")
	check(c.Camera.IdleFPS > 0, "camera.idle_fps must be positive")
	check(c.Camera.ActiveFPS >= c.Camera.IdleFPS, "camera.active_fps must not be below camera.idle_fps")
	check(c.Camera.MotionThreshold > 0, "camera.motion_threshold must be positive")
	check(c.Camera.IdleAfter > 0, "camera.idle_after must be positive")

	check(c.Detector.MaxHands >= 2, "detector.max_hands must be at least 2")
	check(inUnit(c.Detector.MinConfidence), "detector.min_confidence must be in (0, 1]")
	check(inUnit(c.Detector.MinTrackingConf), "detector.min_tracking_confidence must be in (0, 1]")

	g := c.Gesture
	check(g.DebounceFrames > 0, "gesture.debounce_frames must be positive")
	check(g.SwipeCooldown > 0, "gesture.swipe_cooldown must be positive")
	check(g.SwipeMinDistance > 0, "gesture.swipe_min_distance must be positive")
	check(g.SwipeAxisRatio >= 1, "gesture.swipe_axis_ratio must be at least 1")
	check(g.SwipeMinDuration > 0 && g.SwipeMaxDuration > g.SwipeMinDuration,
		"gesture.swipe_min_duration must be positive and below gesture.swipe_max_duration")
	check(g.HistorySize >= 3, "gesture.history_size must be at least 3")
	check(g.PushFrames > 0, "gesture.push_frames must be positive")
	check(g.ModePinchThreshold > 0, "gesture.mode_pinch_threshold must be positive")
	check(g.ActionPinchThreshold > 0, "gesture.action_pinch_threshold must be positive")
	check(g.HandScaleReference >= 0, "gesture.hand_scale_reference must not be negative")

	f := c.Filter
	check(f.ProcessNoise > 0 && f.MeasurementNoise > 0, "filter noise values must be positive")
	check(f.MinAlpha > 0 && f.MinAlpha <= f.MaxAlpha && f.MaxAlpha <= 1, "filter alphas must satisfy 0 < min_alpha <= max_alpha <= 1")
	check(f.BaseAlpha >= 0 && f.SpeedGain >= 0, "filter.base_alpha and filter.speed_gain must not be negative")
	check(f.FallbackFPS > 0, "filter.fallback_fps must be positive")

	ctl := c.Control
	check(ctl.SensitivityX > 0 && ctl.SensitivityY > 0, "control sensitivities must be positive")
	check(ctl.ScrollSensitivity > 0, "control.scroll_sensitivity must be positive")
	check(ctl.ScrollDeadzone > 0, "control.scroll_deadzone must be positive")
	check(ctl.TapHold >= 0, "control.tap_hold must not be negative")
	for name, b := range ctl.Bindings {
		check(b.Key != "" || b.Plugin != "", "control.bindings."+name+" needs a key or a plugin")
	}

	check(c.Plugins.Timeout > 0, "plugins.timeout must be positive")
	check(c.Store.Path != "", "store.path must be set")

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

func inUnit(v float64) bool {
	return v > 0 && v <= 1
}

// Settings returns the configuration as nested maps keyed like the YAML
// file. Durations are rendered as strings.
func (c *Config) Settings() map[string]any {
	bindings := make(map[string]any, len(c.Control.Bindings))
	for name, b := range c.Control.Bindings {
		m := map[string]any{}
		if b.Key != "" {
			m["key"] = b.Key
		}
		if b.Plugin != "" {
			m["plugin"] = b.Plugin
		}
		if b.Action != "" {
			m["action"] = b.Action
		}
		if len(b.Params) > 0 {
			m["params"] = b.Params
		}
		bindings[name] = m
	}

	return map[string]any{
		"camera": map[string]any{
			"device":           c.Camera.Device,
			"width":            c.Camera.Width,
			"height":           c.Camera.Height,
			"mirror":           c.Camera.Mirror,
			"idle_fps":         c.Camera.IdleFPS,
			"active_fps":       c.Camera.ActiveFPS,
			"motion_threshold": c.Camera.MotionThreshold,
			"idle_after":       c.Camera.IdleAfter.String(),
		},
		"detector": map[string]any{
			"max_hands":               c.Detector.MaxHands,
			"min_confidence":          c.Detector.MinConfidence,
			"min_tracking_confidence": c.Detector.MinTrackingConf,
			"script":                  c.Detector.Script,
		},
		"gesture": map[string]any{
			"debounce_frames":        c.Gesture.DebounceFrames,
			"swipe_cooldown":         c.Gesture.SwipeCooldown.String(),
			"swipe_min_distance":     c.Gesture.SwipeMinDistance,
			"swipe_axis_ratio":       c.Gesture.SwipeAxisRatio,
			"swipe_min_duration":     c.Gesture.SwipeMinDuration.String(),
			"swipe_max_duration":     c.Gesture.SwipeMaxDuration.String(),
			"history_size":           c.Gesture.HistorySize,
			"push_frames":            c.Gesture.PushFrames,
			"mode_pinch_threshold":   c.Gesture.ModePinchThreshold,
			"action_pinch_threshold": c.Gesture.ActionPinchThreshold,
			"hand_scale_reference":   c.Gesture.HandScaleReference,
		},
		"filter": map[string]any{
			"process_noise":     c.Filter.ProcessNoise,
			"measurement_noise": c.Filter.MeasurementNoise,
			"base_alpha":        c.Filter.BaseAlpha,
			"speed_gain":        c.Filter.SpeedGain,
			"min_alpha":         c.Filter.MinAlpha,
			"max_alpha":         c.Filter.MaxAlpha,
			"fallback_fps":      c.Filter.FallbackFPS,
		},
		"control": map[string]any{
			"enabled":            c.Control.Enabled,
			"sensitivity_x":      c.Control.SensitivityX,
			"sensitivity_y":      c.Control.SensitivityY,
			"scroll_sensitivity": c.Control.ScrollSensitivity,
			"scroll_deadzone":    c.Control.ScrollDeadzone,
			"tap_hold":           c.Control.TapHold.String(),
			"bindings":           bindings,
		},
		"plugins": map[string]any{
			"dir":     c.Plugins.Dir,
			"timeout": c.Plugins.Timeout.String(),
		},
		"server": map[string]any{
			"addr":       c.Server.Addr,
			"static_dir": c.Server.StaticDir,
		},
		"store": map[string]any{
			"path": c.Store.Path,
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"pretty": c.Log.Pretty,
		},
	}
}

// JSON renders Settings as JSON. It is stored with each session.
func (c *Config) JSON() string {
	b, err := json.Marshal(c.Settings())
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Write saves the configuration as YAML at path. An existing file is only
// replaced when overwrite is set.
func (c *Config) Write(path string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for section, values := range c.Settings() {
		v.Set(section, values)
	}

	if overwrite {
		return v.WriteConfigAs(path)
	}
	return v.SafeWriteConfigAs(path)
}

// Capture returns the camera settings.
func (c *Config) Capture() capture.Config {
	return capture.Config{
		DeviceID: c.Camera.Device,
		Width:    c.Camera.Width,
		Height:   c.Camera.Height,
		FPS:      c.Camera.IdleFPS,
		Mirror:   c.Camera.Mirror,
	}
}

// DetectorSettings returns the landmark detector settings for the camera
// frame size.
func (c *Config) DetectorSettings() detector.Config {
	return detector.Config{
		MaxHands:        c.Detector.MaxHands,
		MinConfidence:   c.Detector.MinConfidence,
		MinTrackingConf: c.Detector.MinTrackingConf,
		Width:           c.Camera.Width,
		Height:          c.Camera.Height,
		ScriptPath:      c.Detector.Script,
	}
}

// Engine returns the gesture engine settings.
func (c *Config) Engine() gesture.Config {
	g := c.Gesture
	return gesture.Config{
		DebounceFrames:       g.DebounceFrames,
		SwipeCooldown:        g.SwipeCooldown,
		SwipeMinDistance:     g.SwipeMinDistance,
		SwipeAxisRatio:       g.SwipeAxisRatio,
		SwipeMinDuration:     g.SwipeMinDuration,
		SwipeMaxDuration:     g.SwipeMaxDuration,
		HistorySize:          g.HistorySize,
		PushFrames:           g.PushFrames,
		ModePinchThreshold:   g.ModePinchThreshold,
		ActionPinchThreshold: g.ActionPinchThreshold,
		HandScaleReference:   g.HandScaleReference,
	}
}

// Stabilizer returns the motion filter settings.
func (c *Config) Stabilizer() filter.Config {
	f := c.Filter
	return filter.Config{
		ProcessNoise:     f.ProcessNoise,
		MeasurementNoise: f.MeasurementNoise,
		BaseAlpha:        f.BaseAlpha,
		SpeedGain:        f.SpeedGain,
		MinAlpha:         f.MinAlpha,
		MaxAlpha:         f.MaxAlpha,
		FallbackFPS:      f.FallbackFPS,
	}
}

// Dispatch returns the input dispatch settings.
func (c *Config) Dispatch() app.DispatchConfig {
	ctl := c.Control
	return app.DispatchConfig{
		SensitivityX:      ctl.SensitivityX,
		SensitivityY:      ctl.SensitivityY,
		ScrollSensitivity: ctl.ScrollSensitivity,
		ScrollDeadzone:    ctl.ScrollDeadzone,
		TapHold:           ctl.TapHold,
		Bindings:          ctl.Bindings,
	}
}

// App assembles the application configuration. st may be nil.
func (c *Config) App(log zerolog.Logger, st *store.Store) app.Config {
	return app.Config{
		Camera:          c.Capture(),
		Detector:        c.DetectorSettings(),
		MotionThreshold: c.Camera.MotionThreshold,
		IdleAfter:       c.Camera.IdleAfter,
		IdleFPS:         c.Camera.IdleFPS,
		ActiveFPS:       c.Camera.ActiveFPS,
		Gesture:         c.Engine(),
		Filter:          c.Stabilizer(),
		Dispatch:        c.Dispatch(),
		Enabled:         c.Control.Enabled,
		Store:           st,
		SessionConfig:   c.JSON(),
		PluginDir:       c.Plugins.Dir,
		PluginTimeout:   c.Plugins.Timeout,
		Log:             log,
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
