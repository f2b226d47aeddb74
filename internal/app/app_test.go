package app

import (
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/input"
	"github.com/ayusman/mudra/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	app    *App
	clock  *testClock
	rec    *input.Recorder
	det    *detector.MockDetector
	runner *fakeRunner
}

func newHarness(t *testing.T, st *store.Store, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		clock:  &testClock{now: t0},
		rec:    input.NewRecorder(zerolog.Nop()),
		det:    detector.NewMockDetector(),
		runner: &fakeRunner{},
	}

	cfg := Config{
		Gesture:  gesture.DefaultConfig(),
		Dispatch: DefaultDispatchConfig(),
		Enabled:  true,
		Store:    st,
		Log:      zerolog.Nop(),
		Clock:    h.clock.Now,
	}
	cfg.Dispatch.TapHold = 0
	if mutate != nil {
		mutate(&cfg)
	}

	h.app = New(cfg,
		WithCamera(capture.NewMockCamera(nil, false)),
		WithDetector(h.det),
		WithActuator(h.rec),
		WithPluginRunner(h.runner),
	)
	t.Cleanup(func() { h.app.Close() })
	return h
}

// frame advances the clock by 50ms and processes the given hands.
func (h *harness) frame(hands ...detector.HandLandmarks) Snapshot {
	h.clock.Advance(50 * time.Millisecond)
	return h.app.ProcessHands(hands)
}

func left(pose func(string) detector.HandLandmarks) detector.HandLandmarks {
	return pose(detector.LeftHand)
}

func right(pose func(string) detector.HandLandmarks) detector.HandLandmarks {
	return pose(detector.RightHand)
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "mudra.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestApp_ArmedCursorMovesPointer(t *testing.T) {
	h := newHarness(t, nil, nil)
	palm := left(detector.OpenPalmLandmarks)
	point := right(detector.PointLandmarks)

	for i := 0; i < 4; i++ {
		snap := h.frame(palm, point)
		assert.Equal(t, "neutral", snap.Mode, "frame %d still debouncing", i+1)
		assert.Equal(t, "idle", snap.Action)
	}

	snap := h.frame(palm, point)
	require.Equal(t, "armed", snap.Mode)
	require.Equal(t, "cursor", snap.Action)

	for i := 1; i <= 10; i++ {
		h.frame(palm, detector.Translated(point, 0.02*float64(i), 0))
	}

	events := h.rec.Events()
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, input.EventMove, e.Kind)
		assert.Greater(t, e.DX, 0)
	}
}

func TestApp_ArmedFistTaps(t *testing.T) {
	h := newHarness(t, nil, nil)
	palm := left(detector.OpenPalmLandmarks)

	for i := 0; i < 5; i++ {
		h.frame(palm)
	}
	snap := h.frame(palm, right(detector.FistLandmarks))
	assert.Equal(t, "tap", snap.Action)
	h.frame(palm, right(detector.FistLandmarks))

	assert.Equal(t, []input.EventKind{input.EventPress, input.EventRelease}, h.rec.Kinds())
}

func TestApp_DragHoldsButton(t *testing.T) {
	h := newHarness(t, nil, nil)
	pinch := detector.PinchLandmarks(detector.LeftHand, 0.0005)

	for i := 0; i < 5; i++ {
		h.frame(pinch)
	}

	grab := detector.PinchLandmarks(detector.RightHand, 0.001)
	snap := h.frame(pinch, grab)
	require.Equal(t, "drag", snap.Mode)
	require.Equal(t, "drag", snap.Action)
	assert.True(t, snap.Dragging)

	for i := 1; i <= 5; i++ {
		h.frame(pinch, detector.Translated(grab, 0, 0.02*float64(i)))
	}

	snap = h.frame(pinch, detector.PinchLandmarks(detector.RightHand, 0.01))
	assert.NotEqual(t, "drag", snap.Action)
	assert.False(t, snap.Dragging)

	kinds := h.rec.Kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, input.EventPress, kinds[0])
	assert.Equal(t, input.EventRelease, kinds[len(kinds)-1])
}

func TestApp_SwipeRunsPluginBinding(t *testing.T) {
	h := newHarness(t, nil, func(cfg *Config) {
		cfg.Dispatch.Bindings[TriggerFlickLeft] = Binding{Plugin: "keyboard", Action: "key", Params: map[string]any{"key": "pgup"}}
	})
	three := left(detector.ThreeFingerLandmarks)

	for i := 0; i < 5; i++ {
		h.frame(three)
	}
	require.Equal(t, gesture.ModeSystem.String(), h.app.Latest().Mode)

	peace := right(detector.PeaceLandmarks)
	var last Snapshot
	for i := 0; i < 3; i++ {
		last = h.frame(three, detector.Translated(peace, -0.05*float64(i), 0))
	}
	assert.Equal(t, "flick", last.Action)
	assert.Equal(t, "left", last.Direction)

	h.app.dispatch.Wait()
	calls := h.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "keyboard", calls[0].name)
	assert.Equal(t, TriggerFlickLeft, calls[0].req.Trigger)
	assert.Empty(t, h.rec.Events())
}

func TestApp_RecordsTransitions(t *testing.T) {
	st := newStore(t)
	h := newHarness(t, st, func(cfg *Config) { cfg.SessionConfig = `{"test":true}` })
	palm := left(detector.OpenPalmLandmarks)
	point := right(detector.PointLandmarks)

	for i := 0; i < 8; i++ {
		h.frame(palm, point)
	}

	status := h.app.Status()
	require.NotEmpty(t, status.SessionID)
	assert.Equal(t, int64(8), status.Frames)

	events, err := st.Events().List(status.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2, "neutral/idle then armed/cursor")

	assert.Equal(t, "armed", events[0].Mode)
	assert.Equal(t, "cursor", events[0].Action)
	require.NotNil(t, events[0].Left)
	require.NotNil(t, events[0].Right)
	assert.InDelta(t, point.Points[detector.IndexTip].X, events[0].Right.X, 1e-9)

	assert.Equal(t, "neutral", events[1].Mode)

	sess, err := st.Sessions().GetByID(status.SessionID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"test":true}`, sess.Config)
	assert.Nil(t, sess.EndedAt)

	require.NoError(t, h.app.Close())
	sess, err = st.Sessions().GetByID(status.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, sess.EndedAt)
}

func TestApp_SetEnabled(t *testing.T) {
	st := newStore(t)
	h := newHarness(t, st, nil)
	palm := left(detector.OpenPalmLandmarks)

	for i := 0; i < 5; i++ {
		h.frame(palm, right(detector.PointLandmarks))
	}
	require.Equal(t, "armed", h.app.Latest().Mode)

	h.app.SetEnabled(false)
	assert.False(t, h.app.IsEnabled())

	snap := h.frame(palm, right(detector.FistLandmarks))
	assert.False(t, snap.Enabled)
	assert.Equal(t, "neutral", snap.Mode)
	assert.Empty(t, h.rec.Events(), "disabled control sends no input")

	v, err := st.Settings().Get("enabled")
	require.NoError(t, err)
	assert.Equal(t, "false", v)

	again := New(Config{Enabled: true, Store: st, Log: zerolog.Nop()},
		WithCamera(capture.NewMockCamera(nil, false)),
		WithDetector(detector.NewMockDetector()),
		WithActuator(input.NewRecorder(zerolog.Nop())),
	)
	defer again.Close()
	assert.False(t, again.IsEnabled(), "persisted setting wins")

	h.app.SetEnabled(true)
	assert.True(t, h.app.IsEnabled())
}

func TestApp_DisableDuringFrame(t *testing.T) {
	var (
		h       *harness
		disable atomic.Bool
		done    = make(chan struct{})
	)
	// The clock is read while a frame holds the pipeline lock, so the
	// toggle lands in the middle of that frame.
	h = newHarness(t, nil, func(c *Config) {
		base := c.Clock
		c.Clock = func() time.Time {
			if disable.CompareAndSwap(true, false) {
				go func() {
					h.app.SetEnabled(false)
					close(done)
				}()
				for h.app.IsEnabled() {
					runtime.Gosched()
				}
			}
			return base()
		}
	})

	palm := left(detector.OpenPalmLandmarks)
	point := right(detector.PointLandmarks)
	for i := 0; i < 5; i++ {
		h.frame(palm, point)
	}
	require.Equal(t, "armed", h.app.Latest().Mode)

	var mu sync.Mutex
	var last Snapshot
	cancel := h.app.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		last = s
	})
	defer cancel()

	disable.Store(true)
	h.frame(palm, point)
	<-done

	mu.Lock()
	assert.False(t, last.Enabled, "disable is the last published state")
	assert.Equal(t, "neutral", last.Mode)
	mu.Unlock()

	h.rec.Reset()
	snap := h.frame(palm, point)
	assert.False(t, snap.Enabled)
	assert.Empty(t, h.rec.Events())
}

func TestApp_DisableReleasesDrag(t *testing.T) {
	h := newHarness(t, nil, nil)
	pinch := detector.PinchLandmarks(detector.LeftHand, 0.0005)
	for i := 0; i < 5; i++ {
		h.frame(pinch)
	}
	snap := h.frame(pinch, detector.PinchLandmarks(detector.RightHand, 0.001))
	require.True(t, snap.Dragging)

	h.app.SetEnabled(false)
	assert.Equal(t, []input.EventKind{input.EventPress, input.EventRelease}, h.rec.Kinds())
}

func TestApp_Subscribe(t *testing.T) {
	h := newHarness(t, nil, nil)

	var mu sync.Mutex
	var got []Snapshot
	cancel := h.app.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	})

	h.frame()
	h.frame(left(detector.OpenPalmLandmarks))
	cancel()
	h.frame()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Left)
	assert.NotNil(t, got[1].Left)
	assert.True(t, got[1].At.After(got[0].At))
}

func TestApp_StatusDefaults(t *testing.T) {
	h := newHarness(t, nil, nil)

	status := h.app.Status()
	assert.True(t, status.Enabled)
	assert.False(t, status.Running)
	assert.Equal(t, DefaultIdleFPS, status.FPS)
	assert.Equal(t, "neutral", status.Mode)
	assert.Equal(t, "idle", status.Action)
	assert.Empty(t, status.SessionID)
	assert.Nil(t, h.app.PluginManager())
	assert.NoError(t, h.app.DiscoverPlugins())
}

func TestApp_Pipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	blank := gocv.NewMatWithSize(detector.MockFrameHeight, detector.MockFrameWidth, gocv.MatTypeCV8UC3)
	defer blank.Close()

	rec := input.NewRecorder(zerolog.Nop())
	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{left(detector.OpenPalmLandmarks)})

	a := New(Config{Enabled: true, IdleFPS: 50, ActiveFPS: 50, Log: zerolog.Nop()},
		WithCamera(capture.NewMockCamera([]*gocv.Mat{&blank}, true)),
		WithDetector(det),
		WithActuator(rec),
	)
	defer a.Close()

	jpegs := make(chan []byte, 1)
	stopFrames := a.SubscribeFrames(func(b []byte) {
		select {
		case jpegs <- b:
		default:
		}
	})
	defer stopFrames()

	var mu sync.Mutex
	var last Snapshot
	stopState := a.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		last = s
	})
	defer stopState()

	require.NoError(t, a.Start())
	require.NoError(t, a.Start(), "second start is a no-op")
	assert.True(t, a.Running())

	require.Eventually(t, func() bool {
		return a.Latest().Mode == "armed"
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case b := <-jpegs:
		require.Greater(t, len(b), 2)
		assert.Equal(t, []byte{0xFF, 0xD8}, b[:2], "JPEG magic")
	case <-time.After(5 * time.Second):
		t.Fatal("no overlay frame streamed")
	}

	a.Stop()
	assert.False(t, a.Running())
	assert.Equal(t, "neutral", a.Status().Mode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "neutral", last.Mode, "stop publishes the reset state")
	assert.Equal(t, "idle", last.Action)
	assert.True(t, last.Enabled)
}
