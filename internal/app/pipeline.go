package app

import (
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/store"
)

// runPipeline is the capture loop. Every tick it reads a frame, lets the
// motion detector pick the idle or active frame rate, detects hands and
// feeds them through ProcessHands. Detection runs on every frame; motion
// only changes how often frames are taken.
func (a *App) runPipeline(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(time.Second / time.Duration(a.cfg.IdleFPS))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.camera.ReadFrame()
			if err != nil {
				if !errors.Is(err, capture.ErrNoFrame) {
					a.log.Warn().Err(err).Msg("Error reading frame")
				}
				continue
			}

			if active, changed := a.motion.Observe(frame, a.clock()); changed {
				fps := a.cfg.IdleFPS
				if active {
					fps = a.cfg.ActiveFPS
				}
				a.camera.SetFPS(fps)
				ticker.Reset(time.Second / time.Duration(fps))
				a.mu.Lock()
				a.fps = fps
				a.mu.Unlock()
				a.log.Info().Bool("active", active).Int("fps", fps).Msg("Switched frame rate")
			}

			a.processFrame(frame)
			frame.Close()
		}
	}
}

// processFrame detects hands on frame, runs them through the engine and
// streams the overlay to frame observers.
func (a *App) processFrame(frame *gocv.Mat) Snapshot {
	start := time.Now()
	hands, err := a.detector.Detect(frame)
	if err != nil {
		a.log.Warn().Err(err).Msg("Error detecting hands")
		hands = nil
	}
	a.log.Debug().
		Int("hands", len(hands)).
		Float64("detect_ms", logging.Since(start)).
		Msg("Frame processed")

	snap := a.ProcessHands(hands)

	if obs := a.frameObservers(); len(obs) > 0 {
		a.streamFrame(frame, snap, obs)
	}
	return snap
}

func (a *App) streamFrame(frame *gocv.Mat, snap Snapshot, obs []FrameObserver) {
	debug := frame.Clone()
	defer debug.Close()

	capture.Overlay{
		Mode:   snap.Mode,
		Action: snap.Action,
		Left:   snap.Left,
		Right:  snap.Right,
	}.Draw(&debug)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, debug)
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to encode overlay frame")
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	for _, fn := range obs {
		fn(data)
	}
}

// ProcessHands runs one frame of landmarks through the engine and the
// dispatcher, records transitions and publishes the resulting snapshot.
// It is the frame-free entry point of the pipeline. While control is
// disabled the hands are ignored.
func (a *App) ProcessHands(hands []detector.HandLandmarks) Snapshot {
	if !a.IsEnabled() {
		return a.Latest()
	}

	a.procMu.Lock()
	if !a.IsEnabled() {
		a.procMu.Unlock()
		return a.Latest()
	}
	now := a.clock()
	left, right := detector.Split(hands)

	res := a.engine.Update(left, right)
	// Failures are logged by the dispatcher; the frame still counts.
	_ = a.dispatch.Dispatch(res, right, now)
	a.record(res, left, right, now)

	a.frames++
	snap, seq := a.setLatest(Snapshot{
		At:        now,
		Mode:      res.Mode.String(),
		Action:    res.Action.String(),
		Direction: res.Direction.String(),
		Enabled:   true,
		Dragging:  a.dispatch.Dragging(),
		Left:      left,
		Right:     right,
	})
	a.procMu.Unlock()

	a.publish(snap, seq)
	return snap
}

// record logs and stores mode or action transitions. Caller holds procMu.
func (a *App) record(res gesture.Result, left, right *detector.HandLandmarks, now time.Time) {
	if a.recorded && res.Mode == a.lastResult.Mode && res.Action == a.lastResult.Action {
		return
	}
	a.lastResult = res
	a.recorded = true

	a.log.Info().
		Str("mode", res.Mode.String()).
		Str("action", res.Action.String()).
		Str("direction", res.Direction.String()).
		Msg("Transition")

	if a.cfg.Store == nil {
		return
	}
	if err := a.ensureSession(now); err != nil {
		a.log.Warn().Err(err).Msg("Failed to start session")
		return
	}

	e := &store.Event{
		SessionID: a.session.ID,
		At:        now,
		Mode:      res.Mode.String(),
		Action:    res.Action.String(),
		Direction: res.Direction.String(),
		Left:      indexTip(left),
		Right:     indexTip(right),
	}
	if err := a.cfg.Store.Events().Insert(e); err != nil {
		a.log.Warn().Err(err).Msg("Failed to record event")
	}
}

// ensureSession starts a session on first use. Caller holds procMu.
func (a *App) ensureSession(now time.Time) error {
	if a.session != nil {
		return nil
	}
	sess, err := a.cfg.Store.Sessions().Start(now, a.cfg.SessionConfig)
	if err != nil {
		return err
	}
	a.session = sess
	a.log.Info().Str("session", sess.ID).Msg("Session started")
	return nil
}

// endSession closes the current session. Caller holds procMu.
func (a *App) endSession() {
	if a.session == nil || a.cfg.Store == nil {
		return
	}
	if err := a.cfg.Store.Sessions().End(a.session.ID, a.clock()); err != nil {
		a.log.Warn().Err(err).Msg("Failed to end session")
	}
	a.log.Info().Str("session", a.session.ID).Msg("Session ended")
	a.session = nil
}

func indexTip(h *detector.HandLandmarks) *store.Point {
	if h == nil {
		return nil
	}
	tip := h.Points[detector.IndexTip]
	return &store.Point{X: tip.X, Y: tip.Y}
}
