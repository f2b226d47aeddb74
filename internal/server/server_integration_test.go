package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/input"
	"github.com/ayusman/mudra/internal/store"
)

func newTestApp(t *testing.T, st *store.Store) *app.App {
	t.Helper()
	a := app.New(app.Config{Enabled: true, Store: st, Log: zerolog.Nop()},
		app.WithCamera(capture.NewMockCamera(nil, false)),
		app.WithDetector(detector.NewMockDetector()),
		app.WithActuator(input.NewRecorder(zerolog.Nop())),
	)
	t.Cleanup(func() { a.Close() })
	return a
}

func newTestServer(t *testing.T) (*httptest.Server, *app.App, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	a := newTestApp(t, st)
	ts := httptest.NewServer(New(Config{Store: st, App: a, Log: zerolog.Nop()}))
	t.Cleanup(ts.Close)
	return ts, a, st
}

func armCursor(a *app.App) {
	hands := []detector.HandLandmarks{
		detector.OpenPalmLandmarks(detector.LeftHand),
		detector.PointLandmarks(detector.RightHand),
	}
	for i := 0; i < 6; i++ {
		a.ProcessHands(hands)
	}
}

func TestAPI_StatusWorkflow(t *testing.T) {
	ts, a, _ := newTestServer(t)
	client := ts.Client()

	resp, err := client.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	var status app.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.True(t, status.Enabled)
	assert.Equal(t, "neutral", status.Mode)
	assert.False(t, status.Running)

	armCursor(a)

	resp, err = client.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, "armed", status.Mode)
	assert.Equal(t, "cursor", status.Action)
	assert.Equal(t, int64(6), status.Frames)

	resp, err = client.Post(ts.URL+"/api/status", "application/json", bytes.NewBufferString(`{"enabled":false}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.False(t, status.Enabled)
	assert.Equal(t, "neutral", status.Mode)
	assert.False(t, a.IsEnabled())
}

func TestAPI_SessionWorkflow(t *testing.T) {
	ts, a, _ := newTestServer(t)
	client := ts.Client()

	armCursor(a)
	sessionID := a.Status().SessionID
	require.NotEmpty(t, sessionID)

	resp, err := client.Get(ts.URL + "/api/sessions")
	require.NoError(t, err)
	var listed struct {
		Sessions []struct {
			ID     string `json:"id"`
			Events int    `json:"events"`
		} `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	resp.Body.Close()
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, sessionID, listed.Sessions[0].ID)
	assert.Equal(t, 2, listed.Sessions[0].Events)

	resp, err = client.Get(ts.URL + "/api/events?session=" + sessionID)
	require.NoError(t, err)
	var events struct {
		Events []struct {
			Mode   string `json:"mode"`
			Action string `json:"action"`
		} `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	resp.Body.Close()
	require.Len(t, events.Events, 2)
	assert.Equal(t, "armed", events.Events[0].Mode)
	assert.Equal(t, "cursor", events.Events[0].Action)
	assert.Equal(t, "neutral", events.Events[1].Mode)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+sessionID, nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/api/sessions/" + sessionID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_StateWebsocket(t *testing.T) {
	ts, a, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/state"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap app.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "neutral", snap.Mode, "latest snapshot first")

	armCursor(a)

	var modes []string
	for i := 0; i < 6; i++ {
		require.NoError(t, conn.ReadJSON(&snap))
		modes = append(modes, snap.Mode)
	}
	assert.Equal(t, []string{"neutral", "neutral", "neutral", "neutral", "armed", "armed"}, modes)
	assert.Equal(t, "cursor", snap.Action)
	require.NotNil(t, snap.Right)
	assert.Equal(t, detector.RightHand, snap.Right.Handedness)
}

type fakeFrames struct {
	mu  sync.Mutex
	obs []app.FrameObserver
}

func (f *fakeFrames) SubscribeFrames(fn app.FrameObserver) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, fn)
	return func() {}
}

func (f *fakeFrames) emit(jpeg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fn := range f.obs {
		fn(jpeg)
	}
}

func TestStreamHandler(t *testing.T) {
	frames := &fakeFrames{}
	ts := httptest.NewServer(NewStreamHandler(frames))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	payload := []byte("\xff\xd8fake-jpeg\xff\xd9")
	frames.emit(payload)

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: image/jpeg\r\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Length: 13\r\n", line)
	_, err = r.ReadString('\n')
	require.NoError(t, err)

	got := make([]byte, len(payload))
	_, err = io.ReadFull(r, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestStreamHandler_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStreamHandler(&fakeFrames{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := New(Config{Log: zerolog.Nop()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
