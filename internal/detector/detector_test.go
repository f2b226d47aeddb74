package detector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func TestHandLandmarks_Normalize(t *testing.T) {
	t.Run("wrist at origin after normalization", func(t *testing.T) {
		hand := HandLandmarks{
			Handedness: RightHand,
			Score:      0.9,
		}
		hand.Points[Wrist] = Landmark{X: 100.0, Y: 200.0, Z: 50.0}
		hand.Points[MiddleMCP] = Landmark{X: 130.0, Y: 240.0, Z: 50.0}
		for i := 1; i < NumLandmarks; i++ {
			if i != MiddleMCP {
				hand.Points[i] = Landmark{
					X: 100.0 + float64(i)*10.0,
					Y: 200.0 + float64(i)*5.0,
					Z: 50.0 + float64(i)*2.0,
				}
			}
		}

		normalized := hand.Normalize()

		assert.InDelta(t, 0, normalized.Points[Wrist].X, epsilon)
		assert.InDelta(t, 0, normalized.Points[Wrist].Y, epsilon)
		assert.InDelta(t, 0, normalized.Points[Wrist].Z, epsilon)
		assert.Equal(t, hand.Handedness, normalized.Handedness)
		assert.Equal(t, hand.Score, normalized.Score)
	})

	t.Run("distance from wrist to middle MCP is 1.0", func(t *testing.T) {
		hand := HandLandmarks{}
		hand.Points[Wrist] = Landmark{X: 10.0, Y: 20.0, Z: 5.0}
		hand.Points[MiddleMCP] = Landmark{X: 13.0, Y: 24.0, Z: 5.0} // distance = 5.0

		normalized := hand.Normalize()

		m := normalized.Points[MiddleMCP]
		assert.InDelta(t, 1.0, math.Sqrt(m.X*m.X+m.Y*m.Y+m.Z*m.Z), epsilon)
	})

	t.Run("nil hand returns nil", func(t *testing.T) {
		var hand *HandLandmarks
		assert.Nil(t, hand.Normalize())
	})

	t.Run("zero scale returns translated only", func(t *testing.T) {
		hand := HandLandmarks{}
		hand.Points[Wrist] = Landmark{X: 10.0, Y: 20.0, Z: 5.0}
		hand.Points[MiddleMCP] = Landmark{X: 10.0, Y: 20.0, Z: 5.0}

		normalized := hand.Normalize()

		assert.InDelta(t, 0, normalized.Points[Wrist].X, epsilon)
		assert.InDelta(t, 0, normalized.Points[MiddleMCP].Y, epsilon)
	})
}

func TestDistSqAndScale(t *testing.T) {
	a := Landmark{X: 0.1, Y: 0.2, Z: 5}
	b := Landmark{X: 0.4, Y: 0.6, Z: -5}
	assert.InDelta(t, 0.25, DistSq(a, b), epsilon, "depth must be ignored")

	hand := OpenPalmLandmarks(RightHand)
	assert.InDelta(t, 0.15, hand.Scale(), 1e-9)

	var missing *HandLandmarks
	assert.Zero(t, missing.Scale())
}

func TestWithPixels(t *testing.T) {
	hand := HandLandmarks{}
	hand.Points[IndexTip] = Landmark{X: 0.25, Y: 0.5}

	hand.WithPixels(640, 480)

	assert.Equal(t, 160, hand.Points[IndexTip].PX)
	assert.Equal(t, 240, hand.Points[IndexTip].PY)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		hands     []HandLandmarks
		wantLeft  float64
		wantRight float64
	}{
		{
			name:  "no hands",
			hands: nil,
		},
		{
			name: "one of each",
			hands: []HandLandmarks{
				{Handedness: LeftHand, Score: 0.9},
				{Handedness: RightHand, Score: 0.8},
			},
			wantLeft:  0.9,
			wantRight: 0.8,
		},
		{
			name: "duplicate label keeps highest score",
			hands: []HandLandmarks{
				{Handedness: RightHand, Score: 0.7},
				{Handedness: RightHand, Score: 0.95},
				{Handedness: RightHand, Score: 0.8},
			},
			wantRight: 0.95,
		},
		{
			name: "unknown label ignored",
			hands: []HandLandmarks{
				{Handedness: "Unknown", Score: 0.99},
				{Handedness: LeftHand, Score: 0.6},
			},
			wantLeft: 0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right := Split(tt.hands)

			if tt.wantLeft == 0 {
				assert.Nil(t, left)
			} else {
				require.NotNil(t, left)
				assert.Equal(t, tt.wantLeft, left.Score)
			}
			if tt.wantRight == 0 {
				assert.Nil(t, right)
			} else {
				require.NotNil(t, right)
				assert.Equal(t, tt.wantRight, right.Score)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	point := `{"x":0.5,"y":0.25,"z":0}`
	full := "["
	for i := 0; i < NumLandmarks; i++ {
		if i > 0 {
			full += ","
		}
		full += point
	}
	full += "]"

	t.Run("full hand", func(t *testing.T) {
		line := `{"hands":[{"handedness":"Left","score":0.97,"points":` + full + `}]}`

		hands, err := parseResponse([]byte(line), 640, 480)

		require.NoError(t, err)
		require.Len(t, hands, 1)
		assert.Equal(t, LeftHand, hands[0].Handedness)
		assert.Equal(t, 0.97, hands[0].Score)
		assert.Equal(t, 320, hands[0].Points[IndexTip].PX)
		assert.Equal(t, 120, hands[0].Points[IndexTip].PY)
	})

	t.Run("short hand dropped", func(t *testing.T) {
		line := `{"hands":[{"handedness":"Right","score":0.9,"points":[` + point + `]}]}`

		hands, err := parseResponse([]byte(line), 640, 480)

		require.NoError(t, err)
		assert.Empty(t, hands)
	})

	t.Run("service error", func(t *testing.T) {
		_, err := parseResponse([]byte(`{"hands":[],"error":"decode failed"}`), 640, 480)
		assert.ErrorContains(t, err, "decode failed")
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parseResponse([]byte(`{not json`), 640, 480)
		assert.Error(t, err)
	})
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("jpeg")))

	msg := buf.Bytes()
	require.Len(t, msg, 8)
	assert.Equal(t, uint32(4), binary.BigEndian.Uint32(msg[:4]))
	assert.Equal(t, "jpeg", string(msg[4:]))
}

func TestNewMediaPipeDetector(t *testing.T) {
	t.Run("explicit script", func(t *testing.T) {
		script := filepath.Join(t.TempDir(), serviceScript)
		require.NoError(t, os.WriteFile(script, nil, 0o644))

		d, err := NewMediaPipeDetector(Config{MaxHands: 2, ScriptPath: script})

		require.NoError(t, err)
		assert.Equal(t, 640, d.config.Width)
		assert.Equal(t, 480, d.config.Height)
		assert.Equal(t, []string{script, "--max-hands", "2", "--min-detection", "0.00", "--min-tracking", "0.00"}, d.args())
		assert.NoError(t, d.Close())
	})

	t.Run("missing script", func(t *testing.T) {
		wd, wdErr := os.Getwd()
		require.NoError(t, wdErr)
		require.NoError(t, os.Chdir(t.TempDir()))
		t.Cleanup(func() { _ = os.Chdir(wd) })
		t.Setenv("HOME", t.TempDir())

		_, err := NewMediaPipeDetector(DefaultConfig())

		assert.ErrorIs(t, err, ErrNoService)
	})
}

func TestMediaPipeDetector_RestartsAfterFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	script := filepath.Join(t.TempDir(), serviceScript)
	require.NoError(t, os.WriteFile(script, []byte("exit 1\n"), 0o755))

	d, err := NewMediaPipeDetector(Config{MaxHands: 2, ScriptPath: script})
	require.NoError(t, err)
	d.python = "/bin/sh"
	defer d.Close()

	_, err = d.roundTrip([]byte("jpeg"))
	require.Error(t, err)
	assert.False(t, d.running, "crashed service is torn down")

	answer := "head -c 8 > /dev/null\necho '{\"hands\":[]}'\n"
	require.NoError(t, os.WriteFile(script, []byte(answer), 0o755))

	line, err := d.roundTrip([]byte("jpeg"))
	require.NoError(t, err)
	hands, err := parseResponse(line, 640, 480)
	require.NoError(t, err)
	assert.Empty(t, hands)
	assert.True(t, d.running)
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "python")
	require.NoError(t, os.WriteFile(present, nil, 0o755))

	assert.Equal(t, present, firstExisting([]string{filepath.Join(dir, "missing"), present}))
	assert.Empty(t, firstExisting([]string{filepath.Join(dir, "missing")}))
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty hands by default", func(t *testing.T) {
		mock := NewMockDetector()

		hands, err := mock.Detect(nil)

		assert.NoError(t, err)
		assert.Nil(t, hands)
		assert.Equal(t, 1, mock.Calls())
	})

	t.Run("returns configured hands", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetHands([]HandLandmarks{
			ThumbOnlyLandmarks(LeftHand),
			OpenPalmLandmarks(RightHand),
		})

		hands, err := mock.Detect(nil)

		assert.NoError(t, err)
		assert.Len(t, hands, 2)
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		hands, err := mock.Detect(nil)

		assert.ErrorIs(t, err, expectedErr)
		assert.Nil(t, hands)
	})

	t.Run("close succeeds", func(t *testing.T) {
		assert.NoError(t, NewMockDetector().Close())
	})
}

func TestPresetPoses(t *testing.T) {
	t.Run("pixels follow normalized coordinates", func(t *testing.T) {
		hand := PointLandmarks(RightHand)
		tip := hand.Points[IndexTip]
		assert.Equal(t, int(tip.X*MockFrameWidth), tip.PX)
		assert.Equal(t, int(tip.Y*MockFrameHeight), tip.PY)
	})

	t.Run("pinch gap", func(t *testing.T) {
		hand := PinchLandmarks(RightHand, 0.001)
		assert.InDelta(t, 0.001, DistSq(hand.Points[IndexTip], hand.Points[ThumbTip]), 1e-12)
	})

	t.Run("AtPalm moves palm centre", func(t *testing.T) {
		hand := AtPalm(OpenPalmLandmarks(RightHand), 0.2, 0.5)
		assert.InDelta(t, 0.2, hand.Points[PalmCenter].X, epsilon)
		assert.InDelta(t, 0.5, hand.Points[PalmCenter].Y, epsilon)
		assert.InDelta(t, 128, hand.Points[PalmCenter].PX, 1)
	})
}
