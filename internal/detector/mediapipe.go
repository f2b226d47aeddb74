package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	serviceScript = "mediapipe_service.py"

	// idleShutdown is how long the Python service may sit unused before it is stopped.
	idleShutdown = 30 * time.Second
)

// ErrNoService is returned when mediapipe_service.py cannot be located.
var ErrNoService = errors.New(serviceScript + " not found")

// MediaPipeDetector implements Detector on top of a long-lived Python
// MediaPipe Hands process.
//
// Each frame goes to the service as a 4-byte big-endian length and the
// JPEG bytes. The service answers with one JSON line per frame.
type MediaPipeDetector struct {
	config Config
	script string
	python string

	mu      sync.Mutex
	proc    *exec.Cmd
	in      io.WriteCloser
	out     *bufio.Reader
	idle    *time.Timer
	running bool
}

// NewMediaPipeDetector locates the service script and returns a detector.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := config.ScriptPath
	if script == "" {
		script = firstExisting(searchPaths("scripts", serviceScript))
	}
	if script == "" {
		return nil, ErrNoService
	}
	if config.Width <= 0 || config.Height <= 0 {
		def := DefaultConfig()
		config.Width, config.Height = def.Width, def.Height
	}
	python := firstExisting(searchPaths("venv", "bin", "python"))
	if python == "" {
		python = "python3"
	}
	return &MediaPipeDetector{config: config, script: script, python: python}, nil
}

// Detect sends frame to the service and returns the hands it reports, with
// pixel coordinates filled in for the configured frame size.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	line, err := d.roundTrip(buf.GetBytes())
	if err != nil {
		return nil, err
	}
	return parseResponse(line, d.config.Width, d.config.Height)
}

// roundTrip sends one encoded frame and returns the service's answer line.
// An I/O failure tears the process down so the next call starts a fresh one.
func (d *MediaPipeDetector) roundTrip(data []byte) ([]byte, error) {
	if err := d.start(); err != nil {
		return nil, err
	}

	if err := writeFrame(d.in, data); err != nil {
		d.kill()
		return nil, err
	}
	line, err := d.out.ReadBytes('\n')
	if err != nil {
		d.kill()
		return nil, fmt.Errorf("read response: %w", err)
	}

	d.touch()
	return line, nil
}

// Close stops the Python process if it is running.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

func (d *MediaPipeDetector) args() []string {
	return []string{
		d.script,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection", strconv.FormatFloat(d.config.MinConfidence, 'f', 2, 64),
		"--min-tracking", strconv.FormatFloat(d.config.MinTrackingConf, 'f', 2, 64),
	}
}

func (d *MediaPipeDetector) start() error {
	if d.running {
		return nil
	}

	proc := exec.Command(d.python, d.args()...)
	proc.Stderr = os.Stderr
	in, err := proc.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	out, err := proc.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.proc, d.in, d.out = proc, in, bufio.NewReader(out)
	d.running = true
	return nil
}

// stop closes stdin so the service exits on EOF, then reaps it.
func (d *MediaPipeDetector) stop() error {
	if !d.running {
		return nil
	}
	if d.idle != nil {
		d.idle.Stop()
		d.idle = nil
	}
	d.in.Close()
	err := d.proc.Wait()
	d.proc, d.in, d.out = nil, nil, nil
	d.running = false
	return err
}

// kill stops a service that stopped answering.
func (d *MediaPipeDetector) kill() {
	if d.proc != nil && d.proc.Process != nil {
		d.proc.Process.Kill()
	}
	d.stop()
}

// touch pushes back the idle shutdown of the service.
func (d *MediaPipeDetector) touch() {
	if d.idle != nil {
		d.idle.Reset(idleShutdown)
		return
	}
	d.idle = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.idle = nil
		d.stop()
	})
}

// writeFrame writes one length-prefixed frame.
func writeFrame(w io.Writer, data []byte) error {
	msg := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(msg, uint32(len(data)))
	copy(msg[4:], data)
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// searchPaths lists where an installed file may live: the working
// directory, its parent, next to the executable and under ~/.mudra.
func searchPaths(elem ...string) []string {
	rel := filepath.Join(elem...)
	paths := []string{rel, filepath.Join("..", rel)}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), rel))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".mudra", rel))
	}
	return paths
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}

type serviceResponse struct {
	Hands []struct {
		Points []struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			Z float64 `json:"z"`
		} `json:"points"`
		Handedness string  `json:"handedness"`
		Score      float64 `json:"score"`
	} `json:"hands"`
	Error string `json:"error,omitempty"`
}

// parseResponse decodes one service response line. Hands with fewer than
// NumLandmarks points are dropped rather than padded with zeros.
func parseResponse(line []byte, width, height int) ([]HandLandmarks, error) {
	var resp serviceResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("mediapipe service: %s", resp.Error)
	}

	hands := make([]HandLandmarks, 0, len(resp.Hands))
	for _, h := range resp.Hands {
		if len(h.Points) < NumLandmarks {
			continue
		}
		lm := HandLandmarks{Handedness: h.Handedness, Score: h.Score}
		for i := range lm.Points {
			p := h.Points[i]
			lm.Points[i] = Landmark{X: p.X, Y: p.Y, Z: p.Z}
		}
		lm.WithPixels(width, height)
		hands = append(hands, lm)
	}
	return hands, nil
}
