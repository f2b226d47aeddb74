package server

import (
	"fmt"
	"net/http"

	"github.com/ayusman/mudra/internal/app"
)

// FrameSource publishes JPEG overlay frames.
type FrameSource interface {
	SubscribeFrames(fn app.FrameObserver) func()
}

// StreamHandler serves the overlay frames as MJPEG. Slow clients skip
// frames rather than stall the pipeline.
type StreamHandler struct {
	source FrameSource
}

// NewStreamHandler creates a StreamHandler reading from source.
func NewStreamHandler(source FrameSource) *StreamHandler {
	return &StreamHandler{source: source}
}

// ServeHTTP streams MJPEG frames until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frames := make(chan []byte, 1)
	unsubscribe := h.source.SubscribeFrames(func(jpeg []byte) {
		select {
		case frames <- jpeg:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flush(w)

	for {
		select {
		case <-r.Context().Done():
			return
		case jpeg := <-frames:
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
			if _, err := w.Write(jpeg); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")
			flush(w)
		}
	}
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
