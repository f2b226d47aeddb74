package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/mudra/internal/app"
)

const (
	writeWait    = 2 * time.Second
	stateBacklog = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// StateSource publishes pipeline snapshots.
type StateSource interface {
	Latest() app.Snapshot
	Subscribe(fn app.Observer) func()
}

// StateHandler broadcasts every snapshot to websocket clients as JSON.
// New clients first receive the latest snapshot. A client that falls
// behind by more than stateBacklog snapshots loses the oldest ones.
type StateHandler struct {
	source StateSource
	log    zerolog.Logger
}

// NewStateHandler creates a StateHandler reading from source.
func NewStateHandler(source StateSource, log zerolog.Logger) *StateHandler {
	return &StateHandler{
		source: source,
		log:    log.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP upgrades the connection and streams snapshots until the client
// disconnects.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	snaps := make(chan app.Snapshot, stateBacklog)
	snaps <- h.source.Latest()
	unsubscribe := h.source.Subscribe(func(s app.Snapshot) {
		for {
			select {
			case snaps <- s:
				return
			default:
			}
			select {
			case <-snaps:
			default:
			}
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("State client connected")
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			h.log.Debug().Str("remote", r.RemoteAddr).Msg("State client disconnected")
			return
		case s := <-snaps:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(s); err != nil {
				h.log.Debug().Err(err).Msg("State write failed")
				return
			}
		}
	}
}
