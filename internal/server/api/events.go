package api

import (
	"net/http"

	"github.com/ayusman/mudra/internal/store"
)

// EventsHandler serves GET /api/events?session=&limit=.
type EventsHandler struct {
	store *store.Store
}

// NewEventsHandler creates an EventsHandler backed by s.
func NewEventsHandler(s *store.Store) *EventsHandler {
	return &EventsHandler{store: s}
}

type eventResponse struct {
	ID        int64        `json:"id"`
	SessionID string       `json:"session_id"`
	At        string       `json:"at"`
	Mode      string       `json:"mode"`
	Action    string       `json:"action"`
	Direction string       `json:"direction,omitempty"`
	Left      *store.Point `json:"left,omitempty"`
	Right     *store.Point `json:"right,omitempty"`
}

type listEventsResponse struct {
	Events []eventResponse `json:"events"`
}

// ServeHTTP lists events newest first, across all sessions unless session
// is given.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, ok := parseLimit(r, DefaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	events, err := h.store.Events().List(r.URL.Query().Get("session"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	out := listEventsResponse{Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, eventResponse{
			ID:        e.ID,
			SessionID: e.SessionID,
			At:        formatTime(e.At),
			Mode:      e.Mode,
			Action:    e.Action,
			Direction: e.Direction,
			Left:      e.Left,
			Right:     e.Right,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
