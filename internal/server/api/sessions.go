package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/store"
)

// DefaultListLimit caps list responses when no limit is given.
const DefaultListLimit = 100

// SessionsHandler handles /api/sessions and /api/sessions/{id}.
type SessionsHandler struct {
	store *store.Store
}

// NewSessionsHandler creates a SessionsHandler backed by s.
func NewSessionsHandler(s *store.Store) *SessionsHandler {
	return &SessionsHandler{store: s}
}

type sessionResponse struct {
	ID        string  `json:"id"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
	Config    string  `json:"config"`
	Events    int     `json:"events"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

// ServeHTTP routes collection and item requests.
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	id = strings.Trim(id, "/")

	if id == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodDelete:
		h.delete(w, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *SessionsHandler) toResponse(s *store.Session) (sessionResponse, error) {
	n, err := h.store.Events().Count(s.ID)
	if err != nil {
		return sessionResponse{}, err
	}
	resp := sessionResponse{
		ID:        s.ID,
		StartedAt: formatTime(s.StartedAt),
		Config:    s.Config,
		Events:    n,
	}
	if s.EndedAt != nil {
		ended := formatTime(*s.EndedAt)
		resp.EndedAt = &ended
	}
	return resp, nil
}

// list handles GET /api/sessions.
func (h *SessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, DefaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	out := listSessionsResponse{Sessions: make([]sessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp, err := h.toResponse(s)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count events")
			return
		}
		out.Sessions = append(out.Sessions, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

// get handles GET /api/sessions/{id}.
func (h *SessionsHandler) get(w http.ResponseWriter, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	resp, err := h.toResponse(sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count events")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// delete handles DELETE /api/sessions/{id}. Its events go with it.
func (h *SessionsHandler) delete(w http.ResponseWriter, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
