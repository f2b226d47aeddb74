package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/mudra/internal/app"
)

// Controller is the part of the application the status endpoint drives.
type Controller interface {
	Status() app.Status
	SetEnabled(enabled bool)
}

// StatusHandler serves GET and POST /api/status.
type StatusHandler struct {
	ctrl Controller
}

// NewStatusHandler creates a StatusHandler for ctrl.
func NewStatusHandler(ctrl Controller) *StatusHandler {
	return &StatusHandler{ctrl: ctrl}
}

type updateStatusRequest struct {
	Enabled *bool `json:"enabled"`
}

// ServeHTTP returns the status, or toggles control on POST.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.ctrl.Status())
	case http.MethodPost:
		var req updateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		h.ctrl.SetEnabled(*req.Enabled)
		writeJSON(w, http.StatusOK, h.ctrl.Status())
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
