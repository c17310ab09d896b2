package handlers

import (
	"net/http"
)

// Health returns the server health status. A configured store that does not
// answer degrades the status but keeps the response 200.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn("store ping failed", "error", err)
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": status,
		"state":  string(h.ctrl.Status().State),
	})
}
