package handlers

import (
	"net/http"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// ListAttempts returns recent sort attempts for this bin, newest first.
func (h *Handlers) ListAttempts(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "no event store configured", nil)
		return
	}
	attempts, err := h.store.ListAttempts(r.Context(), h.binID, limitParam(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list attempts", err)
		return
	}
	if attempts == nil {
		attempts = []types.SortAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

// ListAlerts returns recent alerts for this bin, newest first.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "no event store configured", nil)
		return
	}
	alerts, err := h.store.ListAlerts(r.Context(), h.binID, limitParam(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}
