package handlers

import (
	"errors"
	"net/http"

	"github.com/dwsmith1983/sortimate/internal/orchestrator"
)

// Status returns the live bin status from the control loop.
func (h *Handlers) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

// Reset clears a fault. It answers 409 when the bin is not faulted.
func (h *Handlers) Reset(w http.ResponseWriter, _ *http.Request) {
	if err := h.ctrl.Reset(); err != nil {
		if errors.Is(err, orchestrator.ErrNotFaulted) {
			h.writeError(w, http.StatusConflict, "bin is not faulted", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "reset failed", err)
		return
	}
	h.logger.Info("fault reset requested over HTTP", "bin", h.binID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset requested"})
}
