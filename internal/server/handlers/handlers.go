// Package handlers implements HTTP request handlers for the control API.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

const maxListLimit = 500

// Controller is the running control loop.
type Controller interface {
	Status() types.BinStatus
	Reset() error
}

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	ctrl   Controller
	store  provider.Store
	binID  string
	logger *slog.Logger
}

// New creates a new Handlers instance. store may be nil.
func New(ctrl Controller, store provider.Store, binID string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		ctrl:   ctrl,
		store:  store,
		binID:  binID,
		logger: logger,
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func limitParam(r *http.Request) int {
	limit := provider.DefaultListLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= maxListLimit {
			limit = n
		}
	}
	return limit
}
