package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sipico/magic-links/internal/storage"
)

const readyTimeout = 5 * time.Second

type readiness struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Templates int    `json:"templates,omitempty"`
}

// HandleHealth reports liveness only.
// GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady reports whether magic links can be issued and exchanged:
// the database must answer and hold the schema.
// GET /ready
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeJSON(w, http.StatusServiceUnavailable, readiness{Status: "error", Database: "not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.storage.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		state := "unavailable"
		if errors.Is(err, storage.ErrSchemaMissing) {
			state = "schema missing"
		}
		writeJSON(w, http.StatusServiceUnavailable, readiness{Status: "error", Database: state})
		return
	}

	writeJSON(w, http.StatusOK, readiness{Status: "ok", Database: "connected", Templates: h.templateCount()})
}
