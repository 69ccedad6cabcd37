// Package handlers implements the JSON and event-stream HTTP endpoints.
package handlers

import (
	"context"
	"net/http"
	"time"

	"courier-dispatch/internal/logx"
)

// ReadyFunc reports whether the backing stores answer.
type ReadyFunc func(ctx context.Context) error

const readyTimeout = 2 * time.Second

// Handlers holds the service-level endpoints.
type Handlers struct {
	Logger logx.Logger
	ready  ReadyFunc
}

// New creates a Handlers instance. A nil ready func means always ready.
func New(logger logx.Logger, ready ReadyFunc) *Handlers {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Handlers{Logger: logger, ready: ready}
}

// Ping handles GET /ping and returns 200 with {"message":"pong"}.
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.Logger, w, r, http.StatusOK, map[string]string{"message": "pong"})
}

// HealthcheckHead handles HEAD /healthcheck: 204 when the stores answer,
// 503 otherwise.
func (h *Handlers) HealthcheckHead(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.Logger.Warn("healthcheck failed",
				logx.String("event", "healthcheck_failed"),
				logx.Err(err),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// NotFound returns a JSON 404 error for unknown routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(h.Logger, w, r, http.StatusNotFound, "route not found")
}
