package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vncsmyrnk/pollstream/internal/core/ports"
)

type HealthHandler struct {
	store   ports.HealthChecker
	timeout time.Duration
}

func NewHealthHandler(store ports.HealthChecker, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{
		store:   store,
		timeout: timeout,
	}
}

type healthResponse struct {
	OK bool   `json:"ok"`
	DB string `json:"db"`
}

// Health always answers 200: the process is up even when the store is not.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	db := "up"
	if err := h.store.Ping(ctx); err != nil {
		slog.Debug("Health check ping failed", "error", err)
		db = "down"
	}

	writeJSON(w, http.StatusOK, healthResponse{OK: true, DB: db})
}
