package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const pingTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
	Cache  string `json:"cache,omitempty"`
}

// HealthHandler is a liveness probe. It never touches the cache.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{Status: "healthy"})
}

// ReadyHandler reports whether the cache answers a ping. An unreachable
// cache is reported but still answers 200, since renders succeed without
// it.
type ReadyHandler struct {
	cache  Pinger
	logger *slog.Logger
}

// NewReadyHandler accepts a nil cache, in which case no cache status is
// reported.
func NewReadyHandler(cache Pinger, logger *slog.Logger) *ReadyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadyHandler{
		cache:  cache,
		logger: logger,
	}
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp := healthResponse{Status: "ready"}

	if h.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.cache.Ping(ctx); err != nil {
			resp.Cache = "unavailable"
			h.logger.Warn("cache ping failed", "error", err)
		} else {
			resp.Cache = "ok"
		}
	}

	writeJSON(w, resp)

	h.logger.Debug("readiness check completed",
		"duration", time.Since(start).String(),
		"remote_addr", r.RemoteAddr,
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
