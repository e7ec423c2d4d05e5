package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushHandler clears the whole avatar cache. It must sit behind an
// authentication middleware.
type FlushHandler struct {
	cache  Flusher
	logger *slog.Logger
}

func NewFlushHandler(cache Flusher, logger *slog.Logger) *FlushHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlushHandler{cache: cache, logger: logger}
}

func (h *FlushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	w.Header().Set("Content-Type", "application/json")
	if err := h.cache.Flush(r.Context()); err != nil {
		h.logger.Error("cache flush failed",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   err.Error(),
			Code:    http.StatusInternalServerError,
			Message: "failed to flush cache",
		})
		return
	}

	h.logger.Warn("cache flushed",
		"duration", time.Since(start).String(),
		"remote_addr", r.RemoteAddr,
	)
	w.Write([]byte(`{"status":"flushed"}`))
}
