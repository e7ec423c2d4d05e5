package handlers

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/muandane/ziria/internal/cache"
)

type CacheStats struct {
	Hits          uint64       `json:"hits"`
	Misses        uint64       `json:"misses"`
	TotalRequests uint64       `json:"total_requests"`
	CacheHitRatio float64      `json:"cache_hit_ratio"`
	Backend       *cache.Stats `json:"backend,omitempty"`
}

// StatsSource reports backend statistics when the backend keeps them.
type StatsSource interface {
	Stats() (cache.Stats, bool)
}

// StatsHandler counts avatar cache lookups and serves them as JSON.
type StatsHandler struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	source StatsSource
}

// NewStatsHandler accepts a nil source.
func NewStatsHandler(source StatsSource) *StatsHandler {
	return &StatsHandler{source: source}
}

func (h *StatsHandler) RecordHit() {
	h.hits.Add(1)
}

func (h *StatsHandler) RecordMiss() {
	h.misses.Add(1)
}

func (h *StatsHandler) Snapshot() CacheStats {
	s := CacheStats{
		Hits:   h.hits.Load(),
		Misses: h.misses.Load(),
	}
	s.TotalRequests = s.Hits + s.Misses
	if s.TotalRequests > 0 {
		s.CacheHitRatio = float64(s.Hits) / float64(s.TotalRequests) * 100
	}
	if h.source != nil {
		if backend, ok := h.source.Stats(); ok {
			s.Backend = &backend
		}
	}
	return s
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Snapshot())
}
