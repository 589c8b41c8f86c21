package api

import (
	"encoding/json"
	"net/http"
)

// StatsFunc returns a JSON-encodable snapshot of service statistics.
type StatsFunc func() any

// StatsHandler handles stats requests.
type StatsHandler struct {
	stats StatsFunc
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(stats StatsFunc) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if h.stats == nil {
		_, _ = w.Write([]byte("{}\n"))
		return
	}
	_ = json.NewEncoder(w).Encode(h.stats())
}
