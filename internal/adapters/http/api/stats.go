package api

import (
	"context"
	"net/http"

	"github.com/okian/tierboard/internal/domain/model"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) (map[string]any, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_stats"
	stats, err := h.statsProvider.GetStats(r.Context())
	if err != nil {
		writeError(w, model.Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
