package api

import (
	"net/http"

	"github.com/2rkf/nekoi/metrics"
)

// SnapshotSource is anything that can report quota statistics.
// *metrics.Metrics satisfies it.
type SnapshotSource interface {
	GetSnapshot() *metrics.Snapshot
}

// MetricsHandler serves GET /metrics as a JSON snapshot.
type MetricsHandler struct {
	source SnapshotSource
}

func NewMetricsHandler(source SnapshotSource) *MetricsHandler {
	return &MetricsHandler{source: source}
}

func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, h.source.GetSnapshot())
}
