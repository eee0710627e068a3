package api

import (
	"net/http"

	"github.com/sellerpulse/notifier/internal/engine"
	"github.com/sellerpulse/notifier/internal/store"
	ws "github.com/sellerpulse/notifier/internal/websocket"
)

type MetricsHandler struct {
	store    *store.PostgresStore
	pipeline *engine.Pipeline
	enqueuer *engine.Enqueuer
	hub      *ws.Hub
}

func NewMetricsHandler(s *store.PostgresStore, p *engine.Pipeline, q *engine.Enqueuer, hub *ws.Hub) *MetricsHandler {
	return &MetricsHandler{store: s, pipeline: p, enqueuer: q, hub: hub}
}

type metricsResponse struct {
	Delivery   *store.DeliveryMetrics `json:"delivery"`
	QueueDepth int64                  `json:"queue_depth"`
	OpenGroups int                    `json:"open_groups"`
	WSClients  int                    `json:"ws_clients"`
}

func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	delivery, err := h.store.GetDeliveryMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	depth, err := h.enqueuer.QueueDepth(r.Context())
	if err != nil {
		depth = -1 // metrics endpoint stays up even if Redis is down
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		Delivery:   delivery,
		QueueDepth: depth,
		OpenGroups: h.pipeline.OpenGroups(),
		WSClients:  h.hub.ClientCount(),
	})
}
