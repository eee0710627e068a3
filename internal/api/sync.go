package api

import (
	"encoding/json"
	"net/http"

	"github.com/sellerpulse/notifier/internal/domain"
	"github.com/sellerpulse/notifier/internal/engine"
)

type SyncHandler struct {
	pipeline *engine.Pipeline
}

func NewSyncHandler(p *engine.Pipeline) *SyncHandler {
	return &SyncHandler{pipeline: p}
}

type syncRequest struct {
	UserID     int64             `json:"user_id"`
	EntityType domain.EntityType `json:"entity_type"`
	// Previous is optional: when omitted the last stored snapshot is used,
	// and the very first sync for a user just records a baseline.
	Previous *domain.Snapshot `json:"previous,omitempty"`
	Current  domain.Snapshot  `json:"current"`
}

// Ingest accepts one sync batch from the sync-job collaborator and runs it
// through the notification pipeline.
func (h *SyncHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID <= 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !req.EntityType.Valid() {
		respondError(w, http.StatusBadRequest, "entity_type must be orders, stocks or reviews")
		return
	}

	result, err := h.pipeline.ProcessSync(r.Context(), req.UserID, req.EntityType, req.Previous, req.Current)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to process sync batch")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
