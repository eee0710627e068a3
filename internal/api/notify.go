package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sellerpulse/notifier/internal/domain"
	"github.com/sellerpulse/notifier/internal/engine"
)

type NotifyHandler struct {
	enqueuer *engine.Enqueuer
}

func NewNotifyHandler(q *engine.Enqueuer) *NotifyHandler {
	return &NotifyHandler{enqueuer: q}
}

type testNotifyRequest struct {
	UserID           int64           `json:"user_id"`
	NotificationType string          `json:"notification_type"`
	TestData         json.RawMessage `json:"test_data,omitempty"`
}

// Test queues a diagnostic notification straight onto the delivery queue,
// bypassing detection, filtering and grouping. Used for operational
// verification of a user's webhook wiring.
func (h *NotifyHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req testNotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID <= 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !domain.EventType(req.NotificationType).Valid() {
		respondError(w, http.StatusBadRequest, "unknown notification_type")
		return
	}
	if len(req.TestData) > 0 && !json.Valid(req.TestData) {
		respondError(w, http.StatusBadRequest, "test_data must be valid JSON")
		return
	}

	var data any
	if len(req.TestData) > 0 {
		data = req.TestData
	} else {
		data = map[string]any{}
	}

	typ := domain.EventType(req.NotificationType)
	payload := domain.WebhookPayload{
		Type:      req.NotificationType,
		UserID:    req.UserID,
		Data:      data,
		Summary:   "Test notification",
		CreatedAt: time.Now(),
		Priority:  domain.PriorityFor(typ),
		Events: []domain.EventKey{{
			UserID:    req.UserID,
			EventType: typ,
			EntityID:  "test-" + uuid.NewString(),
		}},
	}

	if err := h.enqueuer.EnqueuePayload(r.Context(), req.UserID, payload); err != nil {
		if errors.Is(err, engine.ErrNoActiveEndpoint) {
			respondError(w, http.StatusNotFound, "no active webhook endpoint for user")
			return
		}
		respondError(w, http.StatusServiceUnavailable, "failed to queue notification")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
