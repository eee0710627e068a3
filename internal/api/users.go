package api

import (
	"encoding/json"
	"net/http"

	"github.com/sellerpulse/notifier/internal/domain"
	"github.com/sellerpulse/notifier/internal/engine"
	"github.com/sellerpulse/notifier/internal/store"
)

type UserHandler struct {
	store          *store.PostgresStore
	circuitBreaker *engine.CircuitBreaker
}

func NewUserHandler(s *store.PostgresStore, cb *engine.CircuitBreaker) *UserHandler {
	return &UserHandler{store: s, circuitBreaker: cb}
}

func (h *UserHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	settings, err := h.store.GetSettings(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// UpdateSettings applies a partial settings update. Out-of-range values are
// rejected here and never reach the filter stage.
func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req domain.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := h.store.UpdateSettings(r.Context(), userID, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

func (h *UserHandler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req domain.RegisterEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WebhookURL == "" {
		respondError(w, http.StatusBadRequest, "webhook_url is required")
		return
	}

	ep, err := h.store.RegisterEndpoint(r.Context(), userID, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to register webhook")
		return
	}

	respondJSON(w, http.StatusCreated, domain.RegisterEndpointResponse{
		UserID:     ep.UserID,
		WebhookURL: ep.WebhookURL,
		SecretKey:  ep.SecretKey,
	})
}

func (h *UserHandler) DeactivateWebhook(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.store.DeactivateEndpoint(r.Context(), userID); err != nil {
		respondError(w, http.StatusNotFound, "webhook endpoint not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// WebhookHealth reports the endpoint's circuit breaker state.
func (h *UserHandler) WebhookHealth(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	ep, err := h.store.GetEndpoint(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get webhook endpoint")
		return
	}
	if ep == nil {
		respondError(w, http.StatusNotFound, "webhook endpoint not found")
		return
	}

	state := h.circuitBreaker.GetState(r.Context(), userID)
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":     ep.UserID,
		"webhook_url": ep.WebhookURL,
		"is_active":   ep.IsActive,
		"circuit":     state,
	})
}

func (h *UserHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	entries, err := h.store.ListHistory(r.Context(), userID, queryLimit(r, 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	respondJSON(w, http.StatusOK, entries)
}
