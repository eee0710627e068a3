package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sellerpulse/notifier/internal/store"
)

type DeliveryHandler struct {
	store *store.PostgresStore
}

func NewDeliveryHandler(s *store.PostgresStore) *DeliveryHandler {
	return &DeliveryHandler{store: s}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	notificationID := r.URL.Query().Get("notification_id")
	status := r.URL.Query().Get("status")

	var userID int64
	if s := r.URL.Query().Get("user_id"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			userID = n
		}
	}

	attempts, err := h.store.ListDeliveryAttempts(r.Context(), notificationID, userID, status, queryLimit(r, 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list delivery attempts")
		return
	}

	respondJSON(w, http.StatusOK, attempts)
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	attempt, err := h.store.GetDeliveryAttempt(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get delivery attempt")
		return
	}
	if attempt == nil {
		respondError(w, http.StatusNotFound, "delivery attempt not found")
		return
	}

	respondJSON(w, http.StatusOK, attempt)
}
