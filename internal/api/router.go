package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sellerpulse/notifier/internal/engine"
	"github.com/sellerpulse/notifier/internal/store"
	ws "github.com/sellerpulse/notifier/internal/websocket"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, pipeline *engine.Pipeline, enqueuer *engine.Enqueuer, cb *engine.CircuitBreaker, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	syncHandler := NewSyncHandler(pipeline)
	userHandler := NewUserHandler(pgStore, cb)
	notifyHandler := NewNotifyHandler(enqueuer)
	deliveryHandler := NewDeliveryHandler(pgStore)
	dlqHandler := NewDeadLetterHandler(pgStore)
	metricsHandler := NewMetricsHandler(pgStore, pipeline, enqueuer, hub)

	// Live delivery feed for the ops dashboard
	r.Get("/ws", hub.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Post("/sync", syncHandler.Ingest)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/settings", userHandler.GetSettings)
			r.Patch("/settings", userHandler.UpdateSettings)
			r.Put("/webhook", userHandler.RegisterWebhook)
			r.Delete("/webhook", userHandler.DeactivateWebhook)
			r.Get("/webhook/health", userHandler.WebhookHealth)
			r.Get("/history", userHandler.History)
		})

		r.Post("/notifications/test", notifyHandler.Test)

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", deliveryHandler.List)
			r.Get("/{id}", deliveryHandler.Get)
		})

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", dlqHandler.List)
			r.Get("/{id}", dlqHandler.Get)
			r.Post("/{id}/resolve", dlqHandler.Resolve)
		})

		r.Get("/metrics", metricsHandler.Metrics)
	})

	return r
}
