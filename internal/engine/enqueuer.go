package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sellerpulse/notifier/internal/domain"
)

// ErrNoActiveEndpoint is returned when a user has no registered webhook
// endpoint, or their endpoint is deactivated.
var ErrNoActiveEndpoint = errors.New("no active webhook endpoint")

// EndpointSource resolves a user's registered webhook endpoint.
type EndpointSource interface {
	GetEndpoint(ctx context.Context, userID int64) (*domain.WebhookEndpoint, error)
}

// HistorySource answers whether an event was already delivered.
type HistorySource interface {
	WasDelivered(ctx context.Context, key domain.EventKey) (bool, error)
}

// Enqueuer turns sealed groups into delivery jobs on the Redis queue. It is
// the hand-off point between the detection/grouping path and the worker
// pool: once a job is queued, a slow webhook endpoint cannot stall
// detection for other users.
type Enqueuer struct {
	endpoints  EndpointSource
	history    HistorySource
	redis      *redis.Client
	logger     *slog.Logger
	maxRetries int
}

// NewEnqueuer creates an enqueuer.
func NewEnqueuer(endpoints EndpointSource, history HistorySource, rdb *redis.Client, maxRetries int, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{
		endpoints:  endpoints,
		history:    history,
		redis:      rdb,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// EnqueueGroup queues one sealed group for delivery. Events already present
// in the notification history (e.g. reprocessed after a crash mid-sync) are
// dropped from the payload; a group left empty by that is not queued at
// all. A missing or inactive endpoint drops the group with a warning.
func (q *Enqueuer) EnqueueGroup(ctx context.Context, g *domain.NotificationGroup) error {
	ep, err := q.endpoints.GetEndpoint(ctx, g.UserID)
	if err != nil {
		return fmt.Errorf("resolving webhook endpoint: %w", err)
	}
	if ep == nil || !ep.IsActive {
		q.logger.Warn("dropping sealed group: no active webhook endpoint",
			"user_id", g.UserID,
			"size", len(g.Events),
		)
		return nil
	}

	fresh := q.dedupe(ctx, g)
	if len(fresh.Events) == 0 {
		q.logger.Info("dropping sealed group: all events already delivered",
			"user_id", g.UserID,
			"size", len(g.Events),
		)
		return nil
	}

	payload := domain.NewGroupPayload(fresh)
	return q.enqueue(ctx, ep, payload)
}

// EnqueuePayload queues an already-built payload, bypassing history
// dedupe. Used by the diagnostic test-notify endpoint.
func (q *Enqueuer) EnqueuePayload(ctx context.Context, userID int64, payload domain.WebhookPayload) error {
	ep, err := q.endpoints.GetEndpoint(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolving webhook endpoint: %w", err)
	}
	if ep == nil || !ep.IsActive {
		return fmt.Errorf("user %d: %w", userID, ErrNoActiveEndpoint)
	}
	return q.enqueue(ctx, ep, payload)
}

// QueueDepth returns the number of jobs waiting in the delivery queue.
func (q *Enqueuer) QueueDepth(ctx context.Context) (int64, error) {
	return q.redis.ZCard(ctx, DeliveryQueueKey).Result()
}

// dedupe returns a copy of the group without already-delivered events.
// History lookups are best-effort: on error the event is kept, since a
// duplicate delivery is tolerated and a lost one is not.
func (q *Enqueuer) dedupe(ctx context.Context, g *domain.NotificationGroup) *domain.NotificationGroup {
	kept := make([]domain.DomainEvent, 0, len(g.Events))
	for _, e := range g.Events {
		delivered, err := q.history.WasDelivered(ctx, e.Key())
		if err != nil {
			q.logger.Warn("history lookup failed, keeping event",
				"user_id", e.UserID,
				"event_type", e.Type,
				"entity_id", e.EntityID(),
				"error", err,
			)
			delivered = false
		}
		if delivered {
			continue
		}
		kept = append(kept, e)
	}

	fresh := *g
	fresh.Events = kept
	return &fresh
}

func (q *Enqueuer) enqueue(ctx context.Context, ep *domain.WebhookEndpoint, payload domain.WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	job := DeliveryJob{
		NotificationID:     uuid.NewString(),
		UserID:             ep.UserID,
		EndpointURL:        ep.WebhookURL,
		Payload:            body,
		SecretKey:          ep.SecretKey,
		PayloadType:        payload.Type,
		Events:             payload.Events,
		Attempt:            1,
		MaxRetries:         q.maxRetries,
		RateLimitPerSecond: ep.RateLimitPerSecond,
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling delivery job: %w", err)
	}

	err = q.redis.ZAdd(ctx, DeliveryQueueKey, redis.Z{
		Score:  float64(time.Now().UnixMicro()),
		Member: string(jobBytes),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing delivery job: %w", err)
	}

	q.logger.Info("delivery queued",
		"notification_id", job.NotificationID,
		"user_id", job.UserID,
		"payload_type", job.PayloadType,
		"events", len(job.Events),
	)
	return nil
}
