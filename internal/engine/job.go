package engine

import (
	"encoding/json"

	"github.com/sellerpulse/notifier/internal/domain"
)

// DeliveryQueueKey is the Redis sorted set holding pending deliveries.
// The score is the time (µs) at which the job becomes ready, which is how
// retry backoff is scheduled: failed jobs are re-added with a future score.
const DeliveryQueueKey = "delivery_queue"

// DeliveryJob is a single webhook delivery task queued in Redis.
type DeliveryJob struct {
	NotificationID     string            `json:"notification_id"`
	UserID             int64             `json:"user_id"`
	EndpointURL        string            `json:"endpoint_url"`
	Payload            json.RawMessage   `json:"payload"`
	SecretKey          string            `json:"secret_key"`
	PayloadType        string            `json:"payload_type"`
	Events             []domain.EventKey `json:"events"`
	Attempt            int               `json:"attempt"`
	MaxRetries         int               `json:"max_retries"`
	RateLimitPerSecond int               `json:"rate_limit_per_second"`
}
