package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sellerpulse/notifier/internal/domain"
	"github.com/sellerpulse/notifier/internal/engine"
	"github.com/sellerpulse/notifier/internal/store"
	ws "github.com/sellerpulse/notifier/internal/websocket"
)

// Store is the persistence surface the deliverer needs. PostgresStore
// implements it; tests use an in-memory fake.
type Store interface {
	RecordDeliveryAttempt(ctx context.Context, rec store.DeliveryAttemptRecord) error
	InsertDeadLetter(ctx context.Context, rec store.DeadLetterRecord) error
	// RecordDelivered upserts a history row and reports whether it was new.
	RecordDelivered(ctx context.Context, key domain.EventKey) (bool, error)
}

// Deliverer performs one HTTP delivery attempt per job and decides what
// happens next: success writes the notification history (the durability
// point), a retryable failure re-queues the job with backoff, an exhausted
// job goes to the dead letter queue and is never retried automatically.
type Deliverer struct {
	httpClient     *http.Client
	redisClient    *redis.Client
	circuitBreaker *engine.CircuitBreaker
	rateLimiter    *engine.RateLimiter
	hub            *ws.Hub
	store          Store
	backoff        func(attempt int) time.Duration
	logger         *slog.Logger
}

// NewDeliverer creates a deliverer with a bounded-timeout HTTP client.
func NewDeliverer(st Store, rdb *redis.Client, cb *engine.CircuitBreaker, rl *engine.RateLimiter, hub *ws.Hub, timeout time.Duration, backoff func(int) time.Duration, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		httpClient:     &http.Client{Timeout: timeout},
		redisClient:    rdb,
		circuitBreaker: cb,
		rateLimiter:    rl,
		hub:            hub,
		store:          st,
		backoff:        backoff,
		logger:         logger,
	}
}

// Deliver sends the webhook payload to the user's endpoint via HTTP POST,
// signed with HMAC-SHA256, and records the outcome.
func (d *Deliverer) Deliver(ctx context.Context, job engine.DeliveryJob) {
	// Per-endpoint pacing: a rate-limited job goes back on the queue
	// shortly, without consuming an attempt.
	if !d.rateLimiter.Allow(ctx, job.UserID, job.RateLimitPerSecond) {
		d.requeue(ctx, job, 100*time.Millisecond, false)
		return
	}

	// A tripped breaker means the endpoint is down; don't burn attempts on
	// it, check again after the cooldown.
	if _, allowed := d.circuitBreaker.AllowRequest(ctx, job.UserID); !allowed {
		d.logger.Debug("circuit open, deferring delivery",
			"notification_id", job.NotificationID,
			"user_id", job.UserID,
		)
		d.requeue(ctx, job, 5*time.Second, false)
		return
	}

	start := time.Now()
	statusCode, responseBody, errMsg := d.post(ctx, job)
	elapsed := time.Since(start).Milliseconds()

	if statusCode != nil && *statusCode >= 200 && *statusCode < 300 {
		d.onSuccess(ctx, job, statusCode, responseBody, elapsed)
		return
	}
	if errMsg == "" && statusCode != nil {
		errMsg = fmt.Sprintf("endpoint returned status %d", *statusCode)
	}
	d.onFailure(ctx, job, statusCode, errMsg, elapsed)
}

// post performs the HTTP request. Returns the status code (nil on network
// failure), a truncated response body, and an error message.
func (d *Deliverer) post(ctx context.Context, job engine.DeliveryJob) (*int, string, string) {
	signature := computeHMAC(job.Payload, job.SecretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.EndpointURL, bytes.NewReader(job.Payload))
	if err != nil {
		return nil, "", fmt.Sprintf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Type", job.PayloadType)
	req.Header.Set("X-Webhook-ID", job.NotificationID)
	req.Header.Set("X-Webhook-Attempt", fmt.Sprintf("%d", job.Attempt))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// Limit to 1KB — the receiver only needs to say 2xx.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &resp.StatusCode, string(body), ""
}

// onSuccess writes the notification history, then the attempt record.
// Delivery counts as complete only after the history write: if it fails the
// job is retried, and the receiver deduplicates the repeat POST by the
// idempotence keys in the payload.
func (d *Deliverer) onSuccess(ctx context.Context, job engine.DeliveryJob, statusCode *int, responseBody string, elapsed int64) {
	for _, key := range job.Events {
		if _, err := d.store.RecordDelivered(ctx, key); err != nil {
			d.logger.Error("history write failed after successful POST",
				"notification_id", job.NotificationID,
				"user_id", job.UserID,
				"entity_id", key.EntityID,
				"error", err,
			)
			msg := fmt.Sprintf("history write failed: %v", err)
			d.recordAttempt(ctx, job, "failed", statusCode, responseBody, msg, elapsed, nil)
			d.retryOrDeadLetter(ctx, job, statusCode, msg)
			return
		}
	}

	d.circuitBreaker.RecordSuccess(ctx, job.UserID)
	d.recordAttempt(ctx, job, "success", statusCode, responseBody, "", elapsed, nil)

	d.hub.Broadcast(ws.DeliveryEvent{
		Type:           "delivery_success",
		NotificationID: job.NotificationID,
		UserID:         job.UserID,
		EndpointURL:    job.EndpointURL,
		PayloadType:    job.PayloadType,
		Attempt:        job.Attempt,
		StatusCode:     statusCode,
		ResponseMs:     elapsed,
		Timestamp:      time.Now(),
	})

	d.logger.Info("delivery successful",
		"notification_id", job.NotificationID,
		"user_id", job.UserID,
		"attempt", job.Attempt,
		"status_code", *statusCode,
		"response_time_ms", elapsed,
	)
}

func (d *Deliverer) onFailure(ctx context.Context, job engine.DeliveryJob, statusCode *int, errMsg string, elapsed int64) {
	d.circuitBreaker.RecordFailure(ctx, job.UserID)

	var nextRetry *time.Time
	if job.Attempt < job.MaxRetries {
		at := time.Now().Add(d.backoff(job.Attempt))
		nextRetry = &at
	}
	d.recordAttempt(ctx, job, "failed", statusCode, "", errMsg, elapsed, nextRetry)

	d.logger.Warn("delivery failed",
		"notification_id", job.NotificationID,
		"user_id", job.UserID,
		"attempt", job.Attempt,
		"max_retries", job.MaxRetries,
		"error", errMsg,
		"status_code", statusCode,
	)

	d.retryOrDeadLetter(ctx, job, statusCode, errMsg)

	eventType := "delivery_retrying"
	if job.Attempt >= job.MaxRetries {
		eventType = "delivery_dlq"
	}
	d.hub.Broadcast(ws.DeliveryEvent{
		Type:           eventType,
		NotificationID: job.NotificationID,
		UserID:         job.UserID,
		EndpointURL:    job.EndpointURL,
		PayloadType:    job.PayloadType,
		Attempt:        job.Attempt,
		StatusCode:     statusCode,
		ResponseMs:     elapsed,
		Error:          errMsg,
		Timestamp:      time.Now(),
	})
}

// retryOrDeadLetter re-queues the job with backoff, or moves it to the dead
// letter queue once attempts are exhausted. Dead-lettered notifications are
// an accepted loss: an operator can inspect them, nothing requeues them.
func (d *Deliverer) retryOrDeadLetter(ctx context.Context, job engine.DeliveryJob, statusCode *int, errMsg string) {
	if job.Attempt < job.MaxRetries {
		d.requeue(ctx, job, d.backoff(job.Attempt), true)
		return
	}

	err := d.store.InsertDeadLetter(context.WithoutCancel(ctx), store.DeadLetterRecord{
		NotificationID: job.NotificationID,
		UserID:         job.UserID,
		Payload:        job.Payload,
		TotalAttempts:  job.Attempt,
		LastHTTPStatus: statusCode,
		LastError:      errMsg,
	})
	if err != nil {
		d.logger.Error("failed to insert dead letter",
			"notification_id", job.NotificationID,
			"user_id", job.UserID,
			"error", err,
		)
		return
	}

	d.logger.Warn("delivery retries exhausted, dead-lettered",
		"notification_id", job.NotificationID,
		"user_id", job.UserID,
		"total_attempts", job.Attempt,
	)
}

// requeue puts the job back on the delivery queue after the given delay.
// bump increments the attempt counter; pacing deferrals keep it unchanged.
func (d *Deliverer) requeue(ctx context.Context, job engine.DeliveryJob, delay time.Duration, bump bool) {
	if bump {
		job.Attempt++
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		d.logger.Error("failed to marshal job for requeue", "notification_id", job.NotificationID, "error", err)
		return
	}

	// A claimed job with no queue entry is gone for good, so the write has
	// to go through even when the caller's context is already cancelled.
	err = d.redisClient.ZAdd(context.WithoutCancel(ctx), engine.DeliveryQueueKey, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMicro()),
		Member: string(jobBytes),
	}).Err()
	if err != nil {
		d.logger.Error("failed to requeue job", "notification_id", job.NotificationID, "error", err)
	}
}

func (d *Deliverer) recordAttempt(ctx context.Context, job engine.DeliveryJob, status string, statusCode *int, responseBody, errMsg string, elapsed int64, nextRetry *time.Time) {
	err := d.store.RecordDeliveryAttempt(ctx, store.DeliveryAttemptRecord{
		NotificationID: job.NotificationID,
		UserID:         job.UserID,
		AttemptNumber:  job.Attempt,
		Status:         status,
		HTTPStatusCode: statusCode,
		ResponseBody:   responseBody,
		ResponseTimeMs: int(elapsed),
		ErrorMessage:   errMsg,
		NextRetryAt:    nextRetry,
	})
	if err != nil {
		d.logger.Error("failed to record delivery attempt",
			"notification_id", job.NotificationID,
			"user_id", job.UserID,
			"error", err,
		)
	}
}

// computeHMAC generates an HMAC-SHA256 signature for the payload.
func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
