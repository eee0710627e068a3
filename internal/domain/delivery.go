package domain

import (
	"time"
)

// DeliveryAttempt is one try to deliver a notification to a user's webhook.
type DeliveryAttempt struct {
	ID             string     `json:"id"`
	NotificationID string     `json:"notification_id"`
	UserID         int64      `json:"user_id"`
	AttemptNumber  int        `json:"attempt_number"`
	Status         string     `json:"status"`
	HTTPStatusCode *int       `json:"http_status_code,omitempty"`
	ResponseBody   *string    `json:"response_body,omitempty"`
	ResponseTimeMs *int       `json:"response_time_ms,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DeadLetter is a notification that exhausted its retries. It is kept for
// operator review; nothing requeues it automatically.
type DeadLetter struct {
	ID             string     `json:"id"`
	NotificationID string     `json:"notification_id"`
	UserID         int64      `json:"user_id"`
	Payload        []byte     `json:"payload,omitempty"`
	TotalAttempts  int        `json:"total_attempts"`
	LastError      *string    `json:"last_error,omitempty"`
	LastHTTPStatus *int       `json:"last_http_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
}

// HistoryEntry is a durable record of one delivered event. The
// (UserID, EventType, EntityID) tuple is the idempotence key.
type HistoryEntry struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	EventType   EventType `json:"event_type"`
	EntityID    string    `json:"entity_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}
