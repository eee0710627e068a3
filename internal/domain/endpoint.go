package domain

import "time"

// WebhookEndpoint is a user's registered bot endpoint. The bot process
// registers one endpoint per user; notifications for that user are POSTed
// there.
type WebhookEndpoint struct {
	UserID             int64     `json:"user_id"`
	WebhookURL         string    `json:"webhook_url"`
	SecretKey          string    `json:"secret_key,omitempty"`
	IsActive           bool      `json:"is_active"`
	RateLimitPerSecond int       `json:"rate_limit_per_second"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RegisterEndpointRequest creates or replaces a user's webhook endpoint.
type RegisterEndpointRequest struct {
	WebhookURL         string `json:"webhook_url"`
	RateLimitPerSecond int    `json:"rate_limit_per_second,omitempty"`
}

// RegisterEndpointResponse returns the generated signing secret exactly
// once, at registration time.
type RegisterEndpointResponse struct {
	UserID     int64  `json:"user_id"`
	WebhookURL string `json:"webhook_url"`
	SecretKey  string `json:"secret_key"`
}
