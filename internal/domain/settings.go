package domain

import (
	"fmt"
	"time"
)

// Limits enforced at the settings-update boundary. Values outside these
// ranges never reach the filter or grouping stages.
const (
	MinReviewRatingThreshold = 0
	MaxReviewRatingThreshold = 5
	MinGroupSize             = 1
	MaxGroupSizeLimit        = 50
	MinGroupTimeoutSec       = 1
	MaxGroupTimeoutSec       = 300
)

// NotificationSettings is one user's notification configuration. Read-only
// on the hot path; mutated only through the settings-update operation.
type NotificationSettings struct {
	UserID                 int64     `json:"user_id"`
	NotificationsEnabled   bool      `json:"notifications_enabled"`
	NewOrdersEnabled       bool      `json:"new_orders_enabled"`
	OrderStatusEnabled     bool      `json:"order_status_enabled"`
	NegativeReviewsEnabled bool      `json:"negative_reviews_enabled"`
	CriticalStocksEnabled  bool      `json:"critical_stocks_enabled"`
	ReviewRatingThreshold  int       `json:"review_rating_threshold"`
	GroupingEnabled        bool      `json:"grouping_enabled"`
	MaxGroupSize           int       `json:"max_group_size"`
	GroupTimeoutSec        int       `json:"group_timeout_sec"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// DefaultSettings returns the configuration applied to a user who has never
// changed anything: everything on, reviews at 3 stars and below, grouping
// off.
func DefaultSettings(userID int64) NotificationSettings {
	return NotificationSettings{
		UserID:                 userID,
		NotificationsEnabled:   true,
		NewOrdersEnabled:       true,
		OrderStatusEnabled:     true,
		NegativeReviewsEnabled: true,
		CriticalStocksEnabled:  true,
		ReviewRatingThreshold:  3,
		GroupingEnabled:        false,
		MaxGroupSize:           10,
		GroupTimeoutSec:        30,
	}
}

// GroupTimeout returns the grouping window as a duration.
func (s NotificationSettings) GroupTimeout() time.Duration {
	return time.Duration(s.GroupTimeoutSec) * time.Second
}

// UpdateSettingsRequest is a partial settings update. Only non-nil fields
// are applied.
type UpdateSettingsRequest struct {
	NotificationsEnabled   *bool `json:"notifications_enabled,omitempty"`
	NewOrdersEnabled       *bool `json:"new_orders_enabled,omitempty"`
	OrderStatusEnabled     *bool `json:"order_status_enabled,omitempty"`
	NegativeReviewsEnabled *bool `json:"negative_reviews_enabled,omitempty"`
	CriticalStocksEnabled  *bool `json:"critical_stocks_enabled,omitempty"`
	ReviewRatingThreshold  *int  `json:"review_rating_threshold,omitempty"`
	GroupingEnabled        *bool `json:"grouping_enabled,omitempty"`
	MaxGroupSize           *int  `json:"max_group_size,omitempty"`
	GroupTimeoutSec        *int  `json:"group_timeout_sec,omitempty"`
}

// Validate checks every provided field against its allowed range.
func (r UpdateSettingsRequest) Validate() error {
	if r.ReviewRatingThreshold != nil {
		if *r.ReviewRatingThreshold < MinReviewRatingThreshold || *r.ReviewRatingThreshold > MaxReviewRatingThreshold {
			return fmt.Errorf("review_rating_threshold must be between %d and %d", MinReviewRatingThreshold, MaxReviewRatingThreshold)
		}
	}
	if r.MaxGroupSize != nil {
		if *r.MaxGroupSize < MinGroupSize || *r.MaxGroupSize > MaxGroupSizeLimit {
			return fmt.Errorf("max_group_size must be between %d and %d", MinGroupSize, MaxGroupSizeLimit)
		}
	}
	if r.GroupTimeoutSec != nil {
		if *r.GroupTimeoutSec < MinGroupTimeoutSec || *r.GroupTimeoutSec > MaxGroupTimeoutSec {
			return fmt.Errorf("group_timeout_sec must be between %d and %d", MinGroupTimeoutSec, MaxGroupTimeoutSec)
		}
	}
	return nil
}

// Apply returns a copy of s with the non-nil fields of r applied. Callers
// must Validate first.
func (r UpdateSettingsRequest) Apply(s NotificationSettings) NotificationSettings {
	if r.NotificationsEnabled != nil {
		s.NotificationsEnabled = *r.NotificationsEnabled
	}
	if r.NewOrdersEnabled != nil {
		s.NewOrdersEnabled = *r.NewOrdersEnabled
	}
	if r.OrderStatusEnabled != nil {
		s.OrderStatusEnabled = *r.OrderStatusEnabled
	}
	if r.NegativeReviewsEnabled != nil {
		s.NegativeReviewsEnabled = *r.NegativeReviewsEnabled
	}
	if r.CriticalStocksEnabled != nil {
		s.CriticalStocksEnabled = *r.CriticalStocksEnabled
	}
	if r.ReviewRatingThreshold != nil {
		s.ReviewRatingThreshold = *r.ReviewRatingThreshold
	}
	if r.GroupingEnabled != nil {
		s.GroupingEnabled = *r.GroupingEnabled
	}
	if r.MaxGroupSize != nil {
		s.MaxGroupSize = *r.MaxGroupSize
	}
	if r.GroupTimeoutSec != nil {
		s.GroupTimeoutSec = *r.GroupTimeoutSec
	}
	return s
}
