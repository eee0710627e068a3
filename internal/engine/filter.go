package engine

import (
	"github.com/sellerpulse/notifier/internal/domain"
)

// Allows reports whether an event should produce a notification under the
// user's settings. Pure predicate: the master switch must be on, the
// category toggle for the event's type must be on, and negative reviews
// must be at or below the user's rating threshold.
func Allows(e domain.DomainEvent, s domain.NotificationSettings) bool {
	if !s.NotificationsEnabled {
		return false
	}

	switch e.Type {
	case domain.EventNewOrder:
		return s.NewOrdersEnabled
	case domain.EventOrderStatusChanged, domain.EventOrderCancelled, domain.EventOrderReturned:
		return s.OrderStatusEnabled
	case domain.EventNegativeReview:
		if !s.NegativeReviewsEnabled {
			return false
		}
		d, ok := e.Data.(domain.ReviewEventData)
		return ok && d.Rating <= s.ReviewRatingThreshold
	case domain.EventCriticalStock:
		return s.CriticalStocksEnabled
	default:
		return false
	}
}
