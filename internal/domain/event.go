package domain

import (
	"time"
)

// EventType classifies a detected change in marketplace data.
type EventType string

const (
	EventNewOrder           EventType = "new_order"
	EventOrderStatusChanged EventType = "order_status_changed"
	EventOrderCancelled     EventType = "order_cancelled"
	EventOrderReturned      EventType = "order_returned"
	EventNegativeReview     EventType = "negative_review"
	EventCriticalStock      EventType = "critical_stock"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventNewOrder, EventOrderStatusChanged, EventOrderCancelled,
		EventOrderReturned, EventNegativeReview, EventCriticalStock:
		return true
	}
	return false
}

// Priority is the delivery priority derived from the event type.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// PriorityFor maps an event type to its delivery priority.
// Cancellations and stock-outs are the ones a seller wants to see first.
func PriorityFor(t EventType) Priority {
	switch t {
	case EventOrderCancelled, EventCriticalStock:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// EventData is the per-type payload of a DomainEvent. Each variant carries
// the fields of exactly one event category, so a malformed or missing field
// is a compile error rather than a silently dropped map key.
type EventData interface {
	// EntityID returns the stable marketplace identifier of the source
	// entity (order id, SKU, review id). Part of the idempotence key.
	EntityID() string
}

// OrderEventData is the payload for new_order, order_status_changed,
// order_cancelled and order_returned events.
type OrderEventData struct {
	OrderID     string `json:"order_id"`
	ProductName string `json:"product_name,omitempty"`
	Price       string `json:"price,omitempty"`
	OldStatus   string `json:"old_status,omitempty"`
	NewStatus   string `json:"new_status,omitempty"`
}

func (d OrderEventData) EntityID() string { return d.OrderID }

// StockEventData is the payload for critical_stock events.
type StockEventData struct {
	SKU         string `json:"sku"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	Threshold   int    `json:"threshold"`
	Warehouse   string `json:"warehouse,omitempty"`
}

func (d StockEventData) EntityID() string { return d.SKU }

// ReviewEventData is the payload for negative_review events.
type ReviewEventData struct {
	ReviewID    string `json:"review_id"`
	ProductID   string `json:"product_id,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	Rating      int    `json:"rating"`
	Text        string `json:"text,omitempty"`
}

func (d ReviewEventData) EntityID() string { return d.ReviewID }

// DomainEvent is an immutable record of one detected change for one user.
// Created by the detector, consumed exactly once by the filter/group stage.
type DomainEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	UserID     int64     `json:"user_id"`
	Data       EventData `json:"data"`
	OccurredAt time.Time `json:"occurred_at"`
	Priority   Priority  `json:"priority"`
}

// EntityID returns the source entity identifier of the event.
func (e DomainEvent) EntityID() string {
	if e.Data == nil {
		return ""
	}
	return e.Data.EntityID()
}
