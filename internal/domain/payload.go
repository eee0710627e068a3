package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PayloadTypeGroup is the wire `type` used when a payload batches more than
// one event. Single-event payloads use the event's own type.
const PayloadTypeGroup = "group"

// EventKey is the idempotence key of one source event as it appears on the
// wire. The receiver deduplicates on it; so does the history store.
type EventKey struct {
	UserID    int64     `json:"user_id"`
	EventType EventType `json:"event_type"`
	EntityID  string    `json:"entity_id"`
}

// Key returns the event's idempotence key.
func (e DomainEvent) Key() EventKey {
	return EventKey{UserID: e.UserID, EventType: e.Type, EntityID: e.EntityID()}
}

// GroupedEvent is one entry of a group payload's data array.
type GroupedEvent struct {
	Type       EventType `json:"type"`
	Data       EventData `json:"data"`
	OccurredAt time.Time `json:"occurred_at"`
	Priority   Priority  `json:"priority"`
}

// WebhookPayload is the wire contract POSTed to the bot endpoint. Data is
// an object for single events and an array of GroupedEvent for groups. The
// receiver acknowledges with any 2xx status.
type WebhookPayload struct {
	Type      string     `json:"type"`
	UserID    int64      `json:"user_id"`
	Data      any        `json:"data"`
	Summary   string     `json:"summary"`
	CreatedAt time.Time  `json:"created_at"`
	Priority  Priority   `json:"priority"`
	Events    []EventKey `json:"events"`
}

// NewEventPayload builds the wire payload for a single event.
func NewEventPayload(e DomainEvent) WebhookPayload {
	return WebhookPayload{
		Type:      string(e.Type),
		UserID:    e.UserID,
		Data:      e.Data,
		Summary:   Summarize(e),
		CreatedAt: e.OccurredAt,
		Priority:  e.Priority,
		Events:    []EventKey{e.Key()},
	}
}

// NewGroupPayload builds the wire payload for a sealed group. A group of
// one collapses to a single-event payload.
func NewGroupPayload(g *NotificationGroup) WebhookPayload {
	if len(g.Events) == 1 {
		return NewEventPayload(g.Events[0])
	}

	entries := make([]GroupedEvent, 0, len(g.Events))
	keys := make([]EventKey, 0, len(g.Events))
	for _, e := range g.Events {
		entries = append(entries, GroupedEvent{
			Type:       e.Type,
			Data:       e.Data,
			OccurredAt: e.OccurredAt,
			Priority:   e.Priority,
		})
		keys = append(keys, e.Key())
	}

	return WebhookPayload{
		Type:      PayloadTypeGroup,
		UserID:    g.UserID,
		Data:      entries,
		Summary:   summarizeGroup(g),
		CreatedAt: g.SealedAt,
		Priority:  g.MaxPriority(),
		Events:    keys,
	}
}

// Summarize renders a one-line human-readable description of an event.
func Summarize(e DomainEvent) string {
	switch d := e.Data.(type) {
	case OrderEventData:
		switch e.Type {
		case EventNewOrder:
			if d.ProductName != "" {
				return fmt.Sprintf("New order %s: %s", d.OrderID, d.ProductName)
			}
			return fmt.Sprintf("New order %s", d.OrderID)
		case EventOrderCancelled:
			return fmt.Sprintf("Order %s was cancelled", d.OrderID)
		case EventOrderReturned:
			return fmt.Sprintf("Order %s was returned", d.OrderID)
		default:
			return fmt.Sprintf("Order %s: %s -> %s", d.OrderID, d.OldStatus, d.NewStatus)
		}
	case StockEventData:
		name := d.ProductName
		if name == "" {
			name = d.SKU
		}
		return fmt.Sprintf("Critical stock: %s down to %d", name, d.Quantity)
	case ReviewEventData:
		name := d.ProductName
		if name == "" {
			name = d.ProductID
		}
		return fmt.Sprintf("New %d-star review on %s", d.Rating, name)
	default:
		return string(e.Type)
	}
}

var typeNouns = map[EventType]string{
	EventNewOrder:           "new orders",
	EventOrderStatusChanged: "status changes",
	EventOrderCancelled:     "cancellations",
	EventOrderReturned:      "returns",
	EventNegativeReview:     "negative reviews",
	EventCriticalStock:      "critical stocks",
}

func summarizeGroup(g *NotificationGroup) string {
	counts := make(map[EventType]int)
	for _, e := range g.Events {
		counts[e.Type]++
	}

	types := make([]EventType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%d %s", counts[t], typeNouns[t]))
	}

	return fmt.Sprintf("%d updates: %s", len(g.Events), strings.Join(parts, ", "))
}
