package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func orderEvent(n string, typ EventType, priority Priority) DomainEvent {
	return DomainEvent{
		ID:         "evt-" + n,
		Type:       typ,
		UserID:     42,
		Data:       OrderEventData{OrderID: "o-" + n, ProductName: "Blue mug"},
		OccurredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Priority:   priority,
	}
}

func TestNewEventPayload_WireShape(t *testing.T) {
	e := orderEvent("1", EventNewOrder, PriorityMedium)
	p := NewEventPayload(e)

	if p.Type != "new_order" {
		t.Errorf("type = %s, want new_order", p.Type)
	}
	if p.UserID != 42 {
		t.Errorf("user_id = %d, want 42", p.UserID)
	}
	if p.Priority != PriorityMedium {
		t.Errorf("priority = %s, want MEDIUM", p.Priority)
	}
	if len(p.Events) != 1 || p.Events[0] != e.Key() {
		t.Errorf("events = %+v, want the event's own key", p.Events)
	}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// data is an object for single events, not an array.
	if _, ok := decoded["data"].(map[string]any); !ok {
		t.Errorf("data should be an object, got %T", decoded["data"])
	}
}

func TestNewGroupPayload(t *testing.T) {
	sealedAt := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	g := &NotificationGroup{
		UserID: 42,
		Events: []DomainEvent{
			orderEvent("1", EventNewOrder, PriorityMedium),
			orderEvent("2", EventNewOrder, PriorityMedium),
			orderEvent("3", EventOrderCancelled, PriorityHigh),
		},
		SealedAt: sealedAt,
		Reason:   SealSizeCap,
	}

	p := NewGroupPayload(g)
	if p.Type != PayloadTypeGroup {
		t.Errorf("type = %s, want %s", p.Type, PayloadTypeGroup)
	}
	if !p.CreatedAt.Equal(sealedAt) {
		t.Errorf("created_at = %v, want seal time", p.CreatedAt)
	}
	// One HIGH member escalates the whole payload.
	if p.Priority != PriorityHigh {
		t.Errorf("priority = %s, want HIGH", p.Priority)
	}
	if len(p.Events) != 3 {
		t.Errorf("events = %d keys, want 3", len(p.Events))
	}

	entries, ok := p.Data.([]GroupedEvent)
	if !ok {
		t.Fatalf("data should be []GroupedEvent, got %T", p.Data)
	}
	if len(entries) != 3 {
		t.Fatalf("data holds %d entries, want 3", len(entries))
	}
	// Arrival order preserved on the wire.
	if entries[0].Type != EventNewOrder || entries[2].Type != EventOrderCancelled {
		t.Errorf("entry order not preserved: %+v", entries)
	}

	if !strings.HasPrefix(p.Summary, "3 updates:") {
		t.Errorf("summary = %q, want a '3 updates:' prefix", p.Summary)
	}
	if !strings.Contains(p.Summary, "2 new orders") || !strings.Contains(p.Summary, "1 cancellations") {
		t.Errorf("summary = %q, missing per-type counts", p.Summary)
	}
}

func TestNewGroupPayload_SingleEventCollapses(t *testing.T) {
	g := &NotificationGroup{
		UserID:   42,
		Events:   []DomainEvent{orderEvent("1", EventNewOrder, PriorityMedium)},
		SealedAt: time.Now(),
		Reason:   SealTimeout,
	}

	p := NewGroupPayload(g)
	if p.Type != "new_order" {
		t.Errorf("size-1 group should collapse to the event's type, got %s", p.Type)
	}
	if _, ok := p.Data.(OrderEventData); !ok {
		t.Errorf("data should be the event data object, got %T", p.Data)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		e    DomainEvent
		want string
	}{
		{
			"new order with product",
			orderEvent("1", EventNewOrder, PriorityMedium),
			"New order o-1: Blue mug",
		},
		{
			"cancelled",
			orderEvent("1", EventOrderCancelled, PriorityHigh),
			"Order o-1 was cancelled",
		},
		{
			"critical stock",
			DomainEvent{
				Type: EventCriticalStock, UserID: 42,
				Data: StockEventData{SKU: "sku-1", ProductName: "Blue mug", Quantity: 2, Threshold: 3},
			},
			"Critical stock: Blue mug down to 2",
		},
		{
			"negative review",
			DomainEvent{
				Type: EventNegativeReview, UserID: 42,
				Data: ReviewEventData{ReviewID: "r-1", ProductName: "Blue mug", Rating: 1},
			},
			"New 1-star review on Blue mug",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summarize(tt.e); got != tt.want {
				t.Errorf("Summarize = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventKey(t *testing.T) {
	e := orderEvent("1", EventNewOrder, PriorityMedium)
	key := e.Key()

	if key.UserID != 42 || key.EventType != EventNewOrder || key.EntityID != "o-1" {
		t.Errorf("key = %+v", key)
	}

	// Same source entity, same key: the dedupe contract.
	if e.Key() != orderEvent("1", EventNewOrder, PriorityMedium).Key() {
		t.Error("keys for the same entity must be equal")
	}
}
