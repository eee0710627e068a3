package detector

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sellerpulse/notifier/internal/domain"
)

// Marketplace order statuses that terminate an order. A status change into
// one of these is sub-classified from order_status_changed.
var (
	cancelledStatuses = map[string]bool{
		"canceled":           true,
		"canceled_by_client": true,
		"declined_by_client": true,
	}
	returnedStatuses = map[string]bool{
		"return":   true,
		"returned": true,
	}
)

// Detector compares two snapshots of a user's marketplace data and emits
// domain events for the differences. Detection is a pure function of the
// two snapshots: no I/O, deterministic for the same inputs (up to emission
// order, which follows map iteration).
type Detector struct {
	stockThreshold int
	logger         *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates a detector. stockThreshold is the quantity at or below which
// a stock level counts as critical.
func New(stockThreshold int, logger *slog.Logger) *Detector {
	return &Detector{
		stockThreshold: stockThreshold,
		logger:         logger,
		now:            time.Now,
		newID:          func() string { return uuid.NewString() },
	}
}

// Detect diffs previous against current for one entity type and returns the
// detected events. Malformed records (missing identifier, out-of-range
// rating) are skipped with a warning; one bad record never aborts the batch.
func (d *Detector) Detect(userID int64, entity domain.EntityType, previous, current domain.Snapshot, settings domain.NotificationSettings) []domain.DomainEvent {
	switch entity {
	case domain.EntityOrders:
		return d.detectOrders(userID, previous.Orders, current.Orders)
	case domain.EntityStocks:
		return d.detectStocks(userID, previous.Stocks, current.Stocks)
	case domain.EntityReviews:
		return d.detectReviews(userID, previous.Reviews, current.Reviews, settings.ReviewRatingThreshold)
	default:
		d.logger.Warn("unknown entity type in sync batch", "entity_type", entity, "user_id", userID)
		return nil
	}
}

func (d *Detector) detectOrders(userID int64, previous, current []domain.OrderRecord) []domain.DomainEvent {
	prev := make(map[string]domain.OrderRecord, len(previous))
	for _, o := range previous {
		if o.ID == "" {
			d.logger.Warn("skipping order record without id", "user_id", userID)
			continue
		}
		prev[o.ID] = o
	}

	var events []domain.DomainEvent
	for _, o := range current {
		if o.ID == "" {
			d.logger.Warn("skipping order record without id", "user_id", userID)
			continue
		}

		old, existed := prev[o.ID]
		if !existed {
			events = append(events, d.event(userID, domain.EventNewOrder, domain.OrderEventData{
				OrderID:     o.ID,
				ProductName: o.ProductName,
				Price:       o.Price,
				NewStatus:   o.Status,
			}))
			continue
		}

		if old.Status == o.Status {
			continue
		}

		typ := domain.EventOrderStatusChanged
		switch {
		case cancelledStatuses[o.Status]:
			typ = domain.EventOrderCancelled
		case returnedStatuses[o.Status]:
			typ = domain.EventOrderReturned
		}

		events = append(events, d.event(userID, typ, domain.OrderEventData{
			OrderID:     o.ID,
			ProductName: o.ProductName,
			Price:       o.Price,
			OldStatus:   old.Status,
			NewStatus:   o.Status,
		}))
	}

	return events
}

// detectStocks is edge-triggered: an event fires only when a quantity
// crosses from above the threshold to at-or-below it, not on every sync
// while it sits there.
func (d *Detector) detectStocks(userID int64, previous, current []domain.StockRecord) []domain.DomainEvent {
	prev := make(map[string]domain.StockRecord, len(previous))
	for _, s := range previous {
		if s.SKU == "" {
			d.logger.Warn("skipping stock record without sku", "user_id", userID)
			continue
		}
		prev[s.SKU] = s
	}

	var events []domain.DomainEvent
	for _, s := range current {
		if s.SKU == "" {
			d.logger.Warn("skipping stock record without sku", "user_id", userID)
			continue
		}

		if s.Quantity > d.stockThreshold {
			continue
		}

		if old, existed := prev[s.SKU]; existed && old.Quantity <= d.stockThreshold {
			continue // already critical last time
		}

		events = append(events, d.event(userID, domain.EventCriticalStock, domain.StockEventData{
			SKU:         s.SKU,
			ProductName: s.ProductName,
			Quantity:    s.Quantity,
			Threshold:   d.stockThreshold,
			Warehouse:   s.Warehouse,
		}))
	}

	return events
}

func (d *Detector) detectReviews(userID int64, previous, current []domain.ReviewRecord, ratingThreshold int) []domain.DomainEvent {
	prev := make(map[string]bool, len(previous))
	for _, r := range previous {
		if r.ID == "" {
			d.logger.Warn("skipping review record without id", "user_id", userID)
			continue
		}
		prev[r.ID] = true
	}

	var events []domain.DomainEvent
	for _, r := range current {
		if r.ID == "" {
			d.logger.Warn("skipping review record without id", "user_id", userID)
			continue
		}
		if r.Rating < domain.MinReviewRatingThreshold || r.Rating > domain.MaxReviewRatingThreshold {
			d.logger.Warn("skipping review record with out-of-range rating",
				"user_id", userID,
				"review_id", r.ID,
				"rating", r.Rating,
			)
			continue
		}
		if prev[r.ID] {
			continue
		}
		if r.Rating > ratingThreshold {
			continue
		}

		events = append(events, d.event(userID, domain.EventNegativeReview, domain.ReviewEventData{
			ReviewID:    r.ID,
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Rating:      r.Rating,
			Text:        r.Text,
		}))
	}

	return events
}

func (d *Detector) event(userID int64, typ domain.EventType, data domain.EventData) domain.DomainEvent {
	return domain.DomainEvent{
		ID:         d.newID(),
		Type:       typ,
		UserID:     userID,
		Data:       data,
		OccurredAt: d.now(),
		Priority:   domain.PriorityFor(typ),
	}
}
