package domain

// EntityType names the kind of marketplace data a sync batch covers.
type EntityType string

const (
	EntityOrders  EntityType = "orders"
	EntityStocks  EntityType = "stocks"
	EntityReviews EntityType = "reviews"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityOrders, EntityStocks, EntityReviews:
		return true
	}
	return false
}

// OrderRecord is one order as retrieved from the marketplace source.
type OrderRecord struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ProductName string `json:"product_name,omitempty"`
	Price       string `json:"price,omitempty"`
}

// StockRecord is one SKU's stock level at a warehouse.
type StockRecord struct {
	SKU         string `json:"sku"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	Warehouse   string `json:"warehouse,omitempty"`
}

// ReviewRecord is one buyer review of a product.
type ReviewRecord struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	Rating      int    `json:"rating"`
	Text        string `json:"text,omitempty"`
}

// Snapshot is a point-in-time view of one user's marketplace entities.
// At most one of the slices is populated, matching the entity type of the
// sync batch it came from.
type Snapshot struct {
	Orders  []OrderRecord  `json:"orders,omitempty"`
	Stocks  []StockRecord  `json:"stocks,omitempty"`
	Reviews []ReviewRecord `json:"reviews,omitempty"`
}
