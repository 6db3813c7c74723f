package models

import "time"

// Event types
const (
	EventTypeOrderCreated  = "ORDER_CREATED"
	EventTypeOrderDeleted  = "ORDER_DELETED"
	EventTypeOrderRestored = "ORDER_RESTORED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after the order batch has been committed
type OrderCreatedEvent struct {
	BaseEvent
	OrderID        string          `json:"order_id"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	PaymentMethod  string          `json:"payment_method"`
	InventoryPool  InventoryPool   `json:"inventory_pool"`
	TotalAmount    int64           `json:"total_amount"`
	DiscountAmount int64           `json:"discount_amount"`
	Items          []OrderItemData `json:"items"`
}

// OrderLifecycleEvent published when an order is soft-deleted or restored
type OrderLifecycleEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	CustomerPhone string `json:"customer_phone"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}
