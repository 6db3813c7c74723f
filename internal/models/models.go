package models

import "time"

// InventoryPool names an independent stock bucket for a variant
type InventoryPool string

const (
	PoolRegular   InventoryPool = "regular"
	PoolPreorder  InventoryPool = "preorder"
	PoolBackorder InventoryPool = "backorder"
)

// Valid reports whether p is one of the known pools
func (p InventoryPool) Valid() bool {
	switch p {
	case PoolRegular, PoolPreorder, PoolBackorder:
		return true
	}
	return false
}

// PriceDiscountType is the discount attached directly to a product or variant
type PriceDiscountType string

const (
	PriceDiscountNone       PriceDiscountType = ""
	PriceDiscountPercentage PriceDiscountType = "percentage"
	PriceDiscountFlat       PriceDiscountType = "flat"
)

// Product represents a base catalog product
type Product struct {
	ID            int64             `db:"id" json:"id"`
	Name          string            `db:"name" json:"name"`
	CategoryID    *int64            `db:"category_id" json:"category_id,omitempty"`
	Price         int64             `db:"price" json:"price"`
	DiscountType  PriceDiscountType `db:"discount_type" json:"discount_type,omitempty"`
	DiscountValue float64           `db:"discount_value" json:"discount_value"`
	IsActive      bool              `db:"is_active" json:"is_active"`
}

// ProductVariant is a sellable variant of a product with its own price
type ProductVariant struct {
	ID            int64             `db:"id" json:"id"`
	ProductID     int64             `db:"product_id" json:"product_id"`
	Label         string            `db:"label" json:"label"`
	Price         int64             `db:"price" json:"price"`
	DiscountType  PriceDiscountType `db:"discount_type" json:"discount_type,omitempty"`
	DiscountValue float64           `db:"discount_value" json:"discount_value"`
	IsActive      bool              `db:"is_active" json:"is_active"`

	// Stock is keyed by pool; filled from variant_stock rows.
	Stock map[InventoryPool]int `db:"-" json:"stock,omitempty"`
}

// VariantStock is one pool counter of a variant
type VariantStock struct {
	VariantID int64         `db:"variant_id" json:"variant_id"`
	Pool      InventoryPool `db:"pool" json:"pool"`
	Stock     int           `db:"stock" json:"stock"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// StockReservation is a ledger row written together with a stock decrement
type StockReservation struct {
	ID         int64         `db:"id" json:"id"`
	OrderID    string        `db:"order_id" json:"order_id"`
	VariantID  int64         `db:"variant_id" json:"variant_id"`
	Pool       InventoryPool `db:"pool" json:"pool"`
	Quantity   int           `db:"quantity" json:"quantity"`
	ReservedAt time.Time     `db:"reserved_at" json:"reserved_at"`
	ReleasedAt *time.Time    `db:"released_at" json:"released_at,omitempty"`
}

// Location is a city, zone or area used for delivery addressing
type Location struct {
	ID   int64  `db:"id" json:"id"`
	Kind string `db:"kind" json:"kind"`
	Name string `db:"name" json:"name"`
}

const (
	LocationCity = "city"
	LocationZone = "zone"
	LocationArea = "area"
)

// Order represents a customer order
type Order struct {
	ID                string        `db:"id" json:"id"`
	CustomerName      string        `db:"customer_name" json:"customer_name"`
	CustomerPhone     string        `db:"customer_phone" json:"customer_phone"`
	CustomerEmail     string        `db:"customer_email" json:"customer_email,omitempty"`
	ShippingAddress   string        `db:"shipping_address" json:"shipping_address"`
	CityID            int64         `db:"city_id" json:"city_id"`
	ZoneID            int64         `db:"zone_id" json:"zone_id"`
	AreaID            int64         `db:"area_id" json:"area_id"`
	CityName          string        `db:"city_name" json:"city_name"`
	ZoneName          string        `db:"zone_name" json:"zone_name"`
	AreaName          string        `db:"area_name" json:"area_name"`
	Notes             string        `db:"notes" json:"notes,omitempty"`
	TotalAmount       int64         `db:"total_amount" json:"total_amount"`
	ShippingCharge    int64         `db:"shipping_charge" json:"shipping_charge"`
	DiscountAmount    int64         `db:"discount_amount" json:"discount_amount"`
	DiscountCode      string        `db:"discount_code" json:"discount_code,omitempty"`
	Status            string        `db:"status" json:"status"`
	PaymentMethod     string        `db:"payment_method" json:"payment_method"`
	PaymentStatus     string        `db:"payment_status" json:"payment_status"`
	PaidAmount        int64         `db:"paid_amount" json:"paid_amount"`
	BalanceDue        int64         `db:"balance_due" json:"balance_due"`
	FulfillmentStatus string        `db:"fulfillment_status" json:"fulfillment_status"`
	InventoryPool     InventoryPool `db:"inventory_pool" json:"inventory_pool"`
	IdempotencyKey    *string       `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
	DeletedAt         *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
}

// OrderItem represents items in an order. UnitPrice is a snapshot taken at
// order time and never recomputed.
type OrderItem struct {
	ID           int64  `db:"id" json:"id"`
	OrderID      string `db:"order_id" json:"order_id"`
	ProductID    int64  `db:"product_id" json:"product_id"`
	VariantID    *int64 `db:"variant_id" json:"variant_id,omitempty"`
	Quantity     int    `db:"quantity" json:"quantity"`
	UnitPrice    int64  `db:"unit_price" json:"unit_price"`
	ProductName  string `db:"product_name" json:"product_name,omitempty"`
	VariantLabel string `db:"variant_label" json:"variant_label,omitempty"`
}

// Initial states of a new order
const (
	OrderStatusPending     = "pending"
	FulfillmentUnfulfilled = "unfulfilled"
)

const PaymentStatusUnpaid = "unpaid"

// Payment methods
const (
	PaymentMethodCOD          = "cash_on_delivery"
	PaymentMethodCard         = "card"
	PaymentMethodMobileWallet = "mobile_wallet"
	PaymentMethodBankTransfer = "bank_transfer"
)

// ValidPaymentMethod reports whether m is in the accepted set
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodCard, PaymentMethodMobileWallet, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// Customer is the rolling aggregate of a phone number's orders
type Customer struct {
	ID          int64      `db:"id" json:"id"`
	Phone       string     `db:"phone" json:"phone"`
	Name        string     `db:"name" json:"name"`
	Email       string     `db:"email" json:"email,omitempty"`
	Address     string     `db:"address" json:"address"`
	TotalOrders int        `db:"total_orders" json:"total_orders"`
	TotalSpent  int64      `db:"total_spent" json:"total_spent"`
	LastOrderAt *time.Time `db:"last_order_at" json:"last_order_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// CustomerHistory is an append-only snapshot of customer details
type CustomerHistory struct {
	ID        int64     `db:"id" json:"id"`
	Phone     string    `db:"phone" json:"phone"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email,omitempty"`
	Address   string    `db:"address" json:"address"`
	Action    string    `db:"action" json:"action"`
	OrderID   *string   `db:"order_id" json:"order_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	HistoryCreated = "created"
	HistoryUpdated = "updated"
)

// PaymentTracking follows cash collection for an order
type PaymentTracking struct {
	ID              int64     `db:"id" json:"id"`
	OrderID         string    `db:"order_id" json:"order_id"`
	Method          string    `db:"method" json:"method"`
	Status          string    `db:"status" json:"status"`
	AmountDue       int64     `db:"amount_due" json:"amount_due"`
	AmountCollected int64     `db:"amount_collected" json:"amount_collected"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

const TrackingStatusAwaitingCollection = "awaiting_collection"
