package models

import (
	"strings"
	"time"
)

// DiscountKind is the closed set of discount categories. Each kind has its
// own amount formula.
type DiscountKind string

const (
	DiscountOrderAmountOff   DiscountKind = "order_amount_off"
	DiscountProductAmountOff DiscountKind = "product_amount_off"
	DiscountFreeShipping     DiscountKind = "free_shipping"
)

// Valid reports whether k is a known kind
func (k DiscountKind) Valid() bool {
	switch k {
	case DiscountOrderAmountOff, DiscountProductAmountOff, DiscountFreeShipping:
		return true
	}
	return false
}

// ValueType selects between a percentage and a fixed amount
type ValueType string

const (
	ValuePercentage ValueType = "percentage"
	ValueFixed      ValueType = "fixed"
)

// Discount is a promotional code
type Discount struct {
	ID                          int64        `db:"id" json:"id"`
	Code                        string       `db:"code" json:"code"`
	Kind                        DiscountKind `db:"kind" json:"kind"`
	ValueType                   ValueType    `db:"value_type" json:"value_type"`
	Value                       float64      `db:"value" json:"value"`
	IsActive                    bool         `db:"is_active" json:"is_active"`
	StartDate                   time.Time    `db:"start_date" json:"start_date"`
	EndDate                     *time.Time   `db:"end_date" json:"end_date,omitempty"`
	MinPurchaseAmount           *int64       `db:"min_purchase_amount" json:"min_purchase_amount,omitempty"`
	MinQuantity                 *int         `db:"min_quantity" json:"min_quantity,omitempty"`
	MaxUses                     *int         `db:"max_uses" json:"max_uses,omitempty"`
	LimitOnePerCustomer         bool         `db:"limit_one_per_customer" json:"limit_one_per_customer"`
	CombineWithProductDiscounts bool         `db:"combine_with_product_discounts" json:"combine_with_product_discounts"`
	CombineWithOrderDiscounts   bool         `db:"combine_with_order_discounts" json:"combine_with_order_discounts"`
	CombineWithShippingDiscount bool         `db:"combine_with_shipping_discounts" json:"combine_with_shipping_discounts"`
	CreatedAt                   time.Time    `db:"created_at" json:"created_at"`
}

// NormalizeCode canonicalises a customer-entered discount code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DiscountUsage links a discount to the order that consumed it
type DiscountUsage struct {
	ID            int64     `db:"id" json:"id"`
	DiscountID    int64     `db:"discount_id" json:"discount_id"`
	OrderID       string    `db:"order_id" json:"order_id"`
	CustomerPhone string    `db:"customer_phone" json:"customer_phone"`
	Amount        int64     `db:"amount" json:"amount"`
	UsedAt        time.Time `db:"used_at" json:"used_at"`
}

// Collection groups categories and products; Config holds the raw JSON
// configuration which is migrated when read.
type Collection struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Config []byte `db:"config" json:"-"`
}
