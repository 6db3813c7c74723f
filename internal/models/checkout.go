package models

import "time"

// SnapshotQuery names everything the pipeline needs to read before it can
// price and reserve a cart.
type SnapshotQuery struct {
	VariantIDs    []int64
	ProductIDs    []int64
	LocationIDs   []int64
	CustomerPhone string
	DiscountCode  string
}

// CheckoutSnapshot is the authoritative data loaded by the batched read.
// Missing rows are simply absent from the maps.
type CheckoutSnapshot struct {
	Variants  map[int64]*ProductVariant
	Products  map[int64]*Product
	Locations map[int64]*Location
	Customer  *Customer
	Discount  *Discount
}

// CustomerLedgerEntry describes how the write batch must touch the customer
// aggregate for one new order.
type CustomerLedgerEntry struct {
	Phone         string
	Name          string
	Email         string
	Address       string
	IsNew         bool
	OrderAmount   int64
	OrderedAt     time.Time
	HistoryAction string
}

// OrderBatch is everything written in the single write round trip
type OrderBatch struct {
	Customer CustomerLedgerEntry
	Order    *Order
	Items    []OrderItem
	Usage    *DiscountUsage
}
