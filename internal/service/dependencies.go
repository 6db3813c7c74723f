package service

import (
	"context"
	"time"

	"checkout-service/internal/discount"
	"checkout-service/internal/inventory"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
)

// OrderStore is the persistence the pipeline reads from and writes to
type OrderStore interface {
	LoadCheckoutSnapshot(ctx context.Context, q models.SnapshotQuery) (*models.CheckoutSnapshot, error)
	WriteOrderBatch(ctx context.Context, b *models.OrderBatch) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
	SoftDeleteOrder(ctx context.Context, id string) (*models.Order, error)
	RestoreOrder(ctx context.Context, id string) (*models.Order, error)
	GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error)
	GetCustomerHistory(ctx context.Context, phone string) ([]models.CustomerHistory, error)
	GetPaymentTracking(ctx context.Context, orderID string) (*models.PaymentTracking, error)
}

// Reserver takes and returns pool stock
type Reserver interface {
	Reserve(ctx context.Context, orderID string, entries []inventory.Entry) (*inventory.Result, error)
	Release(ctx context.Context, orderID string, entries []inventory.Entry) error
	ReleaseOrder(ctx context.Context, orderID string, cutoff time.Time) error
}

// DiscountEngine validates and prices discount codes
type DiscountEngine interface {
	Validate(ctx context.Context, scope *discount.Scope, code string, cart discount.Cart) (*discount.Validation, error)
	ValidateDiscount(ctx context.Context, scope *discount.Scope, d *models.Discount, cart discount.Cart) (*discount.Validation, error)
	CalculateAmount(ctx context.Context, scope *discount.Scope, d *models.Discount, cart discount.Cart, shippingCost int64) (int64, error)
	CheckCustomerLimit(ctx context.Context, d *models.Discount, phone string) error
}

// Notifier dispatches order notifications after commit
type Notifier interface {
	PublishOrderCreated(ctx context.Context, order *models.Order, items []models.OrderItem) error
	PublishOrderDeleted(ctx context.Context, order *models.Order) error
	PublishOrderRestored(ctx context.Context, order *models.Order) error
}

// CODInitializer starts collection tracking for cash-on-delivery orders
type CODInitializer interface {
	InitCOD(ctx context.Context, order *models.Order) error
}

// IdempotencyStore deduplicates order submissions
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (redisclient.Claim, error)
	CompleteIdempotencyKey(ctx context.Context, key, orderID string, ttl time.Duration) error
	ForgetIdempotencyKey(ctx context.Context, key string) error
}
