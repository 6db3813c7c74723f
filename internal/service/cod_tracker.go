package service

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TrackingStore persists payment collection tracking
type TrackingStore interface {
	CreatePaymentTracking(ctx context.Context, t *models.PaymentTracking) error
}

// CODTracker opens collection tracking for cash-on-delivery orders
type CODTracker struct {
	store  TrackingStore
	logger *zap.Logger
}

// NewCODTracker creates a new COD tracker
func NewCODTracker(store TrackingStore) *CODTracker {
	return &CODTracker{
		store:  store,
		logger: util.GetLogger(),
	}
}

// InitCOD records that the order's balance is due on delivery. Orders paid
// by other methods are ignored; calling it twice for one order is harmless.
func (t *CODTracker) InitCOD(ctx context.Context, order *models.Order) error {
	if order.PaymentMethod != models.PaymentMethodCOD {
		return nil
	}

	ctx, span := util.StartSpan(ctx, "CODTracker.InitCOD", attribute.String("order_id", order.ID))
	defer span.End()

	tracking := &models.PaymentTracking{
		OrderID:   order.ID,
		Method:    order.PaymentMethod,
		Status:    models.TrackingStatusAwaitingCollection,
		AmountDue: order.BalanceDue,
	}

	if err := t.store.CreatePaymentTracking(ctx, tracking); err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to create payment tracking: %w", err)
	}

	t.logger.Info("COD tracking initialised",
		zap.String("order_id", order.ID),
		zap.Int64("amount_due", order.BalanceDue))
	return nil
}
