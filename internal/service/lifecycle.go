package service

import (
	"context"
	"errors"
	"time"

	"checkout-service/internal/apperrors"
	"checkout-service/internal/inventory"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DeleteOrder soft-deletes an order, re-derives its customer's aggregates
// and returns the stock it held when it was deleted. Reservations made later
// by a restore still in flight are not touched. Deleting an already deleted
// order retries the stock release before reporting the conflict.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder", attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.store.SoftDeleteOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrStateConflict) {
			s.retryDeletedRelease(ctx, orderID)
			return apperrors.Validation("order %s is already deleted", orderID)
		}
		util.RecordError(span, err)
		return storeError("delete order", orderID, err)
	}

	if err := s.reserver.ReleaseOrder(ctx, orderID, deletedAt(order)); err != nil {
		util.CompensationsTotal.WithLabelValues("release_on_delete", "failed").Inc()
		util.RecordError(span, err)
		s.logger.Error("Order deleted but stock release failed",
			zap.String("order_id", orderID), zap.Error(err))
		return apperrors.Persistence("release stock of deleted order", err)
	}

	util.OrdersDeletedTotal.Inc()
	s.logger.Info("Order deleted", zap.String("order_id", orderID))

	if err := s.notifier.PublishOrderDeleted(ctx, order); err != nil {
		util.SideEffectFailuresTotal.WithLabelValues("notification").Inc()
		s.logger.Error("Failed to publish OrderDeleted event",
			zap.String("order_id", orderID), zap.Error(err))
	}
	return nil
}

// RestoreOrder brings a soft-deleted order back. Its stock is reserved again
// from the order's pool first; if that fails nothing is restored.
func (s *OrderService) RestoreOrder(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.RestoreOrder", attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return storeError("get order", orderID, err)
	}
	if order.DeletedAt == nil {
		return apperrors.Validation("order %s is not deleted", orderID)
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return apperrors.Persistence("get order items", err)
	}

	sg := newSaga(orderID, s.opts.CompensationTimeout, s.logger)

	entries := itemEntries(items, order.InventoryPool)
	if len(entries) > 0 {
		res, err := s.reserver.Reserve(ctx, orderID, entries)
		if reserved := res.Reserved(); len(reserved) > 0 {
			sg.record("release_stock", func(ctx context.Context) error {
				return s.reserver.Release(ctx, orderID, reserved)
			})
		}
		if err != nil {
			sg.compensate(ctx)
			return apperrors.Persistence("reserve stock", err)
		}
		if !res.Success {
			sg.compensate(ctx)
			return apperrors.InsufficientStock(res.FailedVariantID, res.FailedPool)
		}
	}

	restored, err := s.store.RestoreOrder(ctx, orderID)
	if err != nil {
		util.RecordError(span, err)
		sg.compensate(ctx)
		return storeError("restore order", orderID, err)
	}

	util.OrdersRestoredTotal.Inc()
	s.logger.Info("Order restored", zap.String("order_id", orderID))

	if err := s.notifier.PublishOrderRestored(ctx, restored); err != nil {
		util.SideEffectFailuresTotal.WithLabelValues("notification").Inc()
		s.logger.Error("Failed to publish OrderRestored event",
			zap.String("order_id", orderID), zap.Error(err))
	}
	return nil
}

// retryDeletedRelease finishes the stock release of an order whose earlier
// delete failed half way. Nothing happens if a restore has already brought
// the order back.
func (s *OrderService) retryDeletedRelease(ctx context.Context, orderID string) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil || order.DeletedAt == nil {
		return
	}
	if err := s.reserver.ReleaseOrder(ctx, orderID, *order.DeletedAt); err != nil {
		s.logger.Error("Failed to release stock of deleted order",
			zap.String("order_id", orderID), zap.Error(err))
	}
}

// deletedAt is the release cutoff of a freshly deleted order
func deletedAt(order *models.Order) time.Time {
	if order.DeletedAt != nil {
		return *order.DeletedAt
	}
	return time.Now()
}

func itemEntries(items []models.OrderItem, pool models.InventoryPool) []inventory.Entry {
	var entries []inventory.Entry
	for _, it := range items {
		if it.VariantID == nil {
			continue
		}
		entries = append(entries, inventory.Entry{VariantID: *it.VariantID, Quantity: it.Quantity, Pool: pool})
	}
	return entries
}
