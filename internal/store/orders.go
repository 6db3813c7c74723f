package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const insertOrderQuery = `
	INSERT INTO orders (
		id, customer_name, customer_phone, customer_email, shipping_address,
		city_id, zone_id, area_id, city_name, zone_name, area_name, notes,
		total_amount, shipping_charge, discount_amount, discount_code,
		status, payment_method, payment_status, paid_amount, balance_due,
		fulfillment_status, inventory_pool, idempotency_key
	) VALUES (
		:id, :customer_name, :customer_phone, :customer_email, :shipping_address,
		:city_id, :zone_id, :area_id, :city_name, :zone_name, :area_name, :notes,
		:total_amount, :shipping_charge, :discount_amount, :discount_code,
		:status, :payment_method, :payment_status, :paid_amount, :balance_due,
		:fulfillment_status, :inventory_pool, :idempotency_key
	)`

const insertOrderItemsQuery = `
	INSERT INTO order_items (order_id, product_id, variant_id, quantity, unit_price, product_name, variant_label)
	VALUES (:order_id, :product_id, :variant_id, :quantity, :unit_price, :product_name, :variant_label)`

const insertDiscountUsageQuery = `
	INSERT INTO discount_usages (discount_id, order_id, customer_phone, amount)
	VALUES ($1, $2, $3, $4)`

// WriteOrderBatch persists the customer ledger, order, items and discount
// usage atomically
func (s *Store) WriteOrderBatch(ctx context.Context, b *models.OrderBatch) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := upsertCustomerTx(ctx, tx, b.Customer, b.Order.ID); err != nil {
			return err
		}

		if _, err := tx.NamedExecContext(ctx, insertOrderQuery, b.Order); err != nil {
			if isUniqueViolation(err, idempotencyKeyConstraint) {
				return ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("insert order: %w", err)
		}

		if len(b.Items) > 0 {
			if _, err := tx.NamedExecContext(ctx, insertOrderItemsQuery, b.Items); err != nil {
				return fmt.Errorf("insert order items: %w", err)
			}
		}

		if b.Usage != nil {
			if _, err := tx.ExecContext(ctx, insertDiscountUsageQuery,
				b.Usage.DiscountID, b.Usage.OrderID, b.Usage.CustomerPhone, b.Usage.Amount); err != nil {
				return fmt.Errorf("insert discount usage: %w", err)
			}
		}
		return nil
	})
}

// GetOrderByID retrieves an order by ID, including soft-deleted ones
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey finds the order written under key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// SoftDeleteOrder marks an order deleted and re-derives its customer's
// aggregates in the same transaction
func (s *Store) SoftDeleteOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.setDeleted(ctx, id,
		`UPDATE orders SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL RETURNING *`)
}

// RestoreOrder clears the deletion mark and re-derives customer aggregates
func (s *Store) RestoreOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.setDeleted(ctx, id,
		`UPDATE orders SET deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL RETURNING *`)
}

func (s *Store) setDeleted(ctx context.Context, id, query string) (*models.Order, error) {
	var order models.Order
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &order, query, id)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", id); err != nil {
				return err
			}
			if exists {
				return ErrStateConflict
			}
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return recomputeCustomerTx(ctx, tx, order.CustomerPhone)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreatePaymentTracking creates the collection tracking row of an order
func (s *Store) CreatePaymentTracking(ctx context.Context, t *models.PaymentTracking) error {
	query := `
		INSERT INTO payment_trackings (order_id, method, status, amount_due, amount_collected)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		t.OrderID, t.Method, t.Status, t.AmountDue, t.AmountCollected).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// GetPaymentTracking retrieves the tracking row of an order
func (s *Store) GetPaymentTracking(ctx context.Context, orderID string) (*models.PaymentTracking, error) {
	var t models.PaymentTracking
	err := s.db.GetContext(ctx, &t, "SELECT * FROM payment_trackings WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
