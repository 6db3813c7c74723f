package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// A new phone starts at one order; an existing one is incremented in place so
// concurrent orders for the same customer never lose an update.
const upsertCustomerQuery = `
	INSERT INTO customers (phone, name, email, address, total_orders, total_spent, last_order_at)
	VALUES ($1, $2, $3, $4, 1, $5, $6)
	ON CONFLICT (phone) DO UPDATE SET
		name = EXCLUDED.name,
		email = COALESCE(NULLIF(EXCLUDED.email, ''), customers.email),
		address = EXCLUDED.address,
		total_orders = customers.total_orders + 1,
		total_spent = customers.total_spent + EXCLUDED.total_spent,
		last_order_at = GREATEST(customers.last_order_at, EXCLUDED.last_order_at),
		updated_at = NOW()`

const insertCustomerHistoryQuery = `
	INSERT INTO customer_history (phone, name, email, address, action, order_id)
	VALUES ($1, $2, $3, $4, $5, $6)`

const recomputeCustomerQuery = `
	UPDATE customers c SET
		total_orders = agg.orders,
		total_spent = agg.spent,
		last_order_at = agg.last_order,
		updated_at = NOW()
	FROM (
		SELECT COUNT(*) AS orders,
			COALESCE(SUM(total_amount), 0) AS spent,
			MAX(created_at) AS last_order
		FROM orders
		WHERE customer_phone = $1 AND deleted_at IS NULL
	) agg
	WHERE c.phone = $1`

func upsertCustomerTx(ctx context.Context, tx *sqlx.Tx, e models.CustomerLedgerEntry, orderID string) error {
	if _, err := tx.ExecContext(ctx, upsertCustomerQuery,
		e.Phone, e.Name, e.Email, e.Address, e.OrderAmount, e.OrderedAt); err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}

	if _, err := tx.ExecContext(ctx, insertCustomerHistoryQuery,
		e.Phone, e.Name, e.Email, e.Address, e.HistoryAction, orderID); err != nil {
		return fmt.Errorf("insert customer history: %w", err)
	}
	return nil
}

// recomputeCustomerTx re-derives a customer's aggregates from the orders that
// are not deleted
func recomputeCustomerTx(ctx context.Context, tx *sqlx.Tx, phone string) error {
	if _, err := tx.ExecContext(ctx, recomputeCustomerQuery, phone); err != nil {
		return fmt.Errorf("recompute customer: %w", err)
	}
	return nil
}

// GetCustomerByPhone retrieves a customer aggregate
func (s *Store) GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer, selectCustomerQuery, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetCustomerHistory lists the history rows of a phone, newest first
func (s *Store) GetCustomerHistory(ctx context.Context, phone string) ([]models.CustomerHistory, error) {
	var rows []models.CustomerHistory
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM customer_history WHERE phone = $1 ORDER BY created_at DESC, id DESC`, phone)
	return rows, err
}
