package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

// The decrement and its ledger row are one statement: the INSERT only sees a
// row when the conditional UPDATE matched, so a ledger ID comes back on
// success and no row on insufficient stock.
const reserveStockQuery = `
	WITH decremented AS (
		UPDATE variant_stock
		SET stock = stock - $3, updated_at = NOW()
		WHERE variant_id = $1 AND pool = $2 AND stock >= $3
		RETURNING variant_id
	)
	INSERT INTO stock_reservations (order_id, variant_id, pool, quantity)
	SELECT $4, variant_id, $2, $3 FROM decremented
	RETURNING id`

// A ledger row is released at most once; the stock increment only sees it
// while it is still open.
const releaseReservationQuery = `
	WITH released AS (
		UPDATE stock_reservations
		SET released_at = NOW()
		WHERE id = $1 AND released_at IS NULL
		RETURNING variant_id, pool, quantity
	)
	UPDATE variant_stock v
	SET stock = v.stock + r.quantity, updated_at = NOW()
	FROM released r
	WHERE v.variant_id = r.variant_id AND v.pool = r.pool
	RETURNING r.quantity`

// ReserveStock conditionally decrements one pool counter and returns the ID
// of the ledger row it wrote. ok is false when the pool holds less than
// quantity.
func (s *Store) ReserveStock(ctx context.Context, orderID string, variantID int64, pool models.InventoryPool, quantity int) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, reserveStockQuery, variantID, string(pool), quantity, orderID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reserve stock: %w", err)
	}
	return id, true, nil
}

// ReleaseReservation returns the units held by one ledger row. It reports 0
// when the row was already released.
func (s *Store) ReleaseReservation(ctx context.Context, reservationID int64) (int, error) {
	var released int
	err := s.db.QueryRowxContext(ctx, releaseReservationQuery, reservationID).Scan(&released)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("release reservation %d: %w", reservationID, err)
	}
	return released, nil
}

// OpenReservations lists ledger rows of an order that have not been released
func (s *Store) OpenReservations(ctx context.Context, orderID string) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM stock_reservations WHERE order_id = $1 AND released_at IS NULL ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select open reservations: %w", err)
	}
	return rows, nil
}

// GetVariantStock returns the pool counters of a variant
func (s *Store) GetVariantStock(ctx context.Context, variantID int64) ([]models.VariantStock, error) {
	var rows []models.VariantStock
	err := s.db.SelectContext(ctx, &rows,
		`SELECT variant_id, pool, stock, updated_at FROM variant_stock WHERE variant_id = $1 ORDER BY pool`, variantID)
	return rows, err
}
