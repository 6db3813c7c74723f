package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const (
	selectVariantsQuery = `SELECT id, product_id, label, price, discount_type, discount_value, is_active
		FROM product_variants WHERE id IN (?)`
	selectStockQuery = `SELECT variant_id, pool, stock, updated_at
		FROM variant_stock WHERE variant_id IN (?)`
	selectProductsQuery = `SELECT id, name, category_id, price, discount_type, discount_value, is_active
		FROM products WHERE id IN (?)`
	selectLocationsQuery = `SELECT id, kind, name FROM locations WHERE id IN (?)`
	selectCustomerQuery  = `SELECT * FROM customers WHERE phone = $1`
	selectDiscountQuery  = `SELECT * FROM discounts WHERE UPPER(code) = $1`
)

// LoadCheckoutSnapshot reads every row the pipeline needs from one
// consistent read-only snapshot.
func (s *Store) LoadCheckoutSnapshot(ctx context.Context, q models.SnapshotQuery) (*models.CheckoutSnapshot, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	snap := &models.CheckoutSnapshot{
		Variants:  make(map[int64]*models.ProductVariant),
		Products:  make(map[int64]*models.Product),
		Locations: make(map[int64]*models.Location),
	}

	if err := s.loadVariants(ctx, tx, q.VariantIDs, snap); err != nil {
		return nil, err
	}

	if len(q.ProductIDs) > 0 {
		query, args, err := s.in(selectProductsQuery, q.ProductIDs)
		if err != nil {
			return nil, err
		}
		var products []models.Product
		if err := tx.SelectContext(ctx, &products, query, args...); err != nil {
			return nil, fmt.Errorf("select products: %w", err)
		}
		for i := range products {
			snap.Products[products[i].ID] = &products[i]
		}
	}

	if len(q.LocationIDs) > 0 {
		query, args, err := s.in(selectLocationsQuery, q.LocationIDs)
		if err != nil {
			return nil, err
		}
		var locations []models.Location
		if err := tx.SelectContext(ctx, &locations, query, args...); err != nil {
			return nil, fmt.Errorf("select locations: %w", err)
		}
		for i := range locations {
			snap.Locations[locations[i].ID] = &locations[i]
		}
	}

	if q.CustomerPhone != "" {
		var customer models.Customer
		err := tx.GetContext(ctx, &customer, selectCustomerQuery, q.CustomerPhone)
		switch {
		case err == nil:
			snap.Customer = &customer
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("select customer: %w", err)
		}
	}

	if q.DiscountCode != "" {
		var discount models.Discount
		err := tx.GetContext(ctx, &discount, selectDiscountQuery, models.NormalizeCode(q.DiscountCode))
		switch {
		case err == nil:
			snap.Discount = &discount
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("select discount: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) loadVariants(ctx context.Context, tx *sqlx.Tx, ids []int64, snap *models.CheckoutSnapshot) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := s.in(selectVariantsQuery, ids)
	if err != nil {
		return err
	}
	var variants []models.ProductVariant
	if err := tx.SelectContext(ctx, &variants, query, args...); err != nil {
		return fmt.Errorf("select variants: %w", err)
	}
	for i := range variants {
		variants[i].Stock = make(map[models.InventoryPool]int)
		snap.Variants[variants[i].ID] = &variants[i]
	}

	query, args, err = s.in(selectStockQuery, ids)
	if err != nil {
		return err
	}
	var stock []models.VariantStock
	if err := tx.SelectContext(ctx, &stock, query, args...); err != nil {
		return fmt.Errorf("select variant stock: %w", err)
	}
	for _, row := range stock {
		if v, ok := snap.Variants[row.VariantID]; ok {
			v.Stock[row.Pool] = row.Stock
		}
	}
	return nil
}
