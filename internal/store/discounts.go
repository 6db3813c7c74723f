package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

// GetDiscountByCode looks a code up case-insensitively; a missing code is
// (nil, nil)
func (s *Store) GetDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	var d models.Discount
	err := s.db.GetContext(ctx, &d, selectDiscountQuery, models.NormalizeCode(code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select discount: %w", err)
	}
	return &d, nil
}

// CountDiscountUsages counts every recorded use of a discount
func (s *Store) CountDiscountUsages(ctx context.Context, discountID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM discount_usages WHERE discount_id = $1", discountID)
	return n, err
}

// CustomerUsedDiscount reports whether a live order placed with phone
// already consumed the discount
func (s *Store) CustomerUsedDiscount(ctx context.Context, discountID int64, phone string) (bool, error) {
	var used bool
	err := s.db.GetContext(ctx, &used, `
		SELECT EXISTS(
			SELECT 1 FROM discount_usages u
			JOIN orders o ON o.id = u.order_id
			WHERE u.discount_id = $1 AND o.customer_phone = $2 AND o.deleted_at IS NULL
		)`, discountID, phone)
	return used, err
}

// DiscountProductIDs lists products explicitly attached to a discount
func (s *Store) DiscountProductIDs(ctx context.Context, discountID int64) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		"SELECT product_id FROM discount_products WHERE discount_id = $1", discountID)
	return ids, err
}

// DiscountCollections lists collections attached to a discount
func (s *Store) DiscountCollections(ctx context.Context, discountID int64) ([]models.Collection, error) {
	var collections []models.Collection
	err := s.db.SelectContext(ctx, &collections, `
		SELECT c.id, c.name, c.config
		FROM collections c
		JOIN discount_collections dc ON dc.collection_id = c.id
		WHERE dc.discount_id = $1`, discountID)
	return collections, err
}

// ActiveProductIDsByCategories lists active products in any of the categories
func (s *Store) ActiveProductIDsByCategories(ctx context.Context, categoryIDs []int64) ([]int64, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}

	query, args, err := s.in("SELECT id FROM products WHERE is_active AND category_id IN (?)", categoryIDs)
	if err != nil {
		return nil, err
	}

	var ids []int64
	err = s.db.SelectContext(ctx, &ids, query, args...)
	return ids, err
}
