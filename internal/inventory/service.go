// Package inventory reserves and releases pool stock with conditional
// decrements. It holds no locks; each entry either matched its WHERE clause
// or it did not.
package inventory

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StockStore is the conditional-update primitive the service is built on
type StockStore interface {
	ReserveStock(ctx context.Context, orderID string, variantID int64, pool models.InventoryPool, quantity int) (int64, bool, error)
	ReleaseReservation(ctx context.Context, reservationID int64) (int, error)
	OpenReservations(ctx context.Context, orderID string) ([]models.StockReservation, error)
	GetVariantStock(ctx context.Context, variantID int64) ([]models.VariantStock, error)
}

// Entry is one requested decrement. ReservationID is set on entries that
// hold stock and names the ledger row to release.
type Entry struct {
	VariantID     int64                `json:"variant_id"`
	Quantity      int                  `json:"quantity"`
	Pool          models.InventoryPool `json:"pool"`
	ReservationID int64                `json:"reservation_id,omitempty"`
}

// ItemResult is the outcome of one entry
type ItemResult struct {
	Entry
	Reserved bool `json:"reserved"`
}

// Result reports a reservation attempt. When Success is false,
// FailedVariantID names the first entry that could not be reserved; entries
// with Reserved set still hold stock and must be released by the caller.
type Result struct {
	Success         bool                 `json:"success"`
	FailedVariantID int64                `json:"failed_variant_id,omitempty"`
	FailedPool      models.InventoryPool `json:"failed_pool,omitempty"`
	Items           []ItemResult         `json:"items"`
}

// Reserved returns the entries that currently hold stock
func (r *Result) Reserved() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Reserved {
			out = append(out, it.Entry)
		}
	}
	return out
}

// Service handles inventory reservations
type Service struct {
	store  StockStore
	logger *zap.Logger
}

// NewService creates a new reservation service
func NewService(store StockStore) *Service {
	return &Service{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Reserve issues one conditional decrement per (variant, pool). Every entry is
// attempted; a store error stops the remaining entries and is returned along
// with the partial result.
func (s *Service) Reserve(ctx context.Context, orderID string, entries []Entry) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "Inventory.Reserve",
		attribute.String("order_id", orderID),
		attribute.Int("entries", len(entries)))
	defer span.End()

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	merged, err := Merge(entries)
	if err != nil {
		return nil, err
	}

	result := &Result{Success: true, Items: make([]ItemResult, 0, len(merged))}
	for _, e := range merged {
		id, ok, err := s.store.ReserveStock(ctx, orderID, e.VariantID, e.Pool, e.Quantity)
		if err != nil {
			util.InventoryReservationsFailed.WithLabelValues("error", string(e.Pool)).Inc()
			util.RecordError(span, err)
			result.Success = false
			if result.FailedVariantID == 0 {
				result.FailedVariantID = e.VariantID
				result.FailedPool = e.Pool
			}
			return result, fmt.Errorf("reserve variant %d: %w", e.VariantID, err)
		}

		e.ReservationID = id
		result.Items = append(result.Items, ItemResult{Entry: e, Reserved: ok})
		if !ok {
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock", string(e.Pool)).Inc()
			if result.Success {
				result.Success = false
				result.FailedVariantID = e.VariantID
				result.FailedPool = e.Pool
			}
		}
	}

	if !result.Success {
		s.logger.Info("Reservation failed",
			zap.String("order_id", orderID),
			zap.Int64("variant_id", result.FailedVariantID),
			zap.String("pool", string(result.FailedPool)))
	}
	return result, nil
}

// Release returns the stock held by each entry's ledger row. Only rows
// created by the attempt that produced the entries are touched, so a
// concurrent operation on the same order keeps its own stock. Releasing a row
// twice returns nothing the second time. All entries are attempted; the
// first error is returned.
func (s *Service) Release(ctx context.Context, orderID string, entries []Entry) error {
	ctx, span := util.StartSpan(ctx, "Inventory.Release", attribute.String("order_id", orderID))
	defer span.End()

	var firstErr error
	for _, e := range entries {
		if e.ReservationID == 0 {
			if firstErr == nil {
				firstErr = fmt.Errorf("variant %d: entry holds no reservation", e.VariantID)
			}
			continue
		}

		released, err := s.store.ReleaseReservation(ctx, e.ReservationID)
		if err != nil {
			s.logger.Error("Failed to release stock",
				zap.String("order_id", orderID),
				zap.Int64("variant_id", e.VariantID),
				zap.Int64("reservation_id", e.ReservationID),
				zap.String("pool", string(e.Pool)),
				zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("release variant %d: %w", e.VariantID, err)
			}
			continue
		}
		util.InventoryReleasedUnits.WithLabelValues(string(e.Pool)).Add(float64(released))
	}

	util.RecordError(span, firstErr)
	return firstErr
}

// ReleaseOrder releases the ledger rows of an order that were reserved at or
// before cutoff. Rows written later belong to an operation still in flight
// and are left alone. A zero cutoff releases every open row.
func (s *Service) ReleaseOrder(ctx context.Context, orderID string, cutoff time.Time) error {
	open, err := s.store.OpenReservations(ctx, orderID)
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(open))
	for _, r := range open {
		if !cutoff.IsZero() && r.ReservedAt.After(cutoff) {
			continue
		}
		entries = append(entries, Entry{
			VariantID:     r.VariantID,
			Quantity:      r.Quantity,
			Pool:          r.Pool,
			ReservationID: r.ID,
		})
	}
	return s.Release(ctx, orderID, entries)
}

// Merge validates entries and folds duplicates of the same (variant, pool)
// into one, preserving first-seen order
func Merge(entries []Entry) ([]Entry, error) {
	type key struct {
		variantID int64
		pool      models.InventoryPool
	}

	index := make(map[key]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Pool == "" {
			e.Pool = models.PoolRegular
		}
		if !e.Pool.Valid() {
			return nil, fmt.Errorf("unknown inventory pool %q", e.Pool)
		}
		if e.Quantity <= 0 {
			return nil, fmt.Errorf("variant %d: quantity must be positive", e.VariantID)
		}

		k := key{e.VariantID, e.Pool}
		if i, ok := index[k]; ok {
			out[i].Quantity += e.Quantity
			continue
		}
		index[k] = len(out)
		out = append(out, e)
	}
	return out, nil
}

// Levels returns every pool counter of a variant
func (s *Service) Levels(ctx context.Context, variantID int64) ([]models.VariantStock, error) {
	levels, err := s.store.GetVariantStock(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read stock of variant %d: %w", variantID, err)
	}
	return levels, nil
}
