package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/models"
)

type stockKey struct {
	variantID int64
	pool      models.InventoryPool
}

// MemoryStore implements StockStore in memory with the same conditional
// semantics as the SQL store. Each call is atomic on its own; nothing spans
// calls.
type MemoryStore struct {
	mu           sync.Mutex
	stock        map[stockKey]int
	reservations []models.StockReservation
	nextID       int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stock: make(map[stockKey]int)}
}

// SetStock sets a pool counter
func (m *MemoryStore) SetStock(variantID int64, pool models.InventoryPool, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[stockKey{variantID, pool}] = stock
}

// Stock reads a pool counter
func (m *MemoryStore) Stock(variantID int64, pool models.InventoryPool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[stockKey{variantID, pool}]
}

func (m *MemoryStore) ReserveStock(_ context.Context, orderID string, variantID int64, pool models.InventoryPool, quantity int) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := stockKey{variantID, pool}
	current, ok := m.stock[k]
	if !ok || current < quantity {
		return 0, false, nil
	}
	m.stock[k] = current - quantity

	m.nextID++
	m.reservations = append(m.reservations, models.StockReservation{
		ID:         m.nextID,
		OrderID:    orderID,
		VariantID:  variantID,
		Pool:       pool,
		Quantity:   quantity,
		ReservedAt: time.Now(),
	})
	return m.nextID, true, nil
}

func (m *MemoryStore) ReleaseReservation(_ context.Context, reservationID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.reservations {
		r := &m.reservations[i]
		if r.ID != reservationID || r.ReleasedAt != nil {
			continue
		}
		now := time.Now()
		r.ReleasedAt = &now
		m.stock[stockKey{r.VariantID, r.Pool}] += r.Quantity
		return r.Quantity, nil
	}
	return 0, nil
}

func (m *MemoryStore) OpenReservations(_ context.Context, orderID string) ([]models.StockReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.StockReservation
	for _, r := range m.reservations {
		if r.OrderID == orderID && r.ReleasedAt == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetVariantStock(_ context.Context, variantID int64) ([]models.VariantStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.VariantStock
	for k, n := range m.stock {
		if k.variantID == variantID {
			out = append(out, models.VariantStock{VariantID: variantID, Pool: k.pool, Stock: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pool < out[j].Pool })
	return out, nil
}
