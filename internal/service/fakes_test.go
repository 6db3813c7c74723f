package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"checkout-service/internal/customer"
	"checkout-service/internal/discount"
	"checkout-service/internal/inventory"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/store"
)

// fakeStore is an in-memory OrderStore that also serves the discount engine
// and the COD tracker
type fakeStore struct {
	mu sync.Mutex

	products  map[int64]*models.Product
	variants  map[int64]*models.ProductVariant
	locations map[int64]*models.Location
	customers map[string]*models.Customer
	history   []models.CustomerHistory
	discounts map[string]*models.Discount
	usages    []models.DiscountUsage
	orders    map[string]*models.Order
	items     map[string][]models.OrderItem
	trackings map[string]*models.PaymentTracking

	writeErr    error
	restoreErr  error
	trackingErr error
	snapshots   int

	// beforeRestore runs ahead of every RestoreOrder call, outside the lock
	beforeRestore func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:  make(map[int64]*models.Product),
		variants:  make(map[int64]*models.ProductVariant),
		locations: make(map[int64]*models.Location),
		customers: make(map[string]*models.Customer),
		discounts: make(map[string]*models.Discount),
		orders:    make(map[string]*models.Order),
		items:     make(map[string][]models.OrderItem),
		trackings: make(map[string]*models.PaymentTracking),
	}
}

func (f *fakeStore) LoadCheckoutSnapshot(_ context.Context, q models.SnapshotQuery) (*models.CheckoutSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++

	snap := &models.CheckoutSnapshot{
		Variants:  make(map[int64]*models.ProductVariant),
		Products:  make(map[int64]*models.Product),
		Locations: make(map[int64]*models.Location),
	}
	for _, id := range q.VariantIDs {
		if v, ok := f.variants[id]; ok {
			snap.Variants[id] = v
		}
	}
	for _, id := range q.ProductIDs {
		if p, ok := f.products[id]; ok {
			snap.Products[id] = p
		}
	}
	for _, id := range q.LocationIDs {
		if l, ok := f.locations[id]; ok {
			snap.Locations[id] = l
		}
	}
	if c, ok := f.customers[q.CustomerPhone]; ok {
		cp := *c
		snap.Customer = &cp
	}
	if q.DiscountCode != "" {
		snap.Discount = f.discounts[models.NormalizeCode(q.DiscountCode)]
	}
	return snap, nil
}

func (f *fakeStore) WriteOrderBatch(_ context.Context, b *models.OrderBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return f.writeErr
	}
	if key := b.Order.IdempotencyKey; key != nil {
		for _, o := range f.orders {
			if o.IdempotencyKey != nil && *o.IdempotencyKey == *key {
				return store.ErrDuplicateIdempotencyKey
			}
		}
	}

	c := customer.Apply(f.customers[b.Customer.Phone], b.Customer)
	f.customers[c.Phone] = &c
	orderID := b.Order.ID
	f.history = append(f.history, models.CustomerHistory{
		Phone:   b.Customer.Phone,
		Name:    b.Customer.Name,
		Action:  b.Customer.HistoryAction,
		OrderID: &orderID,
	})

	o := *b.Order
	f.orders[o.ID] = &o
	f.items[o.ID] = append([]models.OrderItem(nil), b.Items...)
	if b.Usage != nil {
		f.usages = append(f.usages, *b.Usage)
	}
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetOrderItemsByOrderID(_ context.Context, id string) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id], nil
}

func (f *fakeStore) SoftDeleteOrder(_ context.Context, id string) (*models.Order, error) {
	return f.setDeleted(id, true)
}

func (f *fakeStore) RestoreOrder(_ context.Context, id string) (*models.Order, error) {
	if f.beforeRestore != nil {
		f.beforeRestore()
	}
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	return f.setDeleted(id, false)
}

func (f *fakeStore) setDeleted(id string, deleted bool) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if (o.DeletedAt != nil) == deleted {
		return nil, store.ErrStateConflict
	}
	if deleted {
		now := time.Now()
		o.DeletedAt = &now
	} else {
		o.DeletedAt = nil
	}

	var orders []models.Order
	for _, other := range f.orders {
		if other.CustomerPhone == o.CustomerPhone {
			orders = append(orders, *other)
		}
	}
	if c, ok := f.customers[o.CustomerPhone]; ok {
		updated := customer.Recompute(*c, orders)
		f.customers[o.CustomerPhone] = &updated
	}

	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetCustomerByPhone(_ context.Context, phone string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[phone]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetCustomerHistory(_ context.Context, phone string) ([]models.CustomerHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CustomerHistory
	for _, h := range f.history {
		if h.Phone == phone {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) GetDiscountByCode(_ context.Context, code string) (*models.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discounts[models.NormalizeCode(code)], nil
}

func (f *fakeStore) CountDiscountUsages(_ context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.usages {
		if u.DiscountID == id {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CustomerUsedDiscount(_ context.Context, id int64, phone string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.usages {
		o := f.orders[u.OrderID]
		if u.DiscountID == id && o != nil && o.CustomerPhone == phone && o.DeletedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) DiscountProductIDs(context.Context, int64) ([]int64, error) { return nil, nil }

func (f *fakeStore) DiscountCollections(context.Context, int64) ([]models.Collection, error) {
	return nil, nil
}

func (f *fakeStore) ActiveProductIDsByCategories(context.Context, []int64) ([]int64, error) {
	return nil, nil
}

func (f *fakeStore) CreatePaymentTracking(_ context.Context, t *models.PaymentTracking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trackingErr != nil {
		return f.trackingErr
	}
	if _, ok := f.trackings[t.OrderID]; !ok {
		f.trackings[t.OrderID] = t
	}
	return nil
}

func (f *fakeStore) GetPaymentTracking(_ context.Context, orderID string) (*models.PaymentTracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trackings[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *fakeNotifier) record(eventType string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, eventType)
	return nil
}

func (n *fakeNotifier) PublishOrderCreated(context.Context, *models.Order, []models.OrderItem) error {
	return n.record(models.EventTypeOrderCreated)
}

func (n *fakeNotifier) PublishOrderDeleted(context.Context, *models.Order) error {
	return n.record(models.EventTypeOrderDeleted)
}

func (n *fakeNotifier) PublishOrderRestored(context.Context, *models.Order) error {
	return n.record(models.EventTypeOrderRestored)
}

// fixture is a wired pipeline over in-memory collaborators
type fixture struct {
	store    *fakeStore
	stock    *inventory.MemoryStore
	notifier *fakeNotifier
	svc      *OrderService
}

func newFixture(idem IdempotencyStore) *fixture {
	fs := newFakeStore()
	fs.locations[1] = &models.Location{ID: 1, Kind: models.LocationCity, Name: "Dhaka"}
	fs.locations[2] = &models.Location{ID: 2, Kind: models.LocationZone, Name: "Gulshan"}
	fs.locations[3] = &models.Location{ID: 3, Kind: models.LocationArea, Name: "Gulshan 1"}

	stock := inventory.NewMemoryStore()
	notifier := &fakeNotifier{}

	svc := NewOrderService(
		fs,
		inventory.NewService(stock),
		discount.NewEngine(fs),
		notifier,
		NewCODTracker(fs),
		idem,
		Options{CompensationTimeout: time.Second},
	)

	return &fixture{store: fs, stock: stock, notifier: notifier, svc: svc}
}

// addVariant registers a product with one variant holding stock in the
// regular pool
func (fx *fixture) addVariant(productID, variantID, price int64, stock int) {
	fx.store.products[productID] = &models.Product{ID: productID, Name: "Product", Price: price, IsActive: true}
	fx.store.variants[variantID] = &models.ProductVariant{
		ID: variantID, ProductID: productID, Label: "Default", Price: price, IsActive: true,
	}
	fx.stock.SetStock(variantID, models.PoolRegular, stock)
}

func int64Ptr(n int64) *int64 { return &n }

func baseRequest(items ...OrderItemRequest) *CreateOrderRequest {
	return &CreateOrderRequest{
		CustomerName:    "Rahim",
		CustomerPhone:   "01700-000000",
		ShippingAddress: "House 1, Road 2",
		CityID:          1,
		ZoneID:          2,
		AreaID:          3,
		Items:           items,
		ShippingCharge:  0,
		PaymentMethod:   models.PaymentMethodCard,
	}
}

var _ IdempotencyStore = (*redisclient.Client)(nil)

var errBoom = errors.New("boom")
