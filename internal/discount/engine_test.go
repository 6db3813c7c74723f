package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"checkout-service/internal/apperrors"
	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	discounts      map[string]*models.Discount
	usages         map[int64]int
	usedBy         map[int64]map[string]bool
	products       map[int64][]int64
	collections    map[int64][]models.Collection
	categories     map[int64][]int64
	expansionCalls int
	err            error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		discounts:   make(map[string]*models.Discount),
		usages:      make(map[int64]int),
		usedBy:      make(map[int64]map[string]bool),
		products:    make(map[int64][]int64),
		collections: make(map[int64][]models.Collection),
		categories:  make(map[int64][]int64),
	}
}

func (f *fakeRepo) GetDiscountByCode(_ context.Context, code string) (*models.Discount, error) {
	return f.discounts[models.NormalizeCode(code)], f.err
}

func (f *fakeRepo) CountDiscountUsages(_ context.Context, id int64) (int, error) {
	return f.usages[id], f.err
}

func (f *fakeRepo) CustomerUsedDiscount(_ context.Context, id int64, phone string) (bool, error) {
	return f.usedBy[id][phone], f.err
}

func (f *fakeRepo) DiscountProductIDs(_ context.Context, id int64) ([]int64, error) {
	f.expansionCalls++
	return f.products[id], f.err
}

func (f *fakeRepo) DiscountCollections(_ context.Context, id int64) ([]models.Collection, error) {
	return f.collections[id], f.err
}

func (f *fakeRepo) ActiveProductIDsByCategories(_ context.Context, ids []int64) ([]int64, error) {
	var out []int64
	for _, c := range ids {
		out = append(out, f.categories[c]...)
	}
	return out, f.err
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(repo Repository) *Engine {
	e := NewEngine(repo)
	e.now = func() time.Time { return fixedNow }
	return e
}

func intPtr(n int) *int       { return &n }
func int64Ptr(n int64) *int64 { return &n }

func activeDiscount(id int64, code string, kind models.DiscountKind, vt models.ValueType, value float64) *models.Discount {
	return &models.Discount{
		ID:        id,
		Code:      code,
		Kind:      kind,
		ValueType: vt,
		Value:     value,
		IsActive:  true,
		StartDate: fixedNow.Add(-24 * time.Hour),
	}
}

func TestSave10Example(t *testing.T) {
	repo := newFakeRepo()
	repo.discounts["SAVE10"] = activeDiscount(1, "SAVE10", models.DiscountOrderAmountOff, models.ValuePercentage, 10)
	e := newTestEngine(repo)
	ctx := context.Background()
	scope := NewScope()

	cart := Cart{Total: 1000, Items: []CartItem{{ProductID: 1, Quantity: 1, UnitPrice: 1000}}}
	v, err := e.Validate(ctx, scope, " save10 ", cart)
	require.NoError(t, err)
	require.True(t, v.Valid)

	amount, err := e.CalculateAmount(ctx, scope, v.Discount, cart, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(90), amount)
	assert.Equal(t, int64(1010), cart.Total+100-amount)
}

func TestValidateRejections(t *testing.T) {
	end := fixedNow.Add(-time.Minute)
	tests := []struct {
		name   string
		mutate func(d *models.Discount, r *fakeRepo)
		cart   Cart
		reason Reason
	}{
		{
			name:   "inactive",
			mutate: func(d *models.Discount, _ *fakeRepo) { d.IsActive = false },
			reason: ReasonInactive,
		},
		{
			name:   "not started",
			mutate: func(d *models.Discount, _ *fakeRepo) { d.StartDate = fixedNow.Add(time.Hour) },
			reason: ReasonNotStarted,
		},
		{
			name:   "expired",
			mutate: func(d *models.Discount, _ *fakeRepo) { d.EndDate = &end },
			reason: ReasonExpired,
		},
		{
			name:   "end date is exclusive",
			mutate: func(d *models.Discount, _ *fakeRepo) { e := fixedNow; d.EndDate = &e },
			reason: ReasonExpired,
		},
		{
			name:   "minimum purchase",
			mutate: func(d *models.Discount, _ *fakeRepo) { d.MinPurchaseAmount = int64Ptr(5000) },
			cart:   Cart{Total: 4999},
			reason: ReasonMinPurchase,
		},
		{
			name:   "minimum quantity",
			mutate: func(d *models.Discount, _ *fakeRepo) { d.MinQuantity = intPtr(3) },
			cart:   Cart{Items: []CartItem{{ProductID: 1, Quantity: 2}}},
			reason: ReasonMinQuantity,
		},
		{
			name: "usage limit",
			mutate: func(d *models.Discount, r *fakeRepo) {
				d.MaxUses = intPtr(1)
				r.usages[d.ID] = 1
			},
			reason: ReasonUsageLimit,
		},
		{
			name: "already used by phone",
			mutate: func(d *models.Discount, r *fakeRepo) {
				d.LimitOnePerCustomer = true
				r.usedBy[d.ID] = map[string]bool{"01700000000": true}
			},
			cart:   Cart{CustomerPhone: "01700000000"},
			reason: ReasonAlreadyUsed,
		},
		{
			name:   "unsupported kind",
			mutate: func(d *models.Discount, _ *fakeRepo) { d.Kind = "buy_one_get_one" },
			reason: ReasonUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			d := activeDiscount(7, "CODE", models.DiscountOrderAmountOff, models.ValueFixed, 50)
			tt.mutate(d, repo)
			repo.discounts["CODE"] = d

			v, err := newTestEngine(repo).Validate(context.Background(), NewScope(), "CODE", tt.cart)
			require.NoError(t, err)
			assert.False(t, v.Valid)
			assert.Equal(t, tt.reason, v.Reason)
			assert.True(t, apperrors.Is(v.Err(), apperrors.KindDiscountRejected))
		})
	}
}

func TestUsageLimitMessage(t *testing.T) {
	repo := newFakeRepo()
	d := activeDiscount(1, "ONCE", models.DiscountOrderAmountOff, models.ValueFixed, 10)
	d.MaxUses = intPtr(1)
	repo.discounts["ONCE"] = d
	repo.usages[1] = 1

	v, err := newTestEngine(repo).Validate(context.Background(), nil, "ONCE", Cart{Total: 100})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "usage limit", v.Error)
}

func TestValidateUnknownCode(t *testing.T) {
	v, err := newTestEngine(newFakeRepo()).Validate(context.Background(), nil, "NOPE", Cart{})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonNotFound, v.Reason)
}

func TestValidateStoreError(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("connection reset")

	_, err := newTestEngine(repo).Validate(context.Background(), nil, "X", Cart{})
	assert.Error(t, err)
}

func TestOnePerCustomerDeferredWithoutPhone(t *testing.T) {
	repo := newFakeRepo()
	d := activeDiscount(3, "FIRST", models.DiscountOrderAmountOff, models.ValueFixed, 10)
	d.LimitOnePerCustomer = true
	repo.discounts["FIRST"] = d
	repo.usedBy[3] = map[string]bool{"01700000000": true}
	e := newTestEngine(repo)
	ctx := context.Background()

	v, err := e.Validate(ctx, nil, "FIRST", Cart{Total: 100})
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.True(t, v.DeferCustomerCheck)

	err = e.CheckCustomerLimit(ctx, d, "01700000000")
	assert.True(t, apperrors.Is(err, apperrors.KindDiscountRejected))
	assert.NoError(t, e.CheckCustomerLimit(ctx, d, "01800000000"))
}

func TestFreeShippingEqualsShipping(t *testing.T) {
	d := activeDiscount(1, "SHIPFREE", models.DiscountFreeShipping, models.ValueFixed, 0)
	e := newTestEngine(newFakeRepo())

	for _, shipping := range []int64{0, 60, 120, 999} {
		amount, err := e.CalculateAmount(context.Background(), nil, d, Cart{Total: 500}, shipping)
		require.NoError(t, err)
		assert.Equal(t, shipping, amount)
	}
}

func TestOrderDiscountCappedAtBase(t *testing.T) {
	e := newTestEngine(newFakeRepo())
	ctx := context.Background()

	pct := activeDiscount(1, "ALL", models.DiscountOrderAmountOff, models.ValuePercentage, 150)
	amount, err := e.CalculateAmount(ctx, nil, pct, Cart{Total: 700}, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(600), amount)

	fixed := activeDiscount(2, "BIG", models.DiscountOrderAmountOff, models.ValueFixed, 10000)
	amount, err = e.CalculateAmount(ctx, nil, fixed, Cart{Total: 700}, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(600), amount)

	// Shipping larger than the cart total leaves nothing to discount.
	amount, err = e.CalculateAmount(ctx, nil, pct, Cart{Total: 50}, 100)
	require.NoError(t, err)
	assert.Zero(t, amount)
}

func TestPercentageRounds(t *testing.T) {
	d := activeDiscount(1, "P", models.DiscountOrderAmountOff, models.ValuePercentage, 12.5)
	amount, err := newTestEngine(newFakeRepo()).CalculateAmount(context.Background(), nil, d, Cart{Total: 999}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(125), amount)
}

func TestProductDiscountCollectionExpansion(t *testing.T) {
	repo := newFakeRepo()
	d := activeDiscount(5, "SHOES", models.DiscountProductAmountOff, models.ValuePercentage, 20)
	repo.discounts["SHOES"] = d
	repo.products[5] = []int64{10}
	repo.collections[5] = []models.Collection{
		{ID: 1, Config: []byte(`{"categories": ["3"], "products": [11]}`)},
		{ID: 2, Config: []byte(`{"version": 2, "categoryIds": [4], "productIds": []}`)},
	}
	repo.categories[3] = []int64{30, 31}
	repo.categories[4] = []int64{40}
	e := newTestEngine(repo)
	ctx := context.Background()
	scope := NewScope()

	cart := Cart{
		Total: 2000,
		Items: []CartItem{
			{ProductID: 31, Quantity: 2, UnitPrice: 300},
			{ProductID: 40, Quantity: 1, UnitPrice: 400},
			{ProductID: 99, Quantity: 1, UnitPrice: 1000},
		},
	}

	v, err := e.Validate(ctx, scope, "SHOES", cart)
	require.NoError(t, err)
	require.True(t, v.Valid)
	assert.Equal(t, Combinability{Product: false, Order: true, Shipping: true}, *v.Combinability)

	amount, err := e.CalculateAmount(ctx, scope, d, cart, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(200), amount)

	// Calculation reused the set validation built.
	assert.Equal(t, 1, repo.expansionCalls)
}

func TestProductDiscountNotApplicable(t *testing.T) {
	repo := newFakeRepo()
	repo.discounts["SHOES"] = activeDiscount(5, "SHOES", models.DiscountProductAmountOff, models.ValueFixed, 100)
	repo.products[5] = []int64{10}

	v, err := newTestEngine(repo).Validate(context.Background(), NewScope(), "SHOES",
		Cart{Total: 500, Items: []CartItem{{ProductID: 20, Quantity: 1, UnitPrice: 500}}})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonNotApplicable, v.Reason)
	assert.Equal(t, "not applicable to cart contents", v.Error)
}

func TestUnrestrictedProductDiscountUsesWholeSubtotal(t *testing.T) {
	d := activeDiscount(5, "ANY", models.DiscountProductAmountOff, models.ValuePercentage, 10)
	amount, err := newTestEngine(newFakeRepo()).CalculateAmount(context.Background(), NewScope(), d,
		Cart{Total: 1100, Items: []CartItem{{ProductID: 1, Quantity: 1, UnitPrice: 1000}}}, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), amount)
}

func TestScopesAreIndependent(t *testing.T) {
	repo := newFakeRepo()
	d := activeDiscount(5, "SHOES", models.DiscountProductAmountOff, models.ValueFixed, 100)
	repo.products[5] = []int64{10}
	e := newTestEngine(repo)
	cart := Cart{Items: []CartItem{{ProductID: 10, Quantity: 1, UnitPrice: 500}}}

	_, err := e.CalculateAmount(context.Background(), NewScope(), d, cart, 0)
	require.NoError(t, err)
	_, err = e.CalculateAmount(context.Background(), NewScope(), d, cart, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, repo.expansionCalls)
}

func TestCombinability(t *testing.T) {
	order := activeDiscount(1, "O", models.DiscountOrderAmountOff, models.ValueFixed, 10)
	order.CombineWithProductDiscounts = true
	assert.Equal(t, Combinability{Product: true, Order: false, Shipping: false}, CombinabilityOf(order))

	order.CombineWithShippingDiscount = true
	order.CombineWithOrderDiscounts = true
	assert.Equal(t, Combinability{Product: true, Order: false, Shipping: true}, CombinabilityOf(order))

	ship := activeDiscount(2, "S", models.DiscountFreeShipping, models.ValueFixed, 0)
	assert.Equal(t, Combinability{Product: true, Order: true, Shipping: false}, CombinabilityOf(ship))
}

func TestUnknownKind(t *testing.T) {
	d := activeDiscount(1, "X", "buy_one_get_one", models.ValueFixed, 10)
	_, err := newTestEngine(newFakeRepo()).CalculateAmount(context.Background(), nil, d, Cart{Total: 10}, 0)
	assert.Error(t, err)
}
