// Package discount validates discount codes against a cart and computes the
// amount they take off.
package discount

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/apperrors"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Repository is the read side the engine needs
type Repository interface {
	GetDiscountByCode(ctx context.Context, code string) (*models.Discount, error)
	CountDiscountUsages(ctx context.Context, discountID int64) (int, error)
	CustomerUsedDiscount(ctx context.Context, discountID int64, phone string) (bool, error)
	DiscountProductIDs(ctx context.Context, discountID int64) ([]int64, error)
	DiscountCollections(ctx context.Context, discountID int64) ([]models.Collection, error)
	ActiveProductIDsByCategories(ctx context.Context, categoryIDs []int64) ([]int64, error)
}

// Reason is the machine-readable cause of a rejection
type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonInactive      Reason = "inactive"
	ReasonNotStarted    Reason = "not_started"
	ReasonExpired       Reason = "expired"
	ReasonMinPurchase   Reason = "min_purchase"
	ReasonMinQuantity   Reason = "min_quantity"
	ReasonUsageLimit    Reason = "usage_limit"
	ReasonAlreadyUsed   Reason = "already_used"
	ReasonNotApplicable Reason = "not_applicable"
	ReasonUnsupported   Reason = "unsupported_kind"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:      "discount code not found",
	ReasonInactive:      "discount is not active",
	ReasonNotStarted:    "discount is not yet valid",
	ReasonExpired:       "discount has expired",
	ReasonMinPurchase:   "minimum purchase amount not met",
	ReasonMinQuantity:   "minimum quantity not met",
	ReasonUsageLimit:    "usage limit",
	ReasonAlreadyUsed:   "discount already used by this customer",
	ReasonNotApplicable: "not applicable to cart contents",
	ReasonUnsupported:   "discount type is not supported",
}

// CartItem is one priced line of a cart
type CartItem struct {
	ProductID int64 `json:"productId"`
	VariantID int64 `json:"variantId,omitempty"`
	Quantity  int   `json:"quantity" validate:"gt=0"`
	UnitPrice int64 `json:"price" validate:"gte=0"`
}

// Cart is what a discount is validated against. Total is the amount the
// caller treats as the cart total; order discounts take shipping off it.
type Cart struct {
	Total         int64      `json:"cartTotal"`
	Items         []CartItem `json:"items"`
	CustomerPhone string     `json:"customerPhone"`
}

func (c Cart) quantity() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Combinability tells which other discount categories may be applied
// alongside a discount
type Combinability struct {
	Product  bool `json:"product"`
	Order    bool `json:"order"`
	Shipping bool `json:"shipping"`
}

// Validation is the outcome of validating a code
type Validation struct {
	Valid         bool             `json:"valid"`
	Reason        Reason           `json:"reason,omitempty"`
	Error         string           `json:"error,omitempty"`
	Discount      *models.Discount `json:"discount,omitempty"`
	Combinability *Combinability   `json:"combinability,omitempty"`

	// DeferCustomerCheck is set when the discount is one-per-customer but no
	// phone was given; CheckCustomerLimit must run once the phone is known.
	DeferCustomerCheck bool `json:"-"`
}

// Err converts a rejection into a DiscountRejected error
func (v *Validation) Err() error {
	if v == nil || v.Valid {
		return nil
	}
	return apperrors.DiscountRejected(string(v.Reason), v.Error)
}

func reject(reason Reason) *Validation {
	return &Validation{Reason: reason, Error: reasonMessages[reason]}
}

// Engine validates discounts and calculates their amounts
type Engine struct {
	repo   Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewEngine creates a discount engine
func NewEngine(repo Repository) *Engine {
	return &Engine{
		repo:   repo,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// Validate looks the code up and validates it against the cart
func (e *Engine) Validate(ctx context.Context, scope *Scope, code string, cart Cart) (*Validation, error) {
	d, err := e.repo.GetDiscountByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get discount: %w", err)
	}
	return e.ValidateDiscount(ctx, scope, d, cart)
}

// ValidateDiscount runs the checks in order and stops at the first failure.
// A nil discount is reported as not found. The returned error is only set
// for store failures.
func (e *Engine) ValidateDiscount(ctx context.Context, scope *Scope, d *models.Discount, cart Cart) (*Validation, error) {
	ctx, span := util.StartSpan(ctx, "Discount.Validate")
	defer span.End()

	v, err := e.validate(ctx, scope, d, cart)
	if err != nil {
		util.RecordError(span, err)
		util.DiscountValidationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if v.Valid {
		util.DiscountValidationsTotal.WithLabelValues("valid").Inc()
		span.SetAttributes(attribute.String("discount.code", d.Code))
	} else {
		util.DiscountValidationsTotal.WithLabelValues(string(v.Reason)).Inc()
		span.SetAttributes(attribute.String("discount.rejected", string(v.Reason)))
	}
	return v, nil
}

func (e *Engine) validate(ctx context.Context, scope *Scope, d *models.Discount, cart Cart) (*Validation, error) {
	if d == nil {
		return reject(ReasonNotFound), nil
	}
	if !d.IsActive {
		return reject(ReasonInactive), nil
	}
	if !d.Kind.Valid() {
		return reject(ReasonUnsupported), nil
	}

	now := e.now()
	if now.Before(d.StartDate) {
		return reject(ReasonNotStarted), nil
	}
	if d.EndDate != nil && !now.Before(*d.EndDate) {
		return reject(ReasonExpired), nil
	}

	if d.MinPurchaseAmount != nil && cart.Total < *d.MinPurchaseAmount {
		return reject(ReasonMinPurchase), nil
	}
	if d.MinQuantity != nil && cart.quantity() < *d.MinQuantity {
		return reject(ReasonMinQuantity), nil
	}

	// Advisory: nothing stops a concurrent order from taking the last use
	// between this count and the usage insert.
	if d.MaxUses != nil {
		used, err := e.repo.CountDiscountUsages(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("count discount usages: %w", err)
		}
		if used >= *d.MaxUses {
			return reject(ReasonUsageLimit), nil
		}
	}

	v := &Validation{Valid: true, Discount: d}

	if d.LimitOnePerCustomer {
		if cart.CustomerPhone == "" {
			v.DeferCustomerCheck = true
		} else if err := e.CheckCustomerLimit(ctx, d, cart.CustomerPhone); err != nil {
			if apperrors.Is(err, apperrors.KindDiscountRejected) {
				return reject(ReasonAlreadyUsed), nil
			}
			return nil, err
		}
	}

	if d.Kind == models.DiscountProductAmountOff {
		set, err := e.applicableProducts(ctx, scope, d)
		if err != nil {
			return nil, err
		}
		if len(set) > 0 && matchedSubtotal(set, cart.Items) < 0 {
			return reject(ReasonNotApplicable), nil
		}
	}

	c := CombinabilityOf(d)
	v.Combinability = &c
	return v, nil
}

// CheckCustomerLimit rejects a one-per-customer discount the phone has
// already used on a live order
func (e *Engine) CheckCustomerLimit(ctx context.Context, d *models.Discount, phone string) error {
	if d == nil || !d.LimitOnePerCustomer || phone == "" {
		return nil
	}

	used, err := e.repo.CustomerUsedDiscount(ctx, d.ID, phone)
	if err != nil {
		return fmt.Errorf("check customer discount usage: %w", err)
	}
	if used {
		return apperrors.DiscountRejected(string(ReasonAlreadyUsed), reasonMessages[ReasonAlreadyUsed])
	}
	return nil
}

// CombinabilityOf derives which categories can stack with d
func CombinabilityOf(d *models.Discount) Combinability {
	switch d.Kind {
	case models.DiscountProductAmountOff:
		return Combinability{Product: false, Order: true, Shipping: true}
	case models.DiscountOrderAmountOff:
		return Combinability{
			Product:  d.CombineWithProductDiscounts,
			Order:    false,
			Shipping: d.CombineWithShippingDiscount,
		}
	case models.DiscountFreeShipping:
		return Combinability{Product: true, Order: true, Shipping: false}
	}
	return Combinability{}
}

// applicableProducts expands the discount's explicit products and linked
// collections into one set, memoised in scope
func (e *Engine) applicableProducts(ctx context.Context, scope *Scope, d *models.Discount) (map[int64]struct{}, error) {
	if set, ok := scope.lookup(d.ID); ok {
		return set, nil
	}

	set := make(map[int64]struct{})

	productIDs, err := e.repo.DiscountProductIDs(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("get discount products: %w", err)
	}
	for _, id := range productIDs {
		set[id] = struct{}{}
	}

	collections, err := e.repo.DiscountCollections(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("get discount collections: %w", err)
	}

	var categoryIDs []int64
	for _, col := range collections {
		cfg, err := ParseCollectionConfig(col.Config)
		if err != nil {
			e.logger.Warn("Skipping collection with unreadable config",
				zap.Int64("collection_id", col.ID),
				zap.Int64("discount_id", d.ID),
				zap.Error(err))
			continue
		}
		categoryIDs = append(categoryIDs, cfg.CategoryIDs...)
		for _, id := range cfg.ProductIDs {
			set[id] = struct{}{}
		}
	}

	if len(categoryIDs) > 0 {
		ids, err := e.repo.ActiveProductIDsByCategories(ctx, categoryIDs)
		if err != nil {
			return nil, fmt.Errorf("expand collection categories: %w", err)
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}

	scope.store(d.ID, set)
	return set, nil
}

// matchedSubtotal sums the cart lines in set, or returns -1 when no line is
func matchedSubtotal(set map[int64]struct{}, items []CartItem) int64 {
	var total int64
	matched := false
	for _, it := range items {
		if _, ok := set[it.ProductID]; ok {
			matched = true
			total += it.UnitPrice * int64(it.Quantity)
		}
	}
	if !matched {
		return -1
	}
	return total
}
