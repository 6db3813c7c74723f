package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"checkout-service/internal/apperrors"
	"checkout-service/internal/customer"
	"checkout-service/internal/discount"
	"checkout-service/internal/inventory"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Options tunes the pipeline
type Options struct {
	DefaultPool         models.InventoryPool
	MaxItemQuantity     int
	IdempotencyTTL      time.Duration
	CompensationTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if !o.DefaultPool.Valid() {
		o.DefaultPool = models.PoolRegular
	}
	if o.MaxItemQuantity <= 0 {
		o.MaxItemQuantity = 1000
	}
	if o.IdempotencyTTL <= 0 {
		o.IdempotencyTTL = 24 * time.Hour
	}
	if o.CompensationTimeout <= 0 {
		o.CompensationTimeout = 10 * time.Second
	}
	return o
}

// OrderService handles order business logic
type OrderService struct {
	store       OrderStore
	reserver    Reserver
	discounts   DiscountEngine
	notifier    Notifier
	cod         CODInitializer
	idempotency IdempotencyStore
	opts        Options
	now         func() time.Time
	logger      *zap.Logger
}

// NewOrderService creates a new order service. idempotency may be nil, in
// which case Idempotency-Key is ignored.
func NewOrderService(
	store OrderStore,
	reserver Reserver,
	discounts DiscountEngine,
	notifier Notifier,
	cod CODInitializer,
	idempotency IdempotencyStore,
	opts Options,
) *OrderService {
	return &OrderService{
		store:       store,
		reserver:    reserver,
		discounts:   discounts,
		notifier:    notifier,
		cod:         cod,
		idempotency: idempotency,
		opts:        opts.withDefaults(),
		now:         time.Now,
		logger:      util.GetLogger(),
	}
}

// CreateOrderRequest represents a checkout submission
type CreateOrderRequest struct {
	CustomerName    string               `json:"customerName" validate:"required,max=255"`
	CustomerPhone   string               `json:"customerPhone" validate:"required,max=32"`
	CustomerEmail   string               `json:"customerEmail" validate:"omitempty,email"`
	ShippingAddress string               `json:"shippingAddress" validate:"required"`
	CityID          int64                `json:"cityId" validate:"required,gt=0"`
	ZoneID          int64                `json:"zoneId" validate:"required,gt=0"`
	AreaID          int64                `json:"areaId" validate:"required,gt=0"`
	Notes           string               `json:"notes" validate:"max=1000"`
	Items           []OrderItemRequest   `json:"items" validate:"required,min=1,dive"`
	DiscountAmount  int64                `json:"discountAmount"`
	DiscountCode    string               `json:"discountCode" validate:"max=64"`
	ShippingCharge  int64                `json:"shippingCharge" validate:"gte=0"`
	PaymentMethod   string               `json:"paymentMethod" validate:"required,payment_method"`
	InventoryPool   models.InventoryPool `json:"inventoryPool" validate:"omitempty,inventory_pool"`

	// IdempotencyKey comes from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

// OrderItemRequest represents an item in an order. Price is what the client
// displayed; it is never used for the order.
type OrderItemRequest struct {
	ProductID int64  `json:"productId" validate:"required,gt=0"`
	VariantID *int64 `json:"variantId" validate:"omitempty,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Price     int64  `json:"price"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID       string `json:"orderId"`
	PaymentMethod string `json:"paymentMethod"`
	TotalAmount   int64  `json:"totalAmount"`
	Replayed      bool   `json:"replayed,omitempty"`
}

// CreateOrder runs the checkout pipeline: validate, read, price, discount,
// reserve, write, then fire side effects.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (resp *CreateOrderResponse, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderPipelineLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues(string(apperrors.KindOf(err))).Inc()
			util.RecordError(span, err)
		}
	}()

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		replay, claimed, claimErr := s.claimIdempotency(ctx, req.IdempotencyKey)
		if claimErr != nil || replay != nil {
			return replay, claimErr
		}
		if claimed {
			defer func() { s.settleIdempotency(ctx, req.IdempotencyKey, resp, err) }()
		}
	}

	orderID := uuid.New().String()
	span.SetAttributes(attribute.String("order_id", orderID))

	return s.placeOrder(ctx, orderID, req)
}

func (s *OrderService) validateRequest(req *CreateOrderRequest) error {
	if req == nil {
		return apperrors.Validation("request body is required")
	}
	if err := validateStruct(req); err != nil {
		return err
	}

	for i, item := range req.Items {
		if item.Quantity > s.opts.MaxItemQuantity {
			return apperrors.Validation("items[%d].quantity must be at most %d", i, s.opts.MaxItemQuantity)
		}
	}
	if strings.TrimSpace(req.CustomerName) == "" || customer.NormalizePhone(req.CustomerPhone) == "" {
		return apperrors.Validation("customer name and phone are required")
	}
	return nil
}

func (s *OrderService) placeOrder(ctx context.Context, orderID string, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	phone := customer.NormalizePhone(req.CustomerPhone)
	pool := req.InventoryPool
	if pool == "" {
		pool = s.opts.DefaultPool
	}

	snap, err := s.store.LoadCheckoutSnapshot(ctx, snapshotQuery(req, phone))
	if err != nil {
		return nil, apperrors.Persistence("load checkout data", err)
	}

	lines, itemTotal, err := priceItems(req.Items, snap)
	if err != nil {
		return nil, err
	}
	cityName, zoneName, areaName, err := resolveLocations(req, snap)
	if err != nil {
		return nil, err
	}

	scope := discount.NewScope()
	applied, discountAmount, err := s.resolveDiscount(ctx, scope, req, snap, lines, itemTotal, phone)
	if err != nil {
		return nil, err
	}

	total := itemTotal + req.ShippingCharge - discountAmount

	sg := newSaga(orderID, s.opts.CompensationTimeout, s.logger)

	entries := reservationEntries(lines, pool)
	if len(entries) > 0 {
		res, err := s.reserver.Reserve(ctx, orderID, entries)
		if reserved := res.Reserved(); len(reserved) > 0 {
			sg.record("release_stock", func(ctx context.Context) error {
				return s.reserver.Release(ctx, orderID, reserved)
			})
		}
		if err != nil {
			sg.compensate(ctx)
			return nil, apperrors.Persistence("reserve stock", err)
		}
		if !res.Success {
			sg.compensate(ctx)
			return nil, apperrors.InsufficientStock(res.FailedVariantID, res.FailedPool)
		}
	}

	now := s.now()
	order := &models.Order{
		ID:                orderID,
		CustomerName:      strings.TrimSpace(req.CustomerName),
		CustomerPhone:     phone,
		CustomerEmail:     strings.TrimSpace(req.CustomerEmail),
		ShippingAddress:   strings.TrimSpace(req.ShippingAddress),
		CityID:            req.CityID,
		ZoneID:            req.ZoneID,
		AreaID:            req.AreaID,
		CityName:          cityName,
		ZoneName:          zoneName,
		AreaName:          areaName,
		Notes:             req.Notes,
		TotalAmount:       total,
		ShippingCharge:    req.ShippingCharge,
		DiscountAmount:    discountAmount,
		Status:            models.OrderStatusPending,
		PaymentMethod:     req.PaymentMethod,
		PaymentStatus:     models.PaymentStatusUnpaid,
		BalanceDue:        total,
		FulfillmentStatus: models.FulfillmentUnfulfilled,
		InventoryPool:     pool,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	batch := &models.OrderBatch{
		Customer: customer.Plan(snap.Customer, customer.Details{
			Phone:   phone,
			Name:    req.CustomerName,
			Email:   req.CustomerEmail,
			Address: req.ShippingAddress,
		}, total, now),
		Order: order,
		Items: orderItems(orderID, lines),
	}
	if applied != nil {
		order.DiscountCode = applied.Code
		batch.Usage = &models.DiscountUsage{
			DiscountID:    applied.ID,
			OrderID:       orderID,
			CustomerPhone: phone,
			Amount:        discountAmount,
			UsedAt:        now,
		}
	}

	if err := s.store.WriteOrderBatch(ctx, batch); err != nil {
		sg.compensate(ctx)
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
			return s.replayByKey(ctx, req.IdempotencyKey)
		}
		s.logger.Error("Order write failed, releasing reservations",
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, apperrors.Persistence("write order", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", orderID),
		zap.Int64("total_amount", total),
		zap.String("pool", string(pool)))

	s.afterCommit(ctx, order, batch.Items)

	return &CreateOrderResponse{
		OrderID:       orderID,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   total,
	}, nil
}

func snapshotQuery(req *CreateOrderRequest, phone string) models.SnapshotQuery {
	q := models.SnapshotQuery{
		LocationIDs:   []int64{req.CityID, req.ZoneID, req.AreaID},
		CustomerPhone: phone,
		DiscountCode:  strings.TrimSpace(req.DiscountCode),
	}
	for _, item := range req.Items {
		q.ProductIDs = append(q.ProductIDs, item.ProductID)
		if item.VariantID != nil {
			q.VariantIDs = append(q.VariantIDs, *item.VariantID)
		}
	}
	return q
}

// resolveDiscount validates the submitted code against the server-priced
// cart. The client's discountAmount plays no part.
func (s *OrderService) resolveDiscount(
	ctx context.Context,
	scope *discount.Scope,
	req *CreateOrderRequest,
	snap *models.CheckoutSnapshot,
	lines []pricedLine,
	itemTotal int64,
	phone string,
) (*models.Discount, int64, error) {
	if strings.TrimSpace(req.DiscountCode) == "" {
		return nil, 0, nil
	}

	cart := discount.Cart{Total: itemTotal, Items: cartItems(lines), CustomerPhone: phone}
	v, err := s.discounts.ValidateDiscount(ctx, scope, snap.Discount, cart)
	if err != nil {
		return nil, 0, apperrors.Persistence("validate discount", err)
	}
	if !v.Valid {
		return nil, 0, v.Err()
	}

	if v.DeferCustomerCheck {
		if err := s.discounts.CheckCustomerLimit(ctx, v.Discount, phone); err != nil {
			if apperrors.Is(err, apperrors.KindDiscountRejected) {
				return nil, 0, err
			}
			return nil, 0, apperrors.Persistence("check discount usage", err)
		}
	}

	amount, err := s.discounts.CalculateAmount(ctx, scope, v.Discount, cart, req.ShippingCharge)
	if err != nil {
		return nil, 0, apperrors.Persistence("calculate discount", err)
	}
	return v.Discount, amount, nil
}

func reservationEntries(lines []pricedLine, pool models.InventoryPool) []inventory.Entry {
	var entries []inventory.Entry
	for _, l := range lines {
		if l.VariantID == nil {
			continue
		}
		entries = append(entries, inventory.Entry{VariantID: *l.VariantID, Quantity: l.Quantity, Pool: pool})
	}
	return entries
}

func orderItems(orderID string, lines []pricedLine) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.OrderItem{
			OrderID:      orderID,
			ProductID:    l.ProductID,
			VariantID:    l.VariantID,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			ProductName:  l.ProductName,
			VariantLabel: l.VariantLabel,
		})
	}
	return items
}

// afterCommit fires the notification and COD tracking. The order is already
// durable, so failures are only logged.
func (s *OrderService) afterCommit(ctx context.Context, order *models.Order, items []models.OrderItem) {
	if err := s.notifier.PublishOrderCreated(ctx, order, items); err != nil {
		util.SideEffectFailuresTotal.WithLabelValues("notification").Inc()
		s.logger.Error("Failed to publish OrderCreated event",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	if order.PaymentMethod != models.PaymentMethodCOD {
		return
	}
	if err := s.cod.InitCOD(ctx, order); err != nil {
		util.SideEffectFailuresTotal.WithLabelValues("cod_tracking").Inc()
		s.logger.Error("Failed to initialise COD tracking",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}

// claimIdempotency returns the earlier response when key was already used.
// A Redis failure degrades to processing the request without deduplication.
func (s *OrderService) claimIdempotency(ctx context.Context, key string) (*CreateOrderResponse, bool, error) {
	claim, err := s.idempotency.ClaimIdempotencyKey(ctx, key, s.opts.IdempotencyTTL)
	if err != nil {
		s.logger.Warn("Idempotency check unavailable", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false, nil
	}

	switch {
	case claim.Claimed:
		return nil, true, nil
	case claim.InFlight:
		return nil, false, apperrors.Conflict("a request with this idempotency key is already in progress")
	}

	order, err := s.store.GetOrderByID(ctx, claim.OrderID)
	if err != nil {
		return nil, false, apperrors.Persistence("load replayed order", err)
	}

	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.String("order_id", order.ID))
	return replayOf(order), false, nil
}

// replayByKey answers a submission whose key already has an order in the
// database, which happens once the Redis record is gone
func (s *OrderService) replayByKey(ctx context.Context, key string) (*CreateOrderResponse, error) {
	order, err := s.store.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, apperrors.Persistence("load replayed order", err)
	}

	s.logger.Info("Duplicate order request caught by the database",
		zap.String("idempotency_key", key),
		zap.String("order_id", order.ID))
	return replayOf(order), nil
}

func replayOf(order *models.Order) *CreateOrderResponse {
	return &CreateOrderResponse{
		OrderID:       order.ID,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.TotalAmount,
		Replayed:      true,
	}
}

func (s *OrderService) settleIdempotency(ctx context.Context, key string, resp *CreateOrderResponse, err error) {
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		if ferr := s.idempotency.ForgetIdempotencyKey(ctx, key); ferr != nil {
			s.logger.Warn("Failed to drop idempotency key", zap.String("idempotency_key", key), zap.Error(ferr))
		}
		return
	}
	if cerr := s.idempotency.CompleteIdempotencyKey(ctx, key, resp.OrderID, s.opts.IdempotencyTTL); cerr != nil {
		s.logger.Warn("Failed to record idempotency key", zap.String("idempotency_key", key), zap.Error(cerr))
	}
}

// OrderDetails is an order with its lines and, for cash on delivery, its
// collection tracking
type OrderDetails struct {
	Order   *models.Order           `json:"order"`
	Items   []models.OrderItem      `json:"items"`
	Payment *models.PaymentTracking `json:"payment,omitempty"`
}

// GetOrder retrieves an order by ID, including soft-deleted ones
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, storeError("get order", orderID, err)
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperrors.Persistence("get order items", err)
	}

	details := &OrderDetails{Order: order, Items: items}
	if order.PaymentMethod == models.PaymentMethodCOD {
		tracking, err := s.store.GetPaymentTracking(ctx, orderID)
		switch {
		case err == nil:
			details.Payment = tracking
		case !errors.Is(err, store.ErrNotFound):
			return nil, apperrors.Persistence("get payment tracking", err)
		}
	}
	return details, nil
}

// CustomerDetails is a customer aggregate with its history
type CustomerDetails struct {
	Customer *models.Customer         `json:"customer"`
	History  []models.CustomerHistory `json:"history"`
}

// GetCustomer retrieves the ledger of a phone number
func (s *OrderService) GetCustomer(ctx context.Context, phone string) (*CustomerDetails, error) {
	phone = customer.NormalizePhone(phone)
	if phone == "" {
		return nil, apperrors.Validation("phone is required")
	}

	c, err := s.store.GetCustomerByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("customer %s not found", phone)
		}
		return nil, apperrors.Persistence("get customer", err)
	}

	history, err := s.store.GetCustomerHistory(ctx, phone)
	if err != nil {
		return nil, apperrors.Persistence("get customer history", err)
	}
	return &CustomerDetails{Customer: c, History: history}, nil
}

// ValidateDiscountRequest asks whether a code applies to a cart
type ValidateDiscountRequest struct {
	Code          string              `json:"code" validate:"required,max=64"`
	CartTotal     int64               `json:"cartTotal" validate:"gte=0"`
	Items         []discount.CartItem `json:"items" validate:"dive"`
	CustomerPhone string              `json:"customerPhone"`
	ShippingCost  int64               `json:"shippingCost" validate:"gte=0"`
}

// ValidateDiscountResponse reports the validation and, when valid, the
// amount the code would take off
type ValidateDiscountResponse struct {
	Valid         bool                    `json:"valid"`
	Reason        discount.Reason         `json:"reason,omitempty"`
	Error         string                  `json:"error,omitempty"`
	Discount      *models.Discount        `json:"discount,omitempty"`
	Amount        int64                   `json:"amount"`
	Combinability *discount.Combinability `json:"combinability,omitempty"`
}

// ValidateDiscount checks a code against a client-described cart without
// placing an order
func (s *OrderService) ValidateDiscount(ctx context.Context, req *ValidateDiscountRequest) (*ValidateDiscountResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	scope := discount.NewScope()
	cart := discount.Cart{
		Total:         req.CartTotal,
		Items:         req.Items,
		CustomerPhone: customer.NormalizePhone(req.CustomerPhone),
	}

	v, err := s.discounts.Validate(ctx, scope, req.Code, cart)
	if err != nil {
		return nil, apperrors.Persistence("validate discount", err)
	}

	resp := &ValidateDiscountResponse{Valid: v.Valid, Reason: v.Reason, Error: v.Error}
	if !v.Valid {
		return resp, nil
	}

	amount, err := s.discounts.CalculateAmount(ctx, scope, v.Discount, cart, req.ShippingCost)
	if err != nil {
		return nil, apperrors.Persistence("calculate discount", err)
	}
	resp.Discount = v.Discount
	resp.Amount = amount
	resp.Combinability = v.Combinability
	return resp, nil
}

// storeError maps store sentinels onto the error taxonomy
func storeError(op, orderID string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NotFound("order %s not found", orderID)
	case errors.Is(err, store.ErrStateConflict):
		return apperrors.Validation("order %s is not in a state that allows this", orderID)
	}
	return apperrors.Persistence(op, err)
}
