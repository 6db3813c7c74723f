package discount

import (
	"context"
	"fmt"
	"math"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
)

// calculator computes the amount one kind of discount takes off
type calculator func(e *Engine, ctx context.Context, scope *Scope, d *models.Discount, cart Cart, shippingCost int64) (int64, error)

var calculators = map[models.DiscountKind]calculator{
	models.DiscountFreeShipping:     freeShippingAmount,
	models.DiscountOrderAmountOff:   orderAmount,
	models.DiscountProductAmountOff: productAmount,
}

// CalculateAmount returns the amount d takes off the cart. The result is
// never negative and never exceeds the base it was computed from.
func (e *Engine) CalculateAmount(ctx context.Context, scope *Scope, d *models.Discount, cart Cart, shippingCost int64) (int64, error) {
	if d == nil {
		return 0, nil
	}

	calc, ok := calculators[d.Kind]
	if !ok {
		return 0, fmt.Errorf("unknown discount kind %q", d.Kind)
	}

	ctx, span := util.StartSpan(ctx, "Discount.CalculateAmount",
		attribute.String("discount.kind", string(d.Kind)))
	defer span.End()

	amount, err := calc(e, ctx, scope, d, cart, shippingCost)
	if err != nil {
		util.RecordError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("discount.amount", amount))
	return amount, nil
}

func freeShippingAmount(_ *Engine, _ context.Context, _ *Scope, _ *models.Discount, _ Cart, shippingCost int64) (int64, error) {
	if shippingCost < 0 {
		return 0, nil
	}
	return shippingCost, nil
}

// orderBase is the cart total with shipping taken off
func orderBase(cart Cart, shippingCost int64) int64 {
	base := cart.Total - shippingCost
	if base < 0 {
		return 0
	}
	return base
}

func orderAmount(_ *Engine, _ context.Context, _ *Scope, d *models.Discount, cart Cart, shippingCost int64) (int64, error) {
	return applyValue(d, orderBase(cart, shippingCost)), nil
}

func productAmount(e *Engine, ctx context.Context, scope *Scope, d *models.Discount, cart Cart, shippingCost int64) (int64, error) {
	set, err := e.applicableProducts(ctx, scope, d)
	if err != nil {
		return 0, err
	}

	base := orderBase(cart, shippingCost)
	if len(set) > 0 {
		if sub := matchedSubtotal(set, cart.Items); sub >= 0 {
			base = sub
		}
	}
	return applyValue(d, base), nil
}

// applyValue applies a percentage or fixed value to base, capped at base
func applyValue(d *models.Discount, base int64) int64 {
	if base <= 0 || d.Value <= 0 {
		return 0
	}

	var amount int64
	switch d.ValueType {
	case models.ValuePercentage:
		amount = int64(math.Round(float64(base) * d.Value / 100))
	default:
		amount = int64(math.Round(d.Value))
	}

	if amount > base {
		return base
	}
	return amount
}
