package service

import (
	"math"

	"checkout-service/internal/apperrors"
	"checkout-service/internal/discount"
	"checkout-service/internal/models"
)

// pricedLine is a cart line after server-side pricing
type pricedLine struct {
	ProductID    int64
	VariantID    *int64
	Quantity     int
	UnitPrice    int64
	ProductName  string
	VariantLabel string
}

// discountedPrice applies a catalogue discount to a unit price
func discountedPrice(price int64, kind models.PriceDiscountType, value float64) int64 {
	var p int64
	switch kind {
	case models.PriceDiscountPercentage:
		p = int64(math.Round(float64(price) * (1 - value/100)))
	case models.PriceDiscountFlat:
		p = price - int64(math.Round(value))
	default:
		p = price
	}
	if p < 0 {
		return 0
	}
	return p
}

// priceItems checks every referenced product and variant against the
// snapshot and prices each line from the catalogue. Submitted prices are
// ignored.
func priceItems(items []OrderItemRequest, snap *models.CheckoutSnapshot) ([]pricedLine, int64, error) {
	lines := make([]pricedLine, 0, len(items))
	var total int64

	for i, item := range items {
		product, ok := snap.Products[item.ProductID]
		if !ok || !product.IsActive {
			return nil, 0, apperrors.Validation("items[%d]: product %d not found", i, item.ProductID)
		}

		line := pricedLine{
			ProductID:   product.ID,
			Quantity:    item.Quantity,
			ProductName: product.Name,
		}

		if item.VariantID != nil {
			variant, ok := snap.Variants[*item.VariantID]
			if !ok || !variant.IsActive {
				return nil, 0, apperrors.Validation("items[%d]: variant %d not found", i, *item.VariantID)
			}
			if variant.ProductID != product.ID {
				return nil, 0, apperrors.Validation("items[%d]: variant %d does not belong to product %d",
					i, variant.ID, product.ID)
			}
			id := variant.ID
			line.VariantID = &id
			line.VariantLabel = variant.Label
			line.UnitPrice = discountedPrice(variant.Price, variant.DiscountType, variant.DiscountValue)
		} else {
			line.UnitPrice = discountedPrice(product.Price, product.DiscountType, product.DiscountValue)
		}

		total += line.UnitPrice * int64(line.Quantity)
		lines = append(lines, line)
	}

	return lines, total, nil
}

func cartItems(lines []pricedLine) []discount.CartItem {
	out := make([]discount.CartItem, 0, len(lines))
	for _, l := range lines {
		item := discount.CartItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
		if l.VariantID != nil {
			item.VariantID = *l.VariantID
		}
		out = append(out, item)
	}
	return out
}

// resolveLocations checks the city, zone and area exist and returns their
// display names
func resolveLocations(req *CreateOrderRequest, snap *models.CheckoutSnapshot) (city, zone, area string, err error) {
	lookup := func(id int64, kind string) (string, error) {
		loc, ok := snap.Locations[id]
		if !ok || loc.Kind != kind {
			return "", apperrors.Validation("%s %d not found", kind, id)
		}
		return loc.Name, nil
	}

	if city, err = lookup(req.CityID, models.LocationCity); err != nil {
		return
	}
	if zone, err = lookup(req.ZoneID, models.LocationZone); err != nil {
		return
	}
	area, err = lookup(req.AreaID, models.LocationArea)
	return
}
