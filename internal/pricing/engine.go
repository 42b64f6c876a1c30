package pricing

import "math"

// Money represents a monetary value stored in minor units.
type Money = int64

// PromoPrice is an optional promotional unit price. Only strictly positive
// amounts are ever present, so "no promo" and "promo of zero" cannot be confused.
type PromoPrice struct {
	value float64
	ok    bool
}

// NoPromo is the absent promotional price.
var NoPromo = PromoPrice{}

// Promo returns a present promotional price when v is positive and NoPromo otherwise.
func Promo(v float64) PromoPrice {
	if v > 0 {
		return PromoPrice{value: v, ok: true}
	}
	return NoPromo
}

// PromoFromPtr converts a nullable column value into a PromoPrice.
func PromoFromPtr(v *float64) PromoPrice {
	if v == nil {
		return NoPromo
	}
	return Promo(*v)
}

// Get returns the promotional price and whether it is present.
func (p PromoPrice) Get() (float64, bool) { return p.value, p.ok }

// Discount is a direct multiplier applied to the cart total: 0.9 means the
// customer pays 90%. Values <= 0 mean no discount; values above 1 are not clamped.
type Discount float64

// NoDiscount leaves the total untouched.
const NoDiscount Discount = 0

// Active reports whether the multiplier should be applied.
func (d Discount) Active() bool { return d > 0 }

// LineItem describes one product in the cart at checkout time. Prices are in
// major units of the source currency; Title is only used for metadata.
type LineItem struct {
	Title     string
	UnitPrice float64
	Promo     PromoPrice
	Quantity  int
}

// EffectiveUnitPrice returns the promotional price when present, otherwise the base unit price.
func EffectiveUnitPrice(it LineItem) float64 {
	if v, ok := it.Promo.Get(); ok {
		return v
	}
	return it.UnitPrice
}

// CartTotal sums qualifying line items, applies the optional discount multiplier
// and returns the result in minor units of the source currency.
func CartTotal(items []LineItem, discount Discount) Money {
	var total float64
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		total += EffectiveUnitPrice(it) * float64(it.Quantity)
	}
	if total <= 0 {
		return 0
	}
	if discount.Active() {
		total *= float64(discount)
	}
	return Money(RoundHalfUp(total * 100))
}

// RoundHalfUp rounds to the nearest integer with ties going towards positive infinity.
func RoundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
