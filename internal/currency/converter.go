package currency

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-giftshop/internal/pricing"
)

// BGNPerEUR is the fixed conversion rate of the Bulgarian lev to the euro.
const BGNPerEUR Rate = 1.95583

// Currency codes used by the storefront.
const (
	BGN = "BGN"
	EUR = "EUR"
)

// Rate expresses how many source major units buy one target major unit.
type Rate float64

// String renders the rate the way it is published, without trailing zeros.
func (r Rate) String() string {
	return strconv.FormatFloat(float64(r), 'f', -1, 64)
}

// Converter translates minor-unit amounts between two currencies using a fixed rate.
// Both currencies are assumed to have 100 minor units per major unit.
type Converter struct {
	Rate   Rate
	Source string
	Target string
}

// NewConverter validates and builds a Converter.
func NewConverter(rate Rate, source, target string) (Converter, error) {
	if rate <= 0 {
		return Converter{}, errors.New("currency: rate must be positive")
	}
	source = strings.ToUpper(strings.TrimSpace(source))
	target = strings.ToUpper(strings.TrimSpace(target))
	if source == "" || target == "" {
		return Converter{}, errors.New("currency: source and target codes are required")
	}
	return Converter{Rate: rate, Source: source, Target: target}, nil
}

// BGNToEUR returns the converter used at checkout.
func BGNToEUR() Converter {
	return Converter{Rate: BGNPerEUR, Source: BGN, Target: EUR}
}

// Convert maps a source minor amount to target minor units, rounding half up.
// The result is not guaranteed to convert back to the exact original amount.
func (c Converter) Convert(sourceMinor pricing.Money) pricing.Money {
	if c.Rate <= 0 {
		return 0
	}
	return pricing.Money(pricing.RoundHalfUp(float64(sourceMinor) / float64(c.Rate)))
}

// DisplayPrice converts a source major-unit price to the target currency
// and formats it with two decimals, as shown next to catalog prices.
func (c Converter) DisplayPrice(major float64) string {
	if c.Rate <= 0 {
		return "0.00"
	}
	return decimal.NewFromFloat(major).
		Div(decimal.NewFromFloat(float64(c.Rate))).
		StringFixed(2)
}

// FormatMinor renders a minor-unit amount as "12.34 CODE".
func FormatMinor(minor pricing.Money, code string) string {
	amount := decimal.New(minor, -2).StringFixed(2)
	if code = strings.TrimSpace(code); code == "" {
		return amount
	}
	return amount + " " + code
}

// MinorToMajor converts minor units to a float major amount for analytics payloads.
func MinorToMajor(minor pricing.Money) float64 {
	f, _ := decimal.New(minor, -2).Float64()
	return f
}
