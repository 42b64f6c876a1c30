package catalog

import (
	"github.com/noah-isme/backend-giftshop/internal/pricing"
)

// Inquiry question types.
const (
	QuestionSelect   = "select"
	QuestionText     = "text"
	QuestionDateText = "date_text"
)

// InquiryOption is one allowed answer of a select question.
type InquiryOption struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// InquiryQuestion is one entry of a product's inquiry questionnaire.
type InquiryQuestion struct {
	Title       string          `json:"title" yaml:"title"`
	Type        string          `json:"type" yaml:"type"`
	Required    bool            `json:"required" yaml:"required"`
	Placeholder string          `json:"placeholder,omitempty" yaml:"placeholder"`
	Options     []InquiryOption `json:"options,omitempty" yaml:"options"`
}

// Product is a sellable catalog entry. Prices are in major units of the shop currency.
type Product struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Slug             string            `json:"slug"`
	ShortDescription string            `json:"shortDescription"`
	Price            float64           `json:"price"`
	PromoPrice       *float64          `json:"promoPrice,omitempty"`
	PriceRange       string            `json:"priceRange,omitempty"`
	Quantity         int               `json:"quantity"`
	Category         string            `json:"category"`
	SubCategory      string            `json:"subCategory"`
	ImageURLs        []string          `json:"imageUrls"`
	BestSeller       bool              `json:"bestSeller"`
	ShowInquiryForm  bool              `json:"showInquiryForm"`
	InquiryFields    []InquiryQuestion `json:"inquiryFields,omitempty"`
}

// LineItem converts the product into a cart line for qty units.
func (p Product) LineItem(qty int) pricing.LineItem {
	return pricing.LineItem{
		Title:     p.Title,
		UnitPrice: p.Price,
		Promo:     pricing.PromoFromPtr(p.PromoPrice),
		Quantity:  qty,
	}
}

// ActivePromo returns the promotional price when it is set and positive.
func (p Product) ActivePromo() (float64, bool) {
	return pricing.PromoFromPtr(p.PromoPrice).Get()
}

// Category summarises the products filed under a category.
type Category struct {
	Name         string `json:"name"`
	ProductCount int64  `json:"productCount"`
}
