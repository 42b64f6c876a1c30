// Package feed renders the product catalogue as a merchant feed CSV.
package feed

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giftshop/internal/catalog"
	"github.com/noah-isme/backend-giftshop/internal/obs"
)

// Columns is the header row of the feed.
var Columns = []string{
	"id", "title", "description", "link", "image_link", "availability", "price",
	"brand", "condition", "sale_price", "currency", "category",
	"additional_image_link", "product_type",
}

const priceCurrency = "BGN"

// Row maps a product onto the feed columns.
func Row(p catalog.Product, baseURL string) []string {
	price := formatAmount(p.Price) + " " + priceCurrency
	if strings.TrimSpace(p.PriceRange) != "" {
		price = p.PriceRange + " " + priceCurrency
	}
	salePrice := ""
	if promo, ok := p.ActivePromo(); ok {
		salePrice = formatAmount(promo) + " " + priceCurrency
	}
	return []string{
		p.ID,
		p.Title,
		p.ShortDescription,
		ProductURL(baseURL, p.Slug),
		imageAt(p.ImageURLs, 0),
		strconv.Itoa(p.Quantity),
		price,
		"",
		"new",
		salePrice,
		"",
		p.Category,
		imageAt(p.ImageURLs, 1),
		p.SubCategory,
	}
}

// ProductURL returns the storefront page of a product.
func ProductURL(baseURL, slug string) string {
	return strings.TrimRight(baseURL, "/") + "/produkt/" + slug
}

// Write emits the header followed by one row per product.
func Write(w io.Writer, products []catalog.Product, baseURL string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, p := range products {
		if err := cw.Write(Row(p, baseURL)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func imageAt(urls []string, idx int) string {
	if idx < len(urls) {
		return urls[idx]
	}
	return ""
}

// ProductSource lists every published product.
type ProductSource interface {
	AllProducts(ctx context.Context) ([]catalog.Product, error)
}

// Handler serves the feed over HTTP for merchant centres that pull it.
type Handler struct {
	Source  ProductSource
	BaseURL string
	Logger  zerolog.Logger
}

// Products handles GET /feeds/products.csv.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	products, err := h.Source.AllProducts(r.Context())
	if err != nil {
		log := obs.LoggerFrom(r.Context(), h.Logger)
		log.Error().Err(err).Msg("product feed query failed")
		http.Error(w, "feed unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="productsExport.csv"`)
	if err := Write(w, products, h.BaseURL); err != nil {
		log := obs.LoggerFrom(r.Context(), h.Logger)
		log.Error().Err(err).Msg("product feed write failed")
	}
}
