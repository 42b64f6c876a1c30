package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-giftshop/internal/cache"
	"github.com/noah-isme/backend-giftshop/internal/common"
	"github.com/noah-isme/backend-giftshop/internal/currency"
)

type queryProvider interface {
	ListProducts(ctx context.Context, params ListParams) ([]Product, int64, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
	ListAllProducts(ctx context.Context) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// Normalizer adjusts a product after it is loaded, before it is cached or returned.
type Normalizer func(*Product)

// Service orchestrates catalog queries, DTO assembly, and caching.
type Service struct {
	queries      queryProvider
	cacheStore   *cache.Layered
	converter    currency.Converter
	normalizers  []Normalizer
	defaultPage  int
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries      queryProvider
	Cache        *cache.Layered
	Converter    currency.Converter
	Normalizers  []Normalizer
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for product listing.
type ListParams struct {
	Category   string
	BestSeller *bool
	Page       int
	Limit      int
}

// ProductView is the public representation of a product with display prices in both currencies.
type ProductView struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Slug             string            `json:"slug"`
	ShortDescription string            `json:"shortDescription"`
	Price            float64           `json:"price"`
	PromoPrice       *float64          `json:"promoPrice,omitempty"`
	PriceEur         string            `json:"priceEur"`
	PromoPriceEur    *string           `json:"promoPriceEur,omitempty"`
	PriceRange       string            `json:"priceRange,omitempty"`
	InStock          bool              `json:"inStock"`
	Quantity         int               `json:"quantity"`
	Category         string            `json:"category"`
	SubCategory      string            `json:"subCategory"`
	Images           []string          `json:"images"`
	BestSeller       bool              `json:"bestSeller"`
	ShowInquiryForm  bool              `json:"showInquiryForm"`
	InquiryFields    []InquiryQuestion `json:"inquiryFields,omitempty"`
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []ProductView
	Total int64
	Page  int
	Limit int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	defaultPage := cfg.DefaultPage
	if defaultPage < 1 {
		defaultPage = 1
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 24
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	conv := cfg.Converter
	if conv.Rate <= 0 {
		conv = currency.BGNToEUR()
	}
	return &Service{
		queries:      cfg.Queries,
		cacheStore:   cfg.Cache,
		converter:    conv,
		normalizers:  cfg.Normalizers,
		defaultPage:  defaultPage,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{
		Page:  s.defaultPage,
		Limit: s.defaultLimit,
	}
	params.Category = strings.TrimSpace(values.Get("category"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}

	limit := s.defaultLimit
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		limit = l
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	params.Limit = limit

	if v := strings.TrimSpace(values.Get("bestSeller")); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return params, badRequest("bestSeller", "bestSeller must be true or false", err)
		}
		params.BestSeller = &b
	}
	return params, nil
}

// ListProducts returns a filtered product page with pagination metadata.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	key := listCacheKey(params)
	var cached cachedList
	if ok, err := s.cacheStore.GetJSON(ctx, key, &cached); err == nil && ok {
		return ProductListResult{Items: cached.Items, Total: cached.Total, Page: params.Page, Limit: params.Limit}, nil
	}

	rows, total, err := s.queries.ListProducts(ctx, params)
	if err != nil {
		return ProductListResult{}, err
	}
	items := make([]ProductView, 0, len(rows))
	for _, p := range rows {
		s.normalize(&p)
		items = append(items, s.View(p))
	}
	_ = s.cacheStore.SetJSON(ctx, key, cachedList{Items: items, Total: total})
	return ProductListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// GetProduct returns the product with the given slug.
func (s *Service) GetProduct(ctx context.Context, slug string) (Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Product{}, badRequest("slug", "slug is required", nil)
	}
	key := cache.KeyProduct(slug)
	var cached Product
	if ok, err := s.cacheStore.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	product, err := s.queries.GetProductBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, &common.AppError{Code: "PRODUCT_NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return Product{}, fmt.Errorf("get product by slug: %w", err)
	}
	s.normalize(&product)
	_ = s.cacheStore.SetJSON(ctx, key, product)
	return product, nil
}

// GetProductDetail returns the public view of a product.
func (s *Service) GetProductDetail(ctx context.Context, slug string) (ProductView, error) {
	p, err := s.GetProduct(ctx, slug)
	if err != nil {
		return ProductView{}, err
	}
	return s.View(p), nil
}

// Lookup loads products by id straight from the store so checkout always
// charges current prices. Ids that do not exist are absent from the result.
func (s *Service) Lookup(ctx context.Context, ids []string) (map[string]Product, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	rows, err := s.queries.GetProductsByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Product, len(rows))
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// AllProducts returns every published product.
func (s *Service) AllProducts(ctx context.Context) ([]Product, error) {
	return s.queries.ListAllProducts(ctx)
}

// ListCategories returns categories with product counts.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	key := cache.KeyCategories
	var cached []Category
	if ok, err := s.cacheStore.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.queries.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Category{}
	}
	_ = s.cacheStore.SetJSON(ctx, key, rows)
	return rows, nil
}

// View converts a product into its public representation.
func (s *Service) View(p Product) ProductView {
	v := ProductView{
		ID:               p.ID,
		Title:            p.Title,
		Slug:             p.Slug,
		ShortDescription: p.ShortDescription,
		Price:            p.Price,
		PriceEur:         s.converter.DisplayPrice(p.Price),
		PriceRange:       p.PriceRange,
		InStock:          p.Quantity > 0,
		Quantity:         p.Quantity,
		Category:         p.Category,
		SubCategory:      p.SubCategory,
		Images:           p.ImageURLs,
		BestSeller:       p.BestSeller,
		ShowInquiryForm:  p.ShowInquiryForm,
		InquiryFields:    p.InquiryFields,
	}
	if promo, ok := p.ActivePromo(); ok {
		eur := s.converter.DisplayPrice(promo)
		v.PromoPrice = &promo
		v.PromoPriceEur = &eur
	}
	if v.Images == nil {
		v.Images = []string{}
	}
	return v
}

func (s *Service) normalize(p *Product) {
	for _, fn := range s.normalizers {
		if fn != nil {
			fn(p)
		}
	}
}

type cachedList struct {
	Items []ProductView `json:"items"`
	Total int64         `json:"total"`
}

func listCacheKey(params ListParams) string {
	bestSeller := "any"
	if params.BestSeller != nil {
		bestSeller = strconv.FormatBool(*params.BestSeller)
	}
	return cache.KeyCatalogList(params.Category, bestSeller, params.Page, params.Limit)
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean: %s", value)
	}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
