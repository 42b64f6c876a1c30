package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giftshop/internal/cache"
	"github.com/noah-isme/backend-giftshop/internal/catalog"
)

type productsResponse struct {
	Data       []catalog.ProductView `json:"data"`
	Pagination struct {
		Page       int   `json:"page"`
		Limit      int   `json:"limit"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"totalPages"`
	} `json:"pagination"`
}

type productDetailResponse struct {
	Data catalog.ProductView `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func TestCatalogHandlers(t *testing.T) {
	queries := newFakeCatalogQueries()
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Queries:      queries,
		DefaultPage:  1,
		DefaultLimit: 20,
		MaxLimit:     100,
	})
	require.NoError(t, err)

	handler := catalog.Handler{Service: svc}

	t.Run("products list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products?limit=1", nil)
		rec := httptest.NewRecorder()
		handler.Products(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "2", rec.Header().Get("X-Total-Count"))

		var resp productsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		require.Equal(t, "Romantic dinner", resp.Data[0].Title)
		require.Equal(t, 100.0, resp.Data[0].Price)
		require.Equal(t, "51.13", resp.Data[0].PriceEur)
		require.NotNil(t, resp.Data[0].PromoPriceEur)
		require.Equal(t, "40.90", *resp.Data[0].PromoPriceEur)
		require.Equal(t, 1, resp.Pagination.Page)
		require.Equal(t, 1, resp.Pagination.Limit)
		require.Equal(t, int64(2), resp.Pagination.Total)
		require.Equal(t, 2, resp.Pagination.TotalPages)
	})

	t.Run("best seller filter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products?bestSeller=true&category=experiences", nil)
		rec := httptest.NewRecorder()
		handler.Products(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, queries.lastParams.BestSeller)
		require.True(t, *queries.lastParams.BestSeller)
		require.Equal(t, "experiences", queries.lastParams.Category)
	})

	t.Run("invalid paging", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products?page=0", nil)
		rec := httptest.NewRecorder()
		handler.Products(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("product detail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ProductDetail(rec, withSlug(httptest.NewRequest(http.MethodGet, "/api/v1/products/balloons", nil), "balloons"))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp productDetailResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "Balloons", resp.Data.Title)
		require.Nil(t, resp.Data.PromoPrice)
		require.Nil(t, resp.Data.PromoPriceEur)
		require.False(t, resp.Data.InStock)
		require.Equal(t, []string{}, resp.Data.Images)
	})

	t.Run("missing product", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ProductDetail(rec, withSlug(httptest.NewRequest(http.MethodGet, "/api/v1/products/nope", nil), "nope"))
		require.Equal(t, http.StatusNotFound, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "PRODUCT_NOT_FOUND", resp.Error.Code)
	})

	t.Run("categories", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Categories(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"experiences"`)
	})
}

func TestServiceLookupSkipsUnknownAndDuplicates(t *testing.T) {
	queries := newFakeCatalogQueries()
	svc, err := catalog.NewService(catalog.ServiceConfig{Queries: queries})
	require.NoError(t, err)

	found, err := svc.Lookup(context.Background(), []string{"p-1", "p-1", " ", "missing"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, []string{"p-1", "missing"}, queries.lastIDs)

	item := found["p-1"].LineItem(2)
	require.Equal(t, "Romantic dinner", item.Title)
	require.Equal(t, 2, item.Quantity)
	promo, ok := item.Promo.Get()
	require.True(t, ok)
	require.Equal(t, 80.0, promo)
}

func TestServiceAppliesNormalizers(t *testing.T) {
	queries := newFakeCatalogQueries()
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Queries:     queries,
		Normalizers: []catalog.Normalizer{func(p *catalog.Product) { p.Title += " (normalized)" }},
	})
	require.NoError(t, err)

	p, err := svc.GetProduct(context.Background(), "balloons")
	require.NoError(t, err)
	require.Equal(t, "Balloons (normalized)", p.Title)
}

func TestServiceCachesProductDetail(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	queries := newFakeCatalogQueries()
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Queries: queries,
		Cache:   cache.NewLayered("catalog", client, time.Minute, 16),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.GetProduct(context.Background(), "balloons")
		require.NoError(t, err)
	}
	require.Equal(t, 1, queries.slugCalls)
	require.True(t, mr.Exists("catalog:products:detail:balloons"))
}

func TestCacheFallsBackToRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	writer := cache.NewLayered("catalog", client, time.Minute, 0)
	require.NoError(t, writer.SetJSON(context.Background(), "k", map[string]int{"v": 7}))

	reader := cache.NewLayered("catalog", client, time.Minute, 4)
	var got map[string]int
	ok, err := reader.GetJSON(context.Background(), "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 7, got["v"])

	require.NoError(t, reader.Invalidate(context.Background(), "k"))
	ok, err = reader.GetJSON(context.Background(), "k", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func withSlug(req *http.Request, slug string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("slug", slug)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

type fakeCatalogQueries struct {
	products   []catalog.Product
	lastParams catalog.ListParams
	lastIDs    []string
	slugCalls  int
}

func newFakeCatalogQueries() *fakeCatalogQueries {
	promo := 80.0
	return &fakeCatalogQueries{products: []catalog.Product{
		{
			ID:         "p-1",
			Title:      "Romantic dinner",
			Slug:       "romantic-dinner",
			Price:      100,
			PromoPrice: &promo,
			Quantity:   5,
			Category:   "experiences",
			ImageURLs:  []string{"https://cdn.example/dinner.jpg"},
			BestSeller: true,
		},
		{
			ID:       "p-2",
			Title:    "Balloons",
			Slug:     "balloons",
			Price:    15,
			Quantity: 0,
			Category: "decor",
		},
	}}
}

func (f *fakeCatalogQueries) ListProducts(_ context.Context, params catalog.ListParams) ([]catalog.Product, int64, error) {
	f.lastParams = params
	end := params.Limit
	if end > len(f.products) {
		end = len(f.products)
	}
	return f.products[:end], int64(len(f.products)), nil
}

func (f *fakeCatalogQueries) GetProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	f.slugCalls++
	for _, p := range f.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

func (f *fakeCatalogQueries) GetProductsByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	f.lastIDs = ids
	var out []catalog.Product
	for _, p := range f.products {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeCatalogQueries) ListAllProducts(context.Context) ([]catalog.Product, error) {
	return f.products, nil
}

func (f *fakeCatalogQueries) ListCategories(context.Context) ([]catalog.Category, error) {
	return []catalog.Category{{Name: "decor", ProductCount: 1}, {Name: "experiences", ProductCount: 1}}, nil
}
