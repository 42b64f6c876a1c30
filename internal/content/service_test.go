package content_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giftshop/internal/cache"
	"github.com/noah-isme/backend-giftshop/internal/content"
)

type memStore struct {
	mu    sync.Mutex
	docs  map[string][]byte
	reads int
}

func (m *memStore) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	data, ok := m.docs[name]
	if !ok {
		return nil, content.ErrNotFound
	}
	return data, nil
}

func (m *memStore) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = map[string][]byte{}
	}
	m.docs[name] = data
	return nil
}

func newService(t *testing.T, store *memStore) *content.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &content.Service{Store: store, Cache: cache.NewLayered("content", client, time.Minute, 8)}
}

func TestBannerCachedAndInvalidated(t *testing.T) {
	store := &memStore{docs: map[string][]byte{
		content.DocBanner: []byte(`{"messages":["Безплатна доставка над 100 лв"," ",""]}`),
	}}
	svc := newService(t, store)
	ctx := context.Background()

	b, err := svc.Banner(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Безплатна доставка над 100 лв"}, b.Messages)

	_, err = svc.Banner(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, store.reads)

	require.NoError(t, svc.SaveBanner(ctx, content.Banner{Messages: []string{"Нова колекция"}}))
	b, err = svc.Banner(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Нова колекция"}, b.Messages)
	require.Equal(t, 2, store.reads)
}

func TestBannerMissingIsEmpty(t *testing.T) {
	svc := newService(t, &memStore{})
	b, err := svc.Banner(context.Background())
	require.NoError(t, err)
	require.Empty(t, b.Messages)
	require.NotNil(t, b.Messages)
}

func TestPromotionHandler(t *testing.T) {
	store := &memStore{}
	svc := newService(t, store)
	h := &content.Handler{Svc: svc}
	ctx := context.Background()

	rr := httptest.NewRecorder()
	h.Promotion(rr, httptest.NewRequest(http.MethodGet, "/api/v1/content/promotion", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	require.NoError(t, svc.SavePromotion(ctx, content.Promotion{ImageURL: "https://cdn.example.com/valentine.jpg", Active: false}))
	rr = httptest.NewRecorder()
	h.Promotion(rr, httptest.NewRequest(http.MethodGet, "/api/v1/content/promotion", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	require.NoError(t, svc.SavePromotion(ctx, content.Promotion{
		ImageURL: "https://cdn.example.com/valentine.jpg",
		Link:     &content.Link{Label: "Виж още", URL: "/products?category=valentine"},
		Active:   true,
	}))
	rr = httptest.NewRecorder()
	h.Promotion(rr, httptest.NewRequest(http.MethodGet, "/api/v1/content/promotion", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "valentine.jpg")
	require.Contains(t, rr.Body.String(), `"label":"Виж още"`)

	rr = httptest.NewRecorder()
	h.Banner(rr, httptest.NewRequest(http.MethodGet, "/api/v1/content/banner", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":{"messages":[]}}`, rr.Body.String())
}
