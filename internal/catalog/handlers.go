package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-giftshop/internal/common"
)

// Handler serves the public, read-only catalog.
type Handler struct {
	Service *Service
}

// Categories handles GET /api/v1/categories.
func (h Handler) Categories(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.ListCategories(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

// Products handles GET /api/v1/products?category=&bestSeller=&page=&limit=.
// The total is mirrored in X-Total-Count for clients that only read headers.
func (h Handler) Products(w http.ResponseWriter, r *http.Request) {
	params, err := h.Service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.Service.ListProducts(r.Context(), params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.List(w, result.Items, common.NewPagination(result.Page, result.Limit, result.Total))
}

// ProductDetail handles GET /api/v1/products/{slug}.
func (h Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Service.GetProductDetail(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, detail)
}
