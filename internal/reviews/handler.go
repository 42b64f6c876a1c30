package reviews

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-giftshop/internal/common"
)

type Handler struct {
	Svc *Service
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Input
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	review, err := h.Svc.Create(r.Context(), chi.URLParam(r, "slug"), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, review)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := common.ParsePage(r, 10, 50)
	result, err := h.Svc.List(r.Context(), chi.URLParam(r, "slug"), page, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"stats":      result.Stats,
		"pagination": common.NewPagination(result.Page, result.Limit, result.Stats.Count),
	})
}

func (h *Handler) Featured(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.Svc.Featured(r.Context(), limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, items)
}
