package content

import (
	"net/http"

	"github.com/noah-isme/backend-giftshop/internal/common"
)

// Handler exposes read-only site content.
type Handler struct {
	Svc *Service
}

// Banner handles GET /api/v1/content/banner.
func (h *Handler) Banner(w http.ResponseWriter, r *http.Request) {
	b, err := h.Svc.Banner(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, b)
}

// Promotion handles GET /api/v1/content/promotion. Inactive promotions yield 204.
func (h *Handler) Promotion(w http.ResponseWriter, r *http.Request) {
	p, active, err := h.Svc.ActivePromotion(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !active {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	common.Data(w, http.StatusOK, p)
}
