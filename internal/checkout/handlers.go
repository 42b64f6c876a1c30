package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/noah-isme/backend-giftshop/internal/common"
)

// Handler exposes the checkout endpoint.
type Handler struct {
	Svc *Service
}

// PaymentIntent handles POST /api/v1/checkout/payment-intent.
func (h *Handler) PaymentIntent(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload Input
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	out, err := h.Svc.Create(r.Context(), payload)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, out)
}
