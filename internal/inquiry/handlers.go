package inquiry

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-giftshop/internal/common"
)

// Handler exposes the inquiry submission endpoint.
type Handler struct {
	Svc *Service
}

// Submit handles POST /api/v1/products/{slug}/inquiries.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INQUIRY_NOT_CONFIGURED", "inquiry service not configured", nil)
		return
	}
	var payload Submission
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.Submit(r.Context(), chi.URLParam(r, "slug"), payload); err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]bool{"ok": true})
}
