package analytics

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giftshop/internal/common"
	"github.com/noah-isme/backend-giftshop/internal/events"
	"github.com/noah-isme/backend-giftshop/internal/obs"
)

const (
	// ConsentCookie carries the visitor's cookie banner choice.
	ConsentCookie = "cookie-consent"
	// ConsentGranted is the cookie value that allows tracking.
	ConsentGranted = "granted"
)

// ItemInput is a product line reported by the storefront.
type ItemInput struct {
	ItemID   string  `json:"itemId" validate:"required_without=ItemName,max=128"`
	ItemName string  `json:"itemName" validate:"max=256"`
	Price    float64 `json:"price" validate:"gte=0"`
	Quantity int     `json:"quantity" validate:"gt=0"`
}

// EventInput is the body of POST /api/v1/analytics/events.
type EventInput struct {
	Name     string      `json:"name" validate:"required,oneof=view_item add_to_cart remove_from_cart"`
	Currency string      `json:"currency" validate:"omitempty,len=3"`
	Value    float64     `json:"value" validate:"gte=0"`
	Items    []ItemInput `json:"items" validate:"max=50,dive"`
	ClientID string      `json:"clientId" validate:"max=128"`
}

// Handler accepts client-reported marketing events.
type Handler struct {
	Events events.Publisher
	Logger zerolog.Logger
}

// Track handles POST /api/v1/analytics/events. Visitors without tracking
// consent get 204 and nothing is recorded.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	if !HasConsent(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if h.Events == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics not configured", nil)
		return
	}
	var payload EventInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if err := common.ValidateStruct(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Events.Emit(r.Context(), payload.event()); err != nil {
		log := obs.LoggerFrom(r.Context(), h.Logger)
		log.Warn().Err(err).Str("event", payload.Name).Msg("analytics event not delivered")
	}
	w.WriteHeader(http.StatusAccepted)
}

// HasConsent reports whether the request carries the tracking consent cookie.
func HasConsent(r *http.Request) bool {
	c, err := r.Cookie(ConsentCookie)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(c.Value), ConsentGranted)
}

func (in EventInput) event() events.Event {
	items := make([]events.Item, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, events.Item{
			ItemID:   strings.TrimSpace(it.ItemID),
			ItemName: strings.TrimSpace(it.ItemName),
			Price:    it.Price,
			Quantity: it.Quantity,
		})
	}
	return events.Event{
		Name:     in.Name,
		Currency: in.Currency,
		Value:    in.Value,
		Items:    items,
		ClientID: strings.TrimSpace(in.ClientID),
	}
}
