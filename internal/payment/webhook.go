package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/noah-isme/backend-giftshop/internal/common"
	"github.com/noah-isme/backend-giftshop/internal/currency"
	"github.com/noah-isme/backend-giftshop/internal/events"
	"github.com/noah-isme/backend-giftshop/internal/obs"
	"github.com/noah-isme/backend-giftshop/internal/pricing"
)

const maxWebhookBody = 65536

// Webhook handles Stripe callbacks. Successful payments become purchase
// analytics events and order emails; replays are dropped.
type Webhook struct {
	Secret    string
	Replay    redis.Cmdable
	ReplayTTL time.Duration
	Events    events.Publisher
	Orders    OrderMailer
	Logger    zerolog.Logger
}

// Handle processes a single webhook delivery.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.Secret) == "" {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	ctx := r.Context()
	log := obs.LoggerFrom(ctx, h.Logger)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		countWebhook("invalid")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.Secret)
	if err != nil {
		countWebhook("invalid")
		log.Warn().Err(err).Msg("stripe webhook signature verification failed")
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	var pi stripe.PaymentIntent
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			countWebhook("invalid")
			common.JSONError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "malformed payment intent", nil)
			return
		}
	}

	// Claim the delivery only after its payload decoded.
	if h.Replay != nil && h.ReplayTTL > 0 && event.ID != "" {
		fresh, err := h.Replay.SetNX(ctx, "wh:stripe:"+event.ID, "1", h.ReplayTTL).Result()
		if err != nil {
			countWebhook("error")
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "unable to record webhook", nil)
			return
		}
		if !fresh {
			countWebhook("duplicate")
			common.JSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		log.Info().Str("intent_id", pi.ID).Int64("amount", pi.Amount).Str("currency", string(pi.Currency)).Msg("payment succeeded")
		if h.Events != nil {
			if err := h.Events.Emit(ctx, PurchaseEvent(&pi)); err != nil {
				log.Warn().Err(err).Str("intent_id", pi.ID).Msg("purchase event not fully delivered")
			}
		}
		if err := h.Orders.Send(ctx, &pi); err != nil {
			log.Error().Err(err).Str("intent_id", pi.ID).Msg("order email not delivered")
		}
		countWebhook("succeeded")
	case stripe.EventTypePaymentIntentPaymentFailed:
		entry := log.Warn().Str("intent_id", pi.ID)
		if pi.LastPaymentError != nil {
			entry = entry.Str("reason", pi.LastPaymentError.Msg)
		}
		entry.Msg("payment failed")
		countWebhook("failed")
	default:
		log.Debug().Str("event_type", string(event.Type)).Msg("stripe webhook ignored")
		countWebhook("ignored")
	}
	common.JSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// PurchaseEvent converts a settled payment intent into an analytics event.
// Items come from the products metadata written when the intent was built.
func PurchaseEvent(pi *stripe.PaymentIntent) events.Event {
	ev := events.Event{
		Name:       events.NamePurchase,
		Currency:   strings.ToUpper(string(pi.Currency)),
		Value:      currency.MinorToMajor(pricing.Money(pi.Amount)),
		OccurredAt: time.Unix(pi.Created, 0).UTC(),
	}
	if pi.Created == 0 {
		ev.OccurredAt = time.Time{}
	}
	products, err := DecodeProducts(pi.Metadata[MetaProducts])
	if err != nil {
		return ev
	}
	for _, p := range products {
		if p.OrderQuantity <= 0 || strings.TrimSpace(p.Title) == "" {
			continue
		}
		ev.Items = append(ev.Items, events.Item{ItemName: p.Title, Quantity: p.OrderQuantity})
	}
	return ev
}

// DecodeProducts parses the products metadata value.
func DecodeProducts(raw string) ([]ProductMeta, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("payment: products metadata missing")
	}
	var products []ProductMeta
	if err := json.Unmarshal([]byte(raw), &products); err != nil {
		return nil, err
	}
	return products, nil
}

func countWebhook(result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(ProviderStripe, result).Inc()
	}
}
