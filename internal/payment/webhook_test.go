package payment_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/noah-isme/backend-giftshop/internal/common"
	"github.com/noah-isme/backend-giftshop/internal/events"
	"github.com/noah-isme/backend-giftshop/internal/payment"
)

const whSecret = "whsec_test"

func succeededPayload(eventID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"api_version": %q,
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_1",
			"object": "payment_intent",
			"amount": 1022,
			"currency": "eur",
			"created": 1707904800,
			"receipt_email": "ana@example.com",
			"metadata": {
				"products": "[{\"title\":\"Roses\",\"orderQuantity\":2},{\"title\":\"Removed\",\"orderQuantity\":0}]",
				"amount_bgn_minor": "20.00 BGN"
			}
		}}
	}`, eventID, stripe.APIVersion))
}

func signedRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestWebhookEmitsPurchaseEvent(t *testing.T) {
	sink := &events.MemorySink{}
	h := payment.Webhook{
		Secret: whSecret,
		Events: &events.Bus{Sinks: []events.Sink{sink}, Logger: zerolog.Nop()},
		Logger: zerolog.Nop(),
	}
	rr := httptest.NewRecorder()
	h.Handle(rr, signedRequest(t, succeededPayload("evt_1"), whSecret))

	require.Equal(t, http.StatusOK, rr.Code)
	got := sink.Events()
	require.Len(t, got, 1)
	require.Equal(t, events.NamePurchase, got[0].Name)
	require.Equal(t, "EUR", got[0].Currency)
	require.InDelta(t, 10.22, got[0].Value, 1e-9)
	require.Equal(t, []events.Item{{ItemName: "Roses", Quantity: 2}}, got[0].Items)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	sink := &events.MemorySink{}
	h := payment.Webhook{Secret: whSecret, Events: &events.Bus{Sinks: []events.Sink{sink}}, Logger: zerolog.Nop()}
	rr := httptest.NewRecorder()
	h.Handle(rr, signedRequest(t, succeededPayload("evt_2"), "whsec_other"))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Empty(t, sink.Events())
}

func TestWebhookIgnoresReplays(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := &events.MemorySink{}
	h := payment.Webhook{
		Secret:    whSecret,
		Replay:    client,
		ReplayTTL: time.Hour,
		Events:    &events.Bus{Sinks: []events.Sink{sink}, Logger: zerolog.Nop()},
		Logger:    zerolog.Nop(),
	}
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.Handle(rr, signedRequest(t, succeededPayload("evt_3"), whSecret))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	require.Len(t, sink.Events(), 1)
}

func TestWebhookSendsOrderEmails(t *testing.T) {
	mail := &common.InMemoryEmail{}
	h := payment.Webhook{
		Secret: whSecret,
		Orders: payment.OrderMailer{Mailer: mail, AdminTo: "shop@example.com"},
		Logger: zerolog.Nop(),
	}
	rr := httptest.NewRecorder()
	h.Handle(rr, signedRequest(t, succeededPayload("evt_5"), whSecret))
	require.Equal(t, http.StatusOK, rr.Code)

	sent := mail.Sent()
	require.Len(t, sent, 2)
	admin := sent[0]
	require.Equal(t, "shop@example.com", admin.To)
	require.Equal(t, "Нова поръчка pi_1", admin.Subject)
	require.Contains(t, admin.HTML, "Roses x 2")
	require.Contains(t, admin.HTML, "10.22 EUR")
	require.Contains(t, admin.HTML, "20.00 BGN")
	require.Contains(t, admin.HTML, "ana@example.com")
	require.NotContains(t, admin.HTML, "Removed")

	require.Equal(t, "ana@example.com", sent[1].To)
	require.Equal(t, "Потвърдена поръчка pi_1", sent[1].Subject)
	require.Contains(t, sent[1].HTML, "Поръчката ви е потвърдена")
}

func TestWebhookKeepsMalformedDeliveryRetryable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sink := &events.MemorySink{}
	h := payment.Webhook{
		Secret:    whSecret,
		Replay:    client,
		ReplayTTL: time.Hour,
		Events:    &events.Bus{Sinks: []events.Sink{sink}, Logger: zerolog.Nop()},
		Logger:    zerolog.Nop(),
	}
	malformed := []byte(fmt.Sprintf(`{"id":"evt_6","object":"event","api_version":%q,"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","amount":"abc"}}}`, stripe.APIVersion))
	rr := httptest.NewRecorder()
	h.Handle(rr, signedRequest(t, malformed, whSecret))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, mr.Exists("wh:stripe:evt_6"))

	rr = httptest.NewRecorder()
	h.Handle(rr, signedRequest(t, succeededPayload("evt_6"), whSecret))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"received"}`, rr.Body.String())
	require.Len(t, sink.Events(), 1)
}

func TestWebhookAcknowledgesOtherEvents(t *testing.T) {
	payload := []byte(fmt.Sprintf(`{"id":"evt_4","object":"event","api_version":%q,"type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`, stripe.APIVersion))
	h := payment.Webhook{Secret: whSecret, Logger: zerolog.Nop()}
	rr := httptest.NewRecorder()
	h.Handle(rr, signedRequest(t, payload, whSecret))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookWithoutSecret(t *testing.T) {
	h := payment.Webhook{}
	rr := httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil)))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
