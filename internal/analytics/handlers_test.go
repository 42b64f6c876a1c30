package analytics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giftshop/internal/analytics"
	"github.com/noah-isme/backend-giftshop/internal/events"
)

func newHandler() (*analytics.Handler, *events.MemorySink) {
	sink := &events.MemorySink{}
	bus := &events.Bus{Sinks: []events.Sink{sink}, Logger: zerolog.Nop()}
	return &analytics.Handler{Events: bus, Logger: zerolog.Nop()}, sink
}

func trackRequest(body string, consent bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if consent {
		req.AddCookie(&http.Cookie{Name: analytics.ConsentCookie, Value: analytics.ConsentGranted})
	}
	return req
}

func TestTrackRequiresConsent(t *testing.T) {
	h, sink := newHandler()
	rr := httptest.NewRecorder()
	h.Track(rr, trackRequest(`{"name":"view_item","items":[{"itemId":"p1","quantity":1}]}`, false))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Empty(t, sink.Events())

	req := trackRequest(`{"name":"view_item"}`, false)
	req.AddCookie(&http.Cookie{Name: analytics.ConsentCookie, Value: "denied"})
	rr = httptest.NewRecorder()
	h.Track(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Empty(t, sink.Events())
}

func TestTrackEmitsEvent(t *testing.T) {
	h, sink := newHandler()
	body := `{"name":"add_to_cart","currency":"bgn","value":20,"clientId":"c-1","items":[{"itemId":"p1","itemName":"Roses","price":10,"quantity":2}]}`
	rr := httptest.NewRecorder()
	h.Track(rr, trackRequest(body, true))
	require.Equal(t, http.StatusAccepted, rr.Code)

	got := sink.Events()
	require.Len(t, got, 1)
	require.Equal(t, events.NameAddToCart, got[0].Name)
	require.Equal(t, "BGN", got[0].Currency)
	require.Equal(t, 20.0, got[0].Value)
	require.Equal(t, "c-1", got[0].ClientID)
	require.Equal(t, []events.Item{{ItemID: "p1", ItemName: "Roses", Price: 10, Quantity: 2}}, got[0].Items)
	require.False(t, got[0].OccurredAt.IsZero())
}

func TestTrackRejectsServerSideEvents(t *testing.T) {
	h, sink := newHandler()
	for _, name := range []string{"purchase", "begin_checkout", "unknown"} {
		rr := httptest.NewRecorder()
		h.Track(rr, trackRequest(`{"name":"`+name+`","value":10}`, true))
		require.Equal(t, http.StatusBadRequest, rr.Code, name)
		require.Contains(t, rr.Body.String(), "VALIDATION_FAILED")
	}
	require.Empty(t, sink.Events())
}

func TestTrackValidatesItems(t *testing.T) {
	h, _ := newHandler()
	cases := []string{
		`{"name":"view_item","items":[{"itemId":"p1","quantity":0}]}`,
		`{"name":"view_item","items":[{"quantity":1}]}`,
		`{"name":"view_item","value":-1}`,
		`{"name":"view_item","currency":"EURO"}`,
	}
	for _, body := range cases {
		rr := httptest.NewRecorder()
		h.Track(rr, trackRequest(body, true))
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
	}

	rr := httptest.NewRecorder()
	h.Track(rr, trackRequest(`{"name":`, true))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "BAD_REQUEST")
}

func TestTrackSinkFailureStillAccepted(t *testing.T) {
	sink := &events.MemorySink{Err: http.ErrHandlerTimeout}
	h := &analytics.Handler{Events: &events.Bus{Sinks: []events.Sink{sink}}, Logger: zerolog.Nop()}
	rr := httptest.NewRecorder()
	h.Track(rr, trackRequest(`{"name":"view_item","items":[{"itemName":"Roses","quantity":1}]}`, true))
	require.Equal(t, http.StatusAccepted, rr.Code)
}
