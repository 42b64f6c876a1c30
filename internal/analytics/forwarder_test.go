package analytics_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giftshop/internal/analytics"
	"github.com/noah-isme/backend-giftshop/internal/events"
	"github.com/noah-isme/backend-giftshop/internal/resilience"
)

type collected struct {
	query   map[string]string
	payload map[string]any
}

func newCollector(t *testing.T, status int, calls *int32, got chan<- collected) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if got != nil {
			got <- collected{
				query: map[string]string{
					"measurement_id": r.URL.Query().Get("measurement_id"),
					"api_secret":     r.URL.Query().Get("api_secret"),
					"path":           r.URL.Path,
				},
				payload: body,
			}
		}
		w.WriteHeader(status)
	}))
}

func newForwarder(srv *httptest.Server) *analytics.Forwarder {
	return &analytics.Forwarder{
		HTTP:          resilience.HTTPClient{Client: srv.Client(), Retry: resilience.RetryPolicy{Attempts: 2, Base: time.Millisecond}},
		Endpoint:      srv.URL + "/mp/collect",
		MeasurementID: "G-TEST",
		APISecret:     "secret",
		Logger:        zerolog.Nop(),
		NewClientID:   func() string { return "generated" },
	}
}

func TestForwardPostsMeasurementProtocolPayload(t *testing.T) {
	var calls int32
	got := make(chan collected, 1)
	srv := newCollector(t, http.StatusNoContent, &calls, got)
	defer srv.Close()

	ev := events.Event{
		Name:     events.NamePurchase,
		Currency: "EUR",
		Value:    10.22,
		Items:    []events.Item{{ItemName: "Roses", Quantity: 2}},
	}
	require.NoError(t, newForwarder(srv).Forward(context.Background(), ev))

	c := <-got
	require.Equal(t, "G-TEST", c.query["measurement_id"])
	require.Equal(t, "secret", c.query["api_secret"])
	require.Equal(t, "/mp/collect", c.query["path"])
	require.Equal(t, "generated", c.payload["client_id"])

	evs := c.payload["events"].([]any)
	require.Len(t, evs, 1)
	first := evs[0].(map[string]any)
	require.Equal(t, "purchase", first["name"])
	params := first["params"].(map[string]any)
	require.Equal(t, "EUR", params["currency"])
	require.Equal(t, 10.22, params["value"])
	items := params["items"].([]any)
	require.Equal(t, "Roses", items[0].(map[string]any)["item_name"])
}

func TestForwardKeepsClientID(t *testing.T) {
	var calls int32
	got := make(chan collected, 1)
	srv := newCollector(t, http.StatusNoContent, &calls, got)
	defer srv.Close()

	ev := events.Event{Name: events.NameViewItem, ClientID: "browser-1"}
	require.NoError(t, newForwarder(srv).Forward(context.Background(), ev))
	require.Equal(t, "browser-1", (<-got).payload["client_id"])
}

func TestForwardRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := newCollector(t, http.StatusInternalServerError, &calls, nil)
	defer srv.Close()

	err := newForwarder(srv).Forward(context.Background(), events.Event{Name: events.NameViewItem})
	require.Error(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestForwardReportsClientErrors(t *testing.T) {
	var calls int32
	srv := newCollector(t, http.StatusBadRequest, &calls, nil)
	defer srv.Close()

	err := newForwarder(srv).Forward(context.Background(), events.Event{Name: events.NameViewItem})
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestForwardDisabledWithoutCredentials(t *testing.T) {
	f := &analytics.Forwarder{Logger: zerolog.Nop()}
	require.False(t, f.Enabled())
	require.ErrorIs(t, f.Forward(context.Background(), events.Event{Name: events.NameViewItem}), analytics.ErrForwarderDisabled)

	task, err := events.NewForwardTask(events.Event{Name: events.NameViewItem})
	require.NoError(t, err)
	require.NoError(t, f.HandleForward(context.Background(), task))
}

func TestHandleForwardDecodesTask(t *testing.T) {
	var calls int32
	got := make(chan collected, 1)
	srv := newCollector(t, http.StatusNoContent, &calls, got)
	defer srv.Close()

	task, err := events.NewForwardTask(events.Event{Name: events.NameBeginCheckout, Currency: "BGN", Value: 20})
	require.NoError(t, err)
	require.NoError(t, newForwarder(srv).HandleForward(context.Background(), task))
	require.Equal(t, "begin_checkout", (<-got).payload["events"].([]any)[0].(map[string]any)["name"])

	err = newForwarder(srv).HandleForward(context.Background(), asynq.NewTask(events.TaskForward, nil))
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
