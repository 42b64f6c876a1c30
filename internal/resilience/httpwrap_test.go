package resilience_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giftshop/internal/resilience"
)

func TestHTTPClientRetriesServerErrorsAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"client_id":"abc"}` {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := resilience.HTTPClient{Client: srv.Client(), Retry: resilience.RetryPolicy{Attempts: 3, Base: time.Millisecond}}
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"client_id":"abc"}`))
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.EqualValues(t, 3, calls.Load())
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := resilience.HTTPClient{Client: srv.Client(), Retry: resilience.RetryPolicy{Attempts: 3, Base: time.Millisecond}}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.EqualValues(t, 1, calls.Load())
}

func TestHTTPClientRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := resilience.HTTPClient{Client: srv.Client(), Retry: resilience.RetryPolicy{Attempts: 2, Base: time.Millisecond}}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, calls.Load())
}

func TestHTTPClientReturnsStatusErrorWhenRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := resilience.HTTPClient{Client: srv.Client(), Retry: resilience.RetryPolicy{Attempts: 2, Base: time.Millisecond}}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), req)
	var statusErr *resilience.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}

func TestHTTPClientStopsWhenBreakerOpen(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(resilience.BreakerSettings{Target: "ga4-test", MinRequests: 1, OpenFor: time.Minute}, zerolog.Nop())
	client := resilience.HTTPClient{Client: srv.Client(), Breaker: breaker, Retry: resilience.RetryPolicy{Attempts: 3, Base: time.Millisecond}}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), req)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, resilience.Open, breaker.State())
}
