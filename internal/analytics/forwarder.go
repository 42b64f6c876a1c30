package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giftshop/internal/events"
	"github.com/noah-isme/backend-giftshop/internal/obs"
)

// DefaultEndpoint is the GA4 Measurement Protocol collection URL.
const DefaultEndpoint = "https://www.google-analytics.com/mp/collect"

// ErrForwarderDisabled is returned when no measurement credentials are configured.
var ErrForwarderDisabled = errors.New("analytics: ga4 forwarder not configured")

// Doer is satisfied by resilience.HTTPClient.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Forwarder sends events to GA4 through the Measurement Protocol.
type Forwarder struct {
	HTTP          Doer
	Endpoint      string
	MeasurementID string
	APISecret     string
	Logger        zerolog.Logger
	NewClientID   func() string
}

type mpPayload struct {
	ClientID string    `json:"client_id"`
	Events   []mpEvent `json:"events"`
}

type mpEvent struct {
	Name   string   `json:"name"`
	Params mpParams `json:"params"`
}

type mpParams struct {
	Currency string        `json:"currency,omitempty"`
	Value    float64       `json:"value"`
	Items    []events.Item `json:"items,omitempty"`
}

// Enabled reports whether measurement credentials are present.
func (f *Forwarder) Enabled() bool {
	return f != nil && f.MeasurementID != "" && f.APISecret != ""
}

// Forward posts a single event. Events without a client id get a random one,
// since purchases confirmed by the payment webhook carry no browser identity.
func (f *Forwarder) Forward(ctx context.Context, ev events.Event) error {
	if !f.Enabled() {
		return ErrForwarderDisabled
	}
	if f.HTTP == nil {
		return errors.New("analytics: http client not configured")
	}
	clientID := strings.TrimSpace(ev.ClientID)
	if clientID == "" {
		clientID = f.clientID()
	}
	body, err := json.Marshal(mpPayload{
		ClientID: clientID,
		Events: []mpEvent{{
			Name:   ev.Name,
			Params: mpParams{Currency: ev.Currency, Value: ev.Value, Items: ev.Items},
		}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.collectURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("analytics: ga4 request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("analytics: ga4 responded %s", resp.Status)
	}
	log := obs.LoggerFrom(ctx, f.Logger)
	log.Debug().Str("event", ev.Name).Msg("analytics event forwarded")
	return nil
}

// HandleForward is the asynq handler for events.TaskForward.
func (f *Forwarder) HandleForward(ctx context.Context, task *asynq.Task) error {
	ev, err := events.Decode(task.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if !f.Enabled() {
		log := obs.LoggerFrom(ctx, f.Logger)
		log.Debug().Str("event", ev.Name).Msg("ga4 forwarding disabled, dropping event")
		return nil
	}
	return f.Forward(ctx, ev)
}

func (f *Forwarder) collectURL() string {
	endpoint := f.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	q := url.Values{}
	q.Set("measurement_id", f.MeasurementID)
	q.Set("api_secret", f.APISecret)
	return endpoint + "?" + q.Encode()
}

func (f *Forwarder) clientID() string {
	if f.NewClientID != nil {
		return f.NewClientID()
	}
	return uuid.NewString()
}
