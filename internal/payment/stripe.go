package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ProviderStripe is the provider label used in metrics and responses.
const ProviderStripe = "stripe"

// Stripe creates payment intents through the Stripe API.
type Stripe struct {
	client paymentintent.Client
}

// StripeOptions configures the Stripe gateway.
type StripeOptions struct {
	SecretKey string
	// BaseURL overrides the API host, mainly for tests.
	BaseURL string
	Timeout time.Duration
}

// NewStripe builds a gateway with an instrumented HTTP transport. The SDK's own
// network retries are disabled; a failed call is reported to the caller as is.
func NewStripe(opts StripeOptions) (*Stripe, error) {
	if opts.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if opts.BaseURL != "" {
		cfg.URL = stripe.String(opts.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	return &Stripe{client: paymentintent.Client{B: backend, Key: opts.SecretKey}}, nil
}

// CreateIntent opens a payment intent with automatic payment methods and the request metadata.
func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
	}
	if req.AutomaticPaymentMethods {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := s.client.New(params)
	if err != nil {
		return IntentResponse{}, err
	}
	return IntentResponse{Provider: ProviderStripe, ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}
