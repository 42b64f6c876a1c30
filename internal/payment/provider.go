package payment

import (
	"context"

	"github.com/noah-isme/backend-giftshop/internal/pricing"
)

// IntentRequest captures everything the gateway needs to open a payment intent.
// Amount is in minor units of Currency; Currency is the lowercase ISO code.
type IntentRequest struct {
	Amount                  pricing.Money
	Currency                string
	AutomaticPaymentMethods bool
	Metadata                map[string]string
}

// IntentResponse is the minimal information returned by a gateway.
type IntentResponse struct {
	Provider     string
	ID           string
	ClientSecret string
}

// Gateway abstracts the upstream payment provider.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req IntentRequest) (IntentResponse, error)

func (f GatewayFunc) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	return f(ctx, req)
}
