package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-giftshop/internal/currency"
	"github.com/noah-isme/backend-giftshop/internal/obs"
	"github.com/noah-isme/backend-giftshop/internal/pricing"
)

// Metadata keys attached to every payment intent.
const (
	MetaProducts     = "products"
	MetaAmountSource = "amount_bgn_minor"
	MetaFXRate       = "fx_rate_bgn_per_eur"
)

// ErrGatewayNotConfigured is returned when no gateway has been wired.
var ErrGatewayNotConfigured = errors.New("payment: gateway not configured")

// ProductMeta is one entry of the products metadata list.
type ProductMeta struct {
	Title         string `json:"title"`
	OrderQuantity int    `json:"orderQuantity"`
}

// Breakdown records the amounts involved in a single intent.
type Breakdown struct {
	SourceAmount   pricing.Money
	SourceCurrency string
	Amount         pricing.Money
	Currency       string
	Rate           currency.Rate
}

// Intent is the result handed back to the checkout flow.
type Intent struct {
	ID           string
	Provider     string
	ClientSecret string
	Breakdown    Breakdown
}

// Service builds payment intent requests from cart contents and submits them to the gateway.
type Service struct {
	Gateway   Gateway
	Converter currency.Converter
	Logger    zerolog.Logger
}

// NewService returns a Service that charges in euro for lev-priced carts.
func NewService(gw Gateway, logger zerolog.Logger) *Service {
	return &Service{Gateway: gw, Converter: currency.BGNToEUR(), Logger: logger}
}

// Configured reports whether a gateway is wired.
func (s *Service) Configured() bool {
	return s != nil && s.Gateway != nil
}

func (s *Service) converter() currency.Converter {
	if s.Converter.Rate <= 0 {
		return currency.BGNToEUR()
	}
	return s.Converter
}

// BuildRequest computes the charge amount and metadata without side effects.
func (s *Service) BuildRequest(items []pricing.LineItem, discount pricing.Discount) (IntentRequest, Breakdown) {
	conv := s.converter()
	source := pricing.CartTotal(items, discount)
	amount := conv.Convert(source)

	products := make([]ProductMeta, 0, len(items))
	for _, it := range items {
		products = append(products, ProductMeta{Title: it.Title, OrderQuantity: it.Quantity})
	}
	encoded, err := json.Marshal(products)
	if err != nil {
		// strings and ints always marshal
		encoded = []byte("[]")
	}

	req := IntentRequest{
		Amount:                  amount,
		Currency:                strings.ToLower(conv.Target),
		AutomaticPaymentMethods: true,
		Metadata: map[string]string{
			MetaProducts:     string(encoded),
			MetaAmountSource: currency.FormatMinor(source, conv.Source),
			MetaFXRate:       conv.Rate.String(),
		},
	}
	return req, Breakdown{
		SourceAmount:   source,
		SourceCurrency: conv.Source,
		Amount:         amount,
		Currency:       conv.Target,
		Rate:           conv.Rate,
	}
}

// CreateIntent builds the request and delegates to the gateway exactly once.
// Gateway errors are returned unmodified.
func (s *Service) CreateIntent(ctx context.Context, items []pricing.LineItem, discount pricing.Discount) (Intent, error) {
	if s == nil || s.Gateway == nil {
		return Intent{}, ErrGatewayNotConfigured
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateIntent")
	defer span.End()

	req, breakdown := s.BuildRequest(items, discount)
	providerName := inferProviderName(s.Gateway)
	currencyLabel := normaliseLabel(req.Currency)
	result := "error"
	start := time.Now()
	defer func() {
		elapsed := obs.DurationMillis(time.Since(start))
		span.SetAttributes(
			attribute.String("payment.provider", providerName),
			attribute.String("payment.currency", currencyLabel),
			attribute.Int64("payment.amount_minor", req.Amount),
			attribute.Int64("payment.source_amount_minor", breakdown.SourceAmount),
			attribute.Float64("payment.intent.duration_ms", elapsed),
			attribute.String("payment.intent.result", result),
		)
		if obs.PaymentIntentTotal != nil {
			obs.PaymentIntentTotal.WithLabelValues(providerName, currencyLabel, result).Inc()
		}
		if obs.PaymentIntentLatency != nil {
			obs.PaymentIntentLatency.WithLabelValues(providerName).Observe(elapsed)
		}
	}()

	log := obs.LoggerFrom(ctx, s.Logger)
	resp, err := s.Gateway.CreateIntent(ctx, req)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).
			Str("provider", providerName).
			Int64("amount", req.Amount).
			Str("currency", req.Currency).
			Msg("payment intent creation failed")
		return Intent{}, err
	}
	if resp.Provider != "" {
		providerName = normaliseLabel(resp.Provider)
	}
	result = "success"
	log.Info().
		Str("provider", providerName).
		Str("intent_id", resp.ID).
		Int64("amount", req.Amount).
		Str("currency", req.Currency).
		Int64("source_amount", breakdown.SourceAmount).
		Msg("payment intent created")
	return Intent{
		ID:           resp.ID,
		Provider:     providerName,
		ClientSecret: resp.ClientSecret,
		Breakdown:    breakdown,
	}, nil
}

func inferProviderName(gw Gateway) string {
	switch gw.(type) {
	case *Stripe:
		return ProviderStripe
	default:
		return "custom"
	}
}

func normaliseLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
