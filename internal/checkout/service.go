package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giftshop/internal/catalog"
	"github.com/noah-isme/backend-giftshop/internal/common"
	"github.com/noah-isme/backend-giftshop/internal/currency"
	"github.com/noah-isme/backend-giftshop/internal/events"
	"github.com/noah-isme/backend-giftshop/internal/lock"
	"github.com/noah-isme/backend-giftshop/internal/obs"
	"github.com/noah-isme/backend-giftshop/internal/payment"
	"github.com/noah-isme/backend-giftshop/internal/pricing"
)

// Item is one cart line submitted by the client. Prices are never taken from the client.
type Item struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

// Input is the checkout request body.
type Input struct {
	CartID    string `json:"cartId" validate:"required,max=128"`
	Items     []Item `json:"items" validate:"required,min=1,dive"`
	PromoCode string `json:"promoCode" validate:"omitempty,max=64"`
	ClientID  string `json:"clientId" validate:"omitempty,max=128"`
}

// Output is returned to the storefront to confirm the payment client-side.
type Output struct {
	ClientSecret   string        `json:"clientSecret"`
	Amount         pricing.Money `json:"amount"`
	Currency       string        `json:"currency"`
	SourceAmount   pricing.Money `json:"sourceAmount"`
	SourceCurrency string        `json:"sourceCurrency"`
	Rate           string        `json:"rate"`
}

// ProductLookup resolves product ids to catalog entries.
type ProductLookup interface {
	Lookup(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// IntentCreator opens payment intents for priced line items.
type IntentCreator interface {
	CreateIntent(ctx context.Context, items []pricing.LineItem, discount pricing.Discount) (payment.Intent, error)
}

// gatewayState is implemented by intent creators that may run without a gateway.
type gatewayState interface {
	Configured() bool
}

// Locker serialises work on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service turns a submitted cart into a payment intent.
type Service struct {
	Catalog   ProductLookup
	Payments  IntentCreator
	Locker    Locker
	LockTTL   time.Duration
	Discounts map[string]float64
	Events    events.Publisher
	Logger    zerolog.Logger
}

// Create validates the cart, prices it from the catalog and opens a payment intent.
// A cart can only have one submission in flight at a time.
func (s *Service) Create(ctx context.Context, in Input) (Output, error) {
	if s == nil || s.Catalog == nil || s.Payments == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	if gs, ok := s.Payments.(gatewayState); ok && !gs.Configured() {
		obs.CountCheckout("unavailable")
		return Output{}, notConfigured(payment.ErrGatewayNotConfigured)
	}
	in.CartID = strings.TrimSpace(in.CartID)
	if err := common.ValidateStruct(in); err != nil {
		obs.CountCheckout("invalid")
		return Output{}, err
	}
	discount, err := s.discountFor(in.PromoCode)
	if err != nil {
		obs.CountCheckout("invalid")
		return Output{}, err
	}
	items, err := s.resolve(ctx, in.Items)
	if err != nil {
		obs.CountCheckout("invalid")
		return Output{}, err
	}
	if !hasPositiveQuantity(items) {
		obs.CountCheckout("empty")
		return Output{}, common.BadRequest("EMPTY_CART", "cart has no items to pay for")
	}

	var out Output
	run := func(ctx context.Context) error {
		s.emitBeginCheckout(ctx, in, items, discount)
		intent, err := s.Payments.CreateIntent(ctx, lineItems(items), discount)
		if err != nil {
			return err
		}
		b := intent.Breakdown
		out = Output{
			ClientSecret:   intent.ClientSecret,
			Amount:         b.Amount,
			Currency:       b.Currency,
			SourceAmount:   b.SourceAmount,
			SourceCurrency: b.SourceCurrency,
			Rate:           b.Rate.String(),
		}
		return nil
	}

	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, "checkout:lock:"+in.CartID, s.LockTTL, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return Output{}, s.mapError(ctx, in.CartID, err)
	}
	obs.CountCheckout("success")
	return out, nil
}

func (s *Service) mapError(ctx context.Context, cartID string, err error) error {
	log := obs.LoggerFrom(ctx, s.Logger)
	switch {
	case errors.Is(err, payment.ErrGatewayNotConfigured):
		obs.CountCheckout("unavailable")
		return notConfigured(err)
	case errors.Is(err, lock.ErrNotAcquired):
		obs.CountCheckout("conflict")
		return common.NewAppError("CHECKOUT_IN_PROGRESS", "this cart is already being checked out", http.StatusConflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		obs.CountCheckout("timeout")
		return common.NewAppError("CHECKOUT_TIMEOUT", "checkout timed out, please try again", http.StatusGatewayTimeout, err)
	default:
		obs.CountCheckout("gateway_error")
		log.Error().Err(err).Str("cart_id", cartID).Msg("payment intent creation failed")
		return common.NewAppError("PAYMENT_INTENT_FAILED", "we could not start the payment, please try again", http.StatusBadGateway, err)
	}
}

func notConfigured(err error) error {
	return common.NewAppError("PAYMENT_NOT_CONFIGURED", "payments are temporarily unavailable", http.StatusServiceUnavailable, err)
}

type resolvedItem struct {
	Item
	Product catalog.Product
}

func (s *Service) resolve(ctx context.Context, in []Item) ([]resolvedItem, error) {
	ids := make([]string, 0, len(in))
	for _, it := range in {
		ids = append(ids, strings.TrimSpace(it.ProductID))
	}
	found, err := s.Catalog.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]resolvedItem, 0, len(in))
	for i, it := range in {
		p, ok := found[ids[i]]
		if !ok {
			return nil, common.NotFound("PRODUCT_NOT_FOUND", "product not found").
				WithDetails(map[string]any{"productId": ids[i]})
		}
		it.ProductID = ids[i]
		out = append(out, resolvedItem{Item: it, Product: p})
	}
	return out, nil
}

func (s *Service) discountFor(code string) (pricing.Discount, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return pricing.NoDiscount, nil
	}
	factor, ok := s.Discounts[code]
	if !ok {
		return pricing.NoDiscount, common.BadRequest("INVALID_PROMO_CODE", "promo code is not valid")
	}
	return pricing.Discount(factor), nil
}

func (s *Service) emitBeginCheckout(ctx context.Context, in Input, items []resolvedItem, discount pricing.Discount) {
	if s.Events == nil {
		return
	}
	lines := lineItems(items)
	ev := events.Event{
		Name:     events.NameBeginCheckout,
		Currency: currency.BGN,
		Value:    currency.MinorToMajor(pricing.CartTotal(lines, discount)),
		ClientID: in.ClientID,
	}
	for i, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		ev.Items = append(ev.Items, events.Item{
			ItemID:   it.ProductID,
			ItemName: it.Product.Title,
			Price:    pricing.EffectiveUnitPrice(lines[i]),
			Quantity: it.Quantity,
		})
	}
	if err := s.Events.Emit(ctx, ev); err != nil {
		log := obs.LoggerFrom(ctx, s.Logger)
		log.Warn().Err(err).Str("cart_id", in.CartID).Msg("begin_checkout event not delivered")
	}
}

func lineItems(items []resolvedItem) []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.Product.LineItem(it.Quantity))
	}
	return out
}

func hasPositiveQuantity(items []resolvedItem) bool {
	for _, it := range items {
		if it.Quantity > 0 {
			return true
		}
	}
	return false
}
