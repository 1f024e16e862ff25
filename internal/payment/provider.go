package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TabarBaptiste/masseuse/internal/config"
)

type CheckoutRequest struct {
	// Reference is our own id for the checkout; it doubles as the slot
	// hold token.
	Reference   string
	Description string
	Amount      decimal.Decimal
	CustomerID  string
	ExpiresAt   time.Time
	Metadata    Metadata
}

type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"checkoutUrl"`
	// ExpiresAt is when the provider closes the session. It may be later
	// than requested.
	ExpiresAt time.Time `json:"expiresAt"`
}

// WebhookRequest is the raw inbound notification. Providers verify it
// before reading any field of the payload.
type WebhookRequest struct {
	Payload []byte
	Header  http.Header
	Query   url.Values
}

type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ParseWebhook(ctx context.Context, req WebhookRequest) (Event, error)
}

// NewProvider builds the configured provider. "none" yields (nil, nil).
func NewProvider(cfg config.PaymentConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "stripe":
		if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
			return nil, fmt.Errorf("stripe: STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required")
		}
		return NewStripeProvider(cfg), nil
	case "mercadopago":
		if cfg.MercadoPagoAccessToken == "" || cfg.MercadoPagoWebhookSecret == "" {
			return nil, fmt.Errorf("mercadopago: MERCADOPAGO_ACCESS_TOKEN and MERCADOPAGO_WEBHOOK_SECRET are required")
		}
		return NewMercadoPagoProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
