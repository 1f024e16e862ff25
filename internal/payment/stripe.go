package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/TabarBaptiste/masseuse/internal/config"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	// Stripe refuses checkout sessions that expire in under 30 minutes.
	stripeMinExpiry = 31 * time.Minute
)

type StripeProvider struct {
	sessions      *session.Client
	webhookSecret string
	currency      string
	successURL    string
	cancelURL     string
	now           func() time.Time
}

func NewStripeProvider(cfg config.PaymentConfig) *StripeProvider {
	return &StripeProvider{
		sessions: &session.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: cfg.StripeSecretKey,
		},
		webhookSecret: cfg.StripeWebhookSecret,
		currency:      cfg.Currency,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		now:           time.Now,
	}
}

func (p *StripeProvider) Name() string { return "stripe" }

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	expiresAt := req.ExpiresAt
	if earliest := p.now().Add(stripeMinExpiry); expiresAt.Before(earliest) {
		expiresAt = earliest
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(toMinorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata.ToMap() {
		params.AddMetadata(k, v)
	}

	s, err := p.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	if s.ExpiresAt > 0 {
		expiresAt = time.Unix(s.ExpiresAt, 0)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL, ExpiresAt: expiresAt}, nil
}

func (p *StripeProvider) ParseWebhook(_ context.Context, req WebhookRequest) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(
		req.Payload,
		req.Header.Get(stripeSignatureHeader),
		p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, httperr.InvalidSignature("stripe webhook rejected: %v", err)
	}

	switch string(ev.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		s, err := decodeSession(ev)
		if err != nil {
			return nil, err
		}
		if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			// Delayed payment methods complete the session before the money
			// arrives; async_payment_succeeded follows.
			return Ignored{Type: string(ev.Type) + ":" + string(s.PaymentStatus)}, nil
		}
		intent := ""
		if s.PaymentIntent != nil {
			intent = s.PaymentIntent.ID
		}
		return CheckoutCompleted{
			SessionID:  s.ID,
			IntentID:   intent,
			AmountPaid: decimal.New(s.AmountTotal, -2),
			Metadata:   MetadataFromMap(s.Metadata),
		}, nil

	case "checkout.session.expired":
		s, err := decodeSession(ev)
		if err != nil {
			return nil, err
		}
		return CheckoutExpired{SessionID: s.ID, Metadata: MetadataFromMap(s.Metadata)}, nil

	default:
		return Ignored{Type: string(ev.Type)}, nil
	}
}

func decodeSession(ev stripe.Event) (*stripe.CheckoutSession, error) {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, httperr.Invalid("invalid_payload", "decode checkout session: %v", err)
	}
	return &s, nil
}
