package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/shopspring/decimal"

	"github.com/TabarBaptiste/masseuse/internal/config"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
)

const (
	mpSignatureHeader = "X-Signature"
	mpRequestIDHeader = "X-Request-Id"
)

// paymentGetter is the slice of the MercadoPago payment client we use.
type paymentGetter interface {
	Get(ctx context.Context, id int) (*payment.Response, error)
}

type preferenceCreator interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

type MercadoPagoProvider struct {
	preferences     preferenceCreator
	payments        paymentGetter
	webhookSecret   string
	currency        string
	successURL      string
	cancelURL       string
	notificationURL string
}

func NewMercadoPagoProvider(cfg config.PaymentConfig) (*MercadoPagoProvider, error) {
	mpcfg, err := mpconfig.New(cfg.MercadoPagoAccessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: config: %w", err)
	}

	return &MercadoPagoProvider{
		preferences:     preference.NewClient(mpcfg),
		payments:        payment.NewClient(mpcfg),
		webhookSecret:   cfg.MercadoPagoWebhookSecret,
		currency:        strings.ToUpper(cfg.Currency),
		successURL:      cfg.SuccessURL,
		cancelURL:       cfg.CancelURL,
		notificationURL: cfg.NotificationURL,
	}, nil
}

func (p *MercadoPagoProvider) Name() string { return "mercadopago" }

// CreateCheckout opens a payment preference. Payments only echo the
// external reference back, so the reference is used as the session id.
func (p *MercadoPagoProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	meta := map[string]any{}
	for k, v := range req.Metadata.ToMap() {
		meta[k] = v
	}

	expiresAt := req.ExpiresAt
	res, err := p.preferences.Create(ctx, preference.Request{
		ExternalReference: req.Reference,
		NotificationURL:   p.notificationURL,
		Metadata:          meta,
		Items: []preference.ItemRequest{
			{
				ID:         req.Reference,
				Title:      req.Description,
				Quantity:   1,
				UnitPrice:  req.Amount.InexactFloat64(),
				CurrencyID: p.currency,
			},
		},
		BackURLs: &preference.BackURLsRequest{
			Success: p.successURL,
			Pending: p.successURL,
			Failure: p.cancelURL,
		},
		AutoReturn:       "approved",
		Expires:          true,
		ExpirationDateTo: &expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("mercadopago: create preference: %w", err)
	}

	return &CheckoutSession{ID: req.Reference, URL: res.InitPoint, ExpiresAt: expiresAt}, nil
}

type mpNotification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *MercadoPagoProvider) ParseWebhook(ctx context.Context, req WebhookRequest) (Event, error) {
	dataID := req.Query.Get("data.id")
	if err := verifyMercadoPagoSignature(
		p.webhookSecret,
		req.Header.Get(mpSignatureHeader),
		req.Header.Get(mpRequestIDHeader),
		dataID,
	); err != nil {
		return nil, err
	}

	var n mpNotification
	if err := json.Unmarshal(req.Payload, &n); err != nil {
		return nil, httperr.Invalid("invalid_payload", "decode notification: %v", err)
	}
	if n.Type != "payment" {
		return Ignored{Type: n.Type}, nil
	}
	if n.Data.ID != "" && n.Data.ID != dataID {
		return nil, httperr.InvalidSignature("notification id does not match signed id")
	}

	id, err := strconv.Atoi(dataID)
	if err != nil {
		return nil, httperr.Invalid("invalid_payload", "payment id %q is not numeric", dataID)
	}

	pay, err := p.payments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: get payment %d: %w", id, err)
	}

	meta := metadataFromAny(pay.Metadata)
	if meta.CheckoutRef == "" {
		meta.CheckoutRef = pay.ExternalReference
	}

	switch pay.Status {
	case "approved":
		return CheckoutCompleted{
			SessionID:  pay.ExternalReference,
			IntentID:   strconv.Itoa(pay.ID),
			AmountPaid: decimal.NewFromFloat(pay.TransactionAmount),
			Metadata:   meta,
		}, nil
	case "cancelled":
		return CheckoutExpired{SessionID: pay.ExternalReference, Metadata: meta}, nil
	default:
		return Ignored{Type: "payment." + pay.Status}, nil
	}
}

// verifyMercadoPagoSignature checks the x-signature header, formatted
// "ts=<unix>,v1=<hex hmac>", against the manifest
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func verifyMercadoPagoSignature(secret, header, requestID, dataID string) error {
	if header == "" {
		return httperr.InvalidSignature("missing x-signature header")
	}

	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return httperr.InvalidSignature("malformed x-signature header")
	}

	want, err := hex.DecodeString(v1)
	if err != nil {
		return httperr.InvalidSignature("malformed x-signature digest")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(mercadoPagoManifest(dataID, requestID, ts)))
	if !hmac.Equal(mac.Sum(nil), want) {
		return httperr.InvalidSignature("x-signature does not match")
	}
	return nil
}

func mercadoPagoManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}
