package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TabarBaptiste/masseuse/internal/httperr"
)

const testMPSecret = "mp-secret"

type fakePayments struct {
	byID map[int]*payment.Response
}

func (f fakePayments) Get(_ context.Context, id int) (*payment.Response, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, errors.New("not found")
}

type fakePreferences struct {
	got preference.Request
}

func (f *fakePreferences) Create(_ context.Context, req preference.Request) (*preference.Response, error) {
	f.got = req
	return &preference.Response{ID: "pref-1", InitPoint: "https://mp.test/checkout/pref-1"}, nil
}

func mpSigned(dataID, requestID string) http.Header {
	ts := "1760000000"
	mac := hmac.New(sha256.New, []byte(testMPSecret))
	mac.Write([]byte(mercadoPagoManifest(dataID, requestID, ts)))

	h := http.Header{}
	h.Set(mpSignatureHeader, "ts="+ts+",v1="+hex.EncodeToString(mac.Sum(nil)))
	h.Set(mpRequestIDHeader, requestID)
	return h
}

func newTestMP(pays map[int]*payment.Response) (*MercadoPagoProvider, *fakePreferences) {
	prefs := &fakePreferences{}
	return &MercadoPagoProvider{
		preferences:   prefs,
		payments:      fakePayments{byID: pays},
		webhookSecret: testMPSecret,
		currency:      "BRL",
	}, prefs
}

func mpRequest(dataID, body string) WebhookRequest {
	return WebhookRequest{
		Payload: []byte(body),
		Header:  mpSigned(dataID, "req-1"),
		Query:   url.Values{"data.id": {dataID}},
	}
}

func TestMercadoPagoApprovedPayment(t *testing.T) {
	p, _ := newTestMP(map[int]*payment.Response{
		77: {
			ID:                77,
			Status:            "approved",
			ExternalReference: "ref-9",
			TransactionAmount: 30,
			Metadata:          map[string]any{"booking_id": "b-1"},
		},
	})

	ev, err := p.ParseWebhook(context.Background(), mpRequest("77", `{"type":"payment","data":{"id":"77"}}`))
	require.NoError(t, err)

	done, ok := ev.(CheckoutCompleted)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "ref-9", done.SessionID)
	assert.Equal(t, "77", done.IntentID)
	assert.Equal(t, "b-1", done.Metadata.BookingID)
	assert.Equal(t, "ref-9", done.Metadata.CheckoutRef)
}

func TestMercadoPagoStatusMapping(t *testing.T) {
	p, _ := newTestMP(map[int]*payment.Response{
		1: {ID: 1, Status: "cancelled", ExternalReference: "r1"},
		2: {ID: 2, Status: "in_process", ExternalReference: "r2"},
	})

	ev, err := p.ParseWebhook(context.Background(), mpRequest("1", `{"type":"payment","data":{"id":"1"}}`))
	require.NoError(t, err)
	assert.Equal(t, CheckoutExpired{SessionID: "r1", Metadata: Metadata{CheckoutRef: "r1"}}, ev)

	ev, err = p.ParseWebhook(context.Background(), mpRequest("2", `{"type":"payment","data":{"id":"2"}}`))
	require.NoError(t, err)
	assert.Equal(t, Ignored{Type: "payment.in_process"}, ev)

	ev, err = p.ParseWebhook(context.Background(), mpRequest("5", `{"type":"merchant_order","data":{"id":"5"}}`))
	require.NoError(t, err)
	assert.Equal(t, Ignored{Type: "merchant_order"}, ev)
}

func TestMercadoPagoRejectsBadSignature(t *testing.T) {
	p, _ := newTestMP(nil)

	req := mpRequest("77", `{"type":"payment","data":{"id":"77"}}`)
	req.Query.Set("data.id", "78")
	_, err := p.ParseWebhook(context.Background(), req)
	assert.True(t, httperr.IsKind(err, httperr.KindInvalidSignature))

	req = mpRequest("77", `{}`)
	req.Header.Del(mpSignatureHeader)
	_, err = p.ParseWebhook(context.Background(), req)
	assert.True(t, httperr.IsKind(err, httperr.KindInvalidSignature))

	req = mpRequest("77", `{}`)
	req.Header.Set(mpSignatureHeader, "garbage")
	_, err = p.ParseWebhook(context.Background(), req)
	assert.True(t, httperr.IsKind(err, httperr.KindInvalidSignature))
}

func TestMercadoPagoCreateCheckout(t *testing.T) {
	p, prefs := newTestMP(nil)

	expires := time.Date(2026, 10, 15, 10, 30, 0, 0, time.UTC)
	s, err := p.CreateCheckout(context.Background(), CheckoutRequest{
		Reference:   "ref-1",
		Description: "Deposit",
		ExpiresAt:   expires,
		Metadata:    Metadata{BookingID: "b-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", s.ID)
	assert.True(t, expires.Equal(s.ExpiresAt))
	assert.Equal(t, "https://mp.test/checkout/pref-1", s.URL)
	assert.Equal(t, "ref-1", prefs.got.ExternalReference)
	assert.Equal(t, "b-1", prefs.got.Metadata["booking_id"])
	assert.True(t, prefs.got.Expires)
}
