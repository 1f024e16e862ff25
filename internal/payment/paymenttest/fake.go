// Package paymenttest provides a scriptable payment.Provider.
package paymenttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TabarBaptiste/masseuse/internal/payment"
)

type Provider struct {
	mu sync.Mutex

	// CheckoutErr fails every CreateCheckout when set.
	CheckoutErr error
	// Event and ParseErr are returned by ParseWebhook.
	Event    payment.Event
	ParseErr error
	// Stretch pushes the returned expiry past the requested one, as
	// providers with a minimum session lifetime do.
	Stretch time.Duration

	Requests []payment.CheckoutRequest
	seq      int
}

func (p *Provider) Name() string { return "fake" }

func (p *Provider) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CheckoutErr != nil {
		return nil, p.CheckoutErr
	}
	p.seq++
	p.Requests = append(p.Requests, req)
	id := fmt.Sprintf("cs_test_%d", p.seq)
	return &payment.CheckoutSession{
		ID:        id,
		URL:       "https://pay.example.test/" + id,
		ExpiresAt: req.ExpiresAt.Add(p.Stretch),
	}, nil
}

func (p *Provider) ParseWebhook(context.Context, payment.WebhookRequest) (payment.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ParseErr != nil {
		return nil, p.ParseErr
	}
	return p.Event, nil
}

// LastRequest returns the most recent checkout request.
func (p *Provider) LastRequest() (payment.CheckoutRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return payment.CheckoutRequest{}, false
	}
	return p.Requests[len(p.Requests)-1], true
}

var _ payment.Provider = (*Provider)(nil)
