package payment

import "github.com/shopspring/decimal"

// Event is the closed set of webhook outcomes the core reacts to. Providers
// translate their own event vocabulary into exactly one of these variants.
type Event interface {
	paymentEvent()
}

// CheckoutCompleted means the deposit was captured.
type CheckoutCompleted struct {
	SessionID  string
	IntentID   string
	AmountPaid decimal.Decimal
	Metadata   Metadata
}

// CheckoutExpired means the session can no longer be paid.
type CheckoutExpired struct {
	SessionID string
	Metadata  Metadata
}

// Ignored is any verified event the core chooses not to act on.
type Ignored struct {
	Type string
}

func (CheckoutCompleted) paymentEvent() {}
func (CheckoutExpired) paymentEvent()   {}
func (Ignored) paymentEvent()           {}
