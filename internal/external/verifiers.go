package external

import (
	stripe "github.com/stripe/stripe-go/v82"
)

// Stripe webhook event types the console reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventInvoicePaid       = "invoice.paid"
	EventPaymentFailed     = "invoice.payment_failed"
)

// WebhookVerifier checks a webhook payload against its signature header.
type WebhookVerifier interface {
	Verify(payload []byte, header, secret string) error
}

// StripeVerifier checks the Stripe-Signature HMAC and timestamp tolerance.
type StripeVerifier struct{}

func (StripeVerifier) Verify(payload []byte, header, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}
