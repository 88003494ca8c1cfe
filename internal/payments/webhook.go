package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// WebhookEventKind classifies provider notifications into the transitions the
// order lifecycle cares about.
type WebhookEventKind string

const (
	// WebhookEventSucceeded signals the PSP captured the payment.
	WebhookEventSucceeded WebhookEventKind = "succeeded"
	// WebhookEventFailed signals the PSP gave up on the payment.
	WebhookEventFailed WebhookEventKind = "failed"
	// WebhookEventIgnored covers event types the lifecycle does not act on.
	WebhookEventIgnored WebhookEventKind = "ignored"
)

// ErrInvalidSignature is returned when the payload signature does not verify.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// WebhookEvent is the normalised form of a provider notification.
type WebhookEvent struct {
	ID            string
	Kind          WebhookEventKind
	Type          string
	IntentID      string
	Amount        int64
	Currency      string
	FailureReason string
}

// StripeWebhookVerifier authenticates and decodes Stripe event payloads.
type StripeWebhookVerifier struct {
	secret string
}

// NewStripeWebhookVerifier constructs a verifier bound to the endpoint secret.
func NewStripeWebhookVerifier(secret string) (*StripeWebhookVerifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("payments: webhook secret is required")
	}
	return &StripeWebhookVerifier{secret: trimmed}, nil
}

// Verify checks the Stripe-Signature header against the payload and returns
// the normalised event. Signature verification happens before any payload
// field is trusted.
func (v *StripeWebhookVerifier) Verify(payload []byte, signatureHeader string) (WebhookEvent, error) {
	if v == nil {
		return WebhookEvent{}, errors.New("payments: webhook verifier is nil")
	}

	event, err := webhook.ConstructEvent(payload, signatureHeader, v.secret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return normaliseStripeEvent(event)
}

func normaliseStripeEvent(event stripe.Event) (WebhookEvent, error) {
	out := WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
		Kind: WebhookEventIgnored,
	}

	switch event.Type {
	case "payment_intent.succeeded":
		out.Kind = WebhookEventSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		out.Kind = WebhookEventFailed
	default:
		return out, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return WebhookEvent{}, fmt.Errorf("payments: decode %s payload: %w", event.Type, err)
	}
	if intent.ID == "" {
		return WebhookEvent{}, fmt.Errorf("payments: %s event carries no intent id", event.Type)
	}

	out.IntentID = intent.ID
	out.Amount = intent.Amount
	out.Currency = strings.ToUpper(string(intent.Currency))
	if intent.LastPaymentError != nil {
		out.FailureReason = intent.LastPaymentError.Msg
	}
	return out, nil
}
