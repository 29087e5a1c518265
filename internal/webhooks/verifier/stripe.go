package verifier

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

const (
	StripeSignatureHeader = "Stripe-Signature"
	stripeTolerance       = 5 * time.Minute
)

// StripeVerifier checks Stripe-Signature (HMAC-SHA256 over "<t>.<body>") and
// extracts PaymentIntent settlement events.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: strings.TrimSpace(secret), tolerance: stripeTolerance}
}

func (v *StripeVerifier) Provider() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (v *StripeVerifier) SignatureHeader() string { return StripeSignatureHeader }

type stripeIntentFields struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	Amount             int64  `json:"amount"`
	AmountReceived     int64  `json:"amount_received"`
	CancellationReason string `json:"cancellation_reason"`
	LastPaymentError   *struct {
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"last_payment_error"`
}

func (v *StripeVerifier) Verify(payload []byte, signature string) (NormalizedEvent, error) {
	if v == nil || v.secret == "" {
		return NormalizedEvent{}, verificationError("stripe signing secret not configured")
	}
	if strings.TrimSpace(signature) == "" {
		return NormalizedEvent{}, verificationError("stripe signature missing")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return NormalizedEvent{}, wrapVerification(err, "stripe signature invalid")
	}

	ignored := NormalizedEvent{Provider: enums.PaymentProviderStripe, EventID: event.ID, EventType: string(event.Type)}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentCanceled, stripe.EventTypePaymentIntentPaymentFailed:
	default:
		return ignored, ErrEventIgnored
	}
	if event.Data == nil {
		return NormalizedEvent{}, verificationError("stripe event has no data")
	}

	var intent stripeIntentFields
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return NormalizedEvent{}, wrapVerification(err, "decode stripe payment intent")
	}

	// A failed attempt returns the intent to requires_payment_method and the
	// contributor may retry it, so only a canceled intent is a terminal failure.
	var outcome enums.PaymentOutcome
	switch {
	case event.Type == stripe.EventTypePaymentIntentSucceeded:
		outcome = enums.PaymentOutcomeSucceeded
	case event.Type == stripe.EventTypePaymentIntentCanceled,
		intent.Status == string(stripe.PaymentIntentStatusCanceled):
		outcome = enums.PaymentOutcomeFailed
	default:
		return ignored, ErrEventIgnored
	}

	normalized := NormalizedEvent{
		Provider:          enums.PaymentProviderStripe,
		EventID:           event.ID,
		EventType:         string(event.Type),
		ProviderReference: intent.ID,
		Outcome:           outcome,
		RawAmountCents:    intent.Amount,
	}
	if outcome == enums.PaymentOutcomeSucceeded && intent.AmountReceived > 0 {
		normalized.RawAmountCents = intent.AmountReceived
	}
	if outcome == enums.PaymentOutcomeFailed {
		reasons := []string{intent.CancellationReason}
		if e := intent.LastPaymentError; e != nil {
			reasons = append(reasons, e.DeclineCode, e.Code, e.Message)
		}
		normalized.FailureReason = firstNonEmpty(reasons...)
	}
	if err := normalized.Validate(); err != nil {
		return NormalizedEvent{}, wrapVerification(err, "stripe event incomplete")
	}
	return normalized, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
