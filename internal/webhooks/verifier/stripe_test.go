package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
)

const stripeSecret = "whsec_test"

func stripePayload(t *testing.T, eventType string, intent map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_123",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": intent},
	})
	require.NoError(t, err)
	return payload
}

func stripeHeader(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifierSucceeded(t *testing.T) {
	payload := stripePayload(t, "payment_intent.succeeded", map[string]any{
		"id":              "pi_1",
		"object":          "payment_intent",
		"amount":          5000,
		"amount_received": 5000,
	})
	v := NewStripeVerifier(stripeSecret)

	event, err := v.Verify(payload, stripeHeader(payload, stripeSecret, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentProviderStripe, event.Provider)
	assert.Equal(t, "evt_123", event.EventID)
	assert.Equal(t, "pi_1", event.ProviderReference)
	assert.Equal(t, enums.PaymentOutcomeSucceeded, event.Outcome)
	assert.EqualValues(t, 5000, event.RawAmountCents)
	assert.Nil(t, event.FailureReasonPtr())
}

func TestStripeVerifierCanceledIsTerminalFailure(t *testing.T) {
	payload := stripePayload(t, "payment_intent.canceled", map[string]any{
		"id":                  "pi_2",
		"object":              "payment_intent",
		"status":              "canceled",
		"amount":              700,
		"cancellation_reason": "abandoned",
	})
	v := NewStripeVerifier(stripeSecret)

	event, err := v.Verify(payload, stripeHeader(payload, stripeSecret, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, "pi_2", event.ProviderReference)
	assert.Equal(t, enums.PaymentOutcomeFailed, event.Outcome)
	require.NotNil(t, event.FailureReasonPtr())
	assert.Equal(t, "abandoned", *event.FailureReasonPtr())
}

func TestStripeVerifierPaymentFailed(t *testing.T) {
	declined := map[string]any{"code": "card_declined", "decline_code": "insufficient_funds"}
	tests := []struct {
		name    string
		status  string
		ignored bool
	}{
		{"retryable attempt", "requires_payment_method", true},
		{"intent canceled", "canceled", false},
	}
	v := NewStripeVerifier(stripeSecret)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := stripePayload(t, "payment_intent.payment_failed", map[string]any{
				"id":                 "pi_3",
				"object":             "payment_intent",
				"status":             tt.status,
				"amount":             700,
				"last_payment_error": declined,
			})

			event, err := v.Verify(payload, stripeHeader(payload, stripeSecret, time.Now().Unix()))
			if tt.ignored {
				require.ErrorIs(t, err, ErrEventIgnored)
				assert.Equal(t, "evt_123", event.EventID)
				assert.Empty(t, event.Outcome)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, enums.PaymentOutcomeFailed, event.Outcome)
			require.NotNil(t, event.FailureReasonPtr())
			assert.Equal(t, "insufficient_funds", *event.FailureReasonPtr())
		})
	}
}

func TestStripeVerifierFailsClosed(t *testing.T) {
	payload := stripePayload(t, "payment_intent.succeeded", map[string]any{"id": "pi_1", "amount": 100})
	now := time.Now().Unix()

	cases := map[string]struct {
		verifier *StripeVerifier
		header   string
	}{
		"missing header": {NewStripeVerifier(stripeSecret), ""},
		"wrong secret":   {NewStripeVerifier(stripeSecret), stripeHeader(payload, "whsec_other", now)},
		"stale":          {NewStripeVerifier(stripeSecret), stripeHeader(payload, stripeSecret, now-3600)},
		"empty secret":   {NewStripeVerifier(""), stripeHeader(payload, "", now)},
		"garbage header": {NewStripeVerifier(stripeSecret), "not-a-signature"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.verifier.Verify(payload, tc.header)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeVerification), "got %v", err)
		})
	}
}

func TestStripeVerifierTamperedBody(t *testing.T) {
	payload := stripePayload(t, "payment_intent.succeeded", map[string]any{"id": "pi_1", "amount": 100})
	header := stripeHeader(payload, stripeSecret, time.Now().Unix())
	tampered := stripePayload(t, "payment_intent.succeeded", map[string]any{"id": "pi_1", "amount": 100000})

	_, err := NewStripeVerifier(stripeSecret).Verify(tampered, header)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeVerification))
}

func TestStripeVerifierIgnoresOtherTypes(t *testing.T) {
	payload := stripePayload(t, "charge.refunded", map[string]any{"id": "ch_1"})
	event, err := NewStripeVerifier(stripeSecret).Verify(payload, stripeHeader(payload, stripeSecret, time.Now().Unix()))
	assert.True(t, errors.Is(err, ErrEventIgnored))
	assert.Equal(t, "evt_123", event.EventID)
}
