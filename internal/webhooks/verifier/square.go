package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

const SquareSignatureHeader = "x-square-hmacsha256-signature"

// SquareVerifier checks Square's base64 HMAC-SHA256 over notification URL plus
// body and extracts payment settlement events.
type SquareVerifier struct {
	secret          string
	notificationURL string
}

func NewSquareVerifier(secret, notificationURL string) *SquareVerifier {
	return &SquareVerifier{
		secret:          strings.TrimSpace(secret),
		notificationURL: strings.TrimSpace(notificationURL),
	}
}

func (v *SquareVerifier) Provider() enums.PaymentProvider { return enums.PaymentProviderSquare }

func (v *SquareVerifier) SignatureHeader() string { return SquareSignatureHeader }

type squareEnvelope struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		ID     string `json:"id"`
		Object struct {
			Payment *struct {
				ID          string `json:"id"`
				Status      string `json:"status"`
				AmountMoney *struct {
					Amount int64 `json:"amount"`
				} `json:"amount_money"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// Sign computes the expected header value; exposed for tests and tooling.
func (v *SquareVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(v.notificationURL))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (v *SquareVerifier) Verify(payload []byte, signature string) (NormalizedEvent, error) {
	if v == nil || v.secret == "" || v.notificationURL == "" {
		return NormalizedEvent{}, verificationError("square signing secret not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return NormalizedEvent{}, verificationError("square signature missing")
	}
	if !hmac.Equal([]byte(v.Sign(payload)), []byte(signature)) {
		return NormalizedEvent{}, verificationError("square signature invalid")
	}

	var envelope squareEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return NormalizedEvent{}, wrapVerification(err, "decode square event")
	}
	ignored := NormalizedEvent{Provider: enums.PaymentProviderSquare, EventID: envelope.EventID, EventType: envelope.Type}
	if envelope.Type != "payment.updated" && envelope.Type != "payment.created" {
		return ignored, ErrEventIgnored
	}
	payment := envelope.Data.Object.Payment
	if payment == nil {
		return ignored, ErrEventIgnored
	}

	var outcome enums.PaymentOutcome
	status := strings.ToUpper(strings.TrimSpace(payment.Status))
	switch status {
	case "COMPLETED":
		outcome = enums.PaymentOutcomeSucceeded
	case "FAILED", "CANCELED":
		outcome = enums.PaymentOutcomeFailed
	default:
		return ignored, ErrEventIgnored
	}

	reference := payment.ID
	if reference == "" {
		reference = envelope.Data.ID
	}
	normalized := NormalizedEvent{
		Provider:          enums.PaymentProviderSquare,
		EventID:           envelope.EventID,
		EventType:         envelope.Type,
		ProviderReference: reference,
		Outcome:           outcome,
	}
	if payment.AmountMoney != nil {
		normalized.RawAmountCents = payment.AmountMoney.Amount
	}
	if outcome == enums.PaymentOutcomeFailed {
		normalized.FailureReason = strings.ToLower(status)
	}
	if err := normalized.Validate(); err != nil {
		return NormalizedEvent{}, wrapVerification(err, "square event incomplete")
	}
	return normalized, nil
}
