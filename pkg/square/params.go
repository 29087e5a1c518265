package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

const defaultCurrency = "USD"

// PaymentCreateParams describes a contribution charge against a tokenized source.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	// ReferenceID carries the contribution id so the payment can be traced
	// back from the Square dashboard.
	ReferenceID string
}

func (p PaymentCreateParams) request(idempotencyKey string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		SourceID:       p.SourceID,
		LocationID:     optional(p.LocationID),
		CustomerID:     optional(p.CustomerID),
		Note:           optional(p.Note),
		ReferenceID:    optional(p.ReferenceID),
	}
	if p.AmountCents > 0 {
		amount := p.AmountCents
		currency := sq.Currency(currencyCode(p.Currency))
		req.AmountMoney = &sq.Money{Amount: &amount, Currency: &currency}
	}
	return req
}

func currencyCode(raw string) string {
	if code := strings.ToUpper(strings.TrimSpace(raw)); code != "" {
		return code
	}
	return defaultCurrency
}

// optional returns nil for blank input so the SDK omits the field.
func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
