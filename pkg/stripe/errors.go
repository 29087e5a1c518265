package stripe

import (
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
)

var typeCodes = map[stripe.ErrorType]pkgerrors.Code{
	stripe.ErrorTypeCard:        pkgerrors.CodeValidation,
	stripe.ErrorTypeIdempotency: pkgerrors.CodeIdempotency,
}

// mapError converts Stripe API failures into ledger error codes. Network
// failures and 5xx responses stay dependency errors so callers can retry.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	msg := "stripe " + op + " failed"

	var apiErr *stripe.Error
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	if apiErr.Code == stripe.ErrorCodeRateLimit {
		return pkgerrors.Wrap(pkgerrors.CodeRateLimit, err, msg)
	}
	if code, ok := typeCodes[apiErr.Type]; ok {
		return pkgerrors.Wrap(code, err, msg)
	}

	code := pkgerrors.CodeDependency
	switch status := apiErr.HTTPStatusCode; {
	case status == http.StatusUnauthorized:
		code = pkgerrors.CodeUnauthorized
	case status == http.StatusTooManyRequests:
		code = pkgerrors.CodeRateLimit
	case status >= 400 && status < 500:
		code = pkgerrors.CodeValidation
	}
	return pkgerrors.Wrap(code, err, msg)
}
