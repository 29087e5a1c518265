package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
)

var categoryCodes = map[sq.ErrorCategory]pkgerrors.Code{
	sq.ErrorCategoryAuthenticationError:      pkgerrors.CodeUnauthorized,
	sq.ErrorCategory("RATE_LIMIT_ERROR"):     pkgerrors.CodeRateLimit,
	sq.ErrorCategory("PAYMENT_METHOD_ERROR"): pkgerrors.CodeValidation,
}

// mapError converts SDK failures into ledger error codes. Transport failures
// and 5xx responses become dependency errors so callers can retry.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	msg := "square " + op + " failed"

	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}

	code := codeForStatus(apiErr.StatusCode)
	for _, detail := range apiErrorDetails(apiErr) {
		if detail.Code == sq.ErrorCodeIdempotencyKeyReused {
			code = pkgerrors.CodeIdempotency
			break
		}
		if mapped, ok := categoryCodes[detail.Category]; ok {
			code = mapped
			break
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

// apiErrorDetails decodes the {"errors":[...]} body Square returns on failure.
func apiErrorDetails(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	details := body.Errors[:0]
	for _, e := range body.Errors {
		if e != nil {
			details = append(details, e)
		}
	}
	return details
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	case status >= 400 && status < 500:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}
