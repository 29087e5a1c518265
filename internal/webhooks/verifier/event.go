// Package verifier authenticates provider webhook payloads and reduces them to
// the few fields reconciliation needs. It never touches storage.
package verifier

import (
	"errors"
	"strings"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
)

// ErrEventIgnored marks a verified event whose type or status carries no
// settlement outcome. Callers acknowledge it without applying anything.
var ErrEventIgnored = errors.New("webhook event ignored")

// NormalizedEvent is a provider-neutral settlement notification.
type NormalizedEvent struct {
	Provider          enums.PaymentProvider
	EventID           string
	EventType         string
	ProviderReference string
	Outcome           enums.PaymentOutcome
	RawAmountCents    int64
	FailureReason     string
}

// Validate checks the fields every verifier must populate.
func (e NormalizedEvent) Validate() error {
	switch {
	case !e.Provider.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "event provider is invalid")
	case strings.TrimSpace(e.EventID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	case strings.TrimSpace(e.ProviderReference) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "provider reference is required")
	case !e.Outcome.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "event outcome is invalid")
	}
	return nil
}

// FailureReasonPtr returns nil for successful events or empty reasons.
func (e NormalizedEvent) FailureReasonPtr() *string {
	reason := strings.TrimSpace(e.FailureReason)
	if e.Outcome != enums.PaymentOutcomeFailed || reason == "" {
		return nil
	}
	return &reason
}

// Verifier authenticates one provider's payloads. Implementations fail closed:
// anything short of a valid signature is a verification error.
type Verifier interface {
	Provider() enums.PaymentProvider
	SignatureHeader() string
	Verify(payload []byte, signature string) (NormalizedEvent, error)
}

func verificationError(message string) error {
	return pkgerrors.New(pkgerrors.CodeVerification, message)
}

func wrapVerification(err error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeVerification, err, message)
}
