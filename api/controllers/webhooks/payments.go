package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fundledger-backend/api/responses"
	"github.com/angelmondragon/fundledger-backend/internal/reconciliation"
	"github.com/angelmondragon/fundledger-backend/internal/webhooks/verifier"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
)

const defaultMaxBodyBytes int64 = 64 << 10

type verifierLookup interface {
	Lookup(provider enums.PaymentProvider) (verifier.Verifier, bool)
}

type eventApplier interface {
	Apply(ctx context.Context, event verifier.NormalizedEvent) (reconciliation.ApplyResult, error)
}

type eventGuard interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	MarkSettled(ctx context.Context, provider, eventID string) error
}

type verificationMetrics interface {
	IncVerificationFailure(provider string)
}

// PaymentWebhookParams wires the provider webhook endpoint.
type PaymentWebhookParams struct {
	Verifiers    verifierLookup
	Applier      eventApplier
	Guard        eventGuard
	Metrics      verificationMetrics
	MaxBodyBytes int64
	Logger       *logger.Logger
}

type webhookAck struct {
	EventID string `json:"event_id,omitempty"`
	Result  string `json:"result"`
}

// PaymentWebhook verifies and applies a settlement notification for the
// provider named in the path. Only verified payloads reach the applier.
func PaymentWebhook(params PaymentWebhookParams) http.HandlerFunc {
	logg := params.Logger
	maxBody := params.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if params.Verifiers == nil || params.Applier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}

		provider, err := enums.ParsePaymentProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment provider"))
			return
		}
		v, ok := params.Verifiers.Lookup(provider)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "payment provider not configured"))
			return
		}
		if logg != nil {
			ctx = logg.WithProvider(ctx, provider.String())
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		event, err := v.Verify(payload, r.Header.Get(v.SignatureHeader()))
		if errors.Is(err, verifier.ErrEventIgnored) {
			if logg != nil {
				logg.Debug(logg.WithFields(ctx, map[string]any{"event_id": event.EventID, "event_type": event.EventType}), "webhook event ignored")
			}
			responses.WriteSuccess(w, webhookAck{EventID: event.EventID, Result: "ignored"})
			return
		}
		if err != nil {
			if params.Metrics != nil {
				params.Metrics.IncVerificationFailure(provider.String())
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithProviderReference(ctx, event.ProviderReference)
			ctx = logg.WithField(ctx, "event_id", event.EventID)
		}

		if params.Guard != nil {
			seen, guardErr := params.Guard.Seen(ctx, provider.String(), event.EventID)
			switch {
			case guardErr != nil:
				// The applier is idempotent on its own; a guard outage only costs a redundant apply.
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "guard_error", guardErr.Error()), "webhook event guard unavailable")
				}
			case seen:
				responses.WriteSuccess(w, webhookAck{EventID: event.EventID, Result: reconciliation.AlreadyApplied.String()})
				return
			}
		}

		// In-flight duplicates are not short-circuited here. They reach the
		// applier, whose conditional update lets exactly one settle.
		result, err := params.Applier.Apply(ctx, event)
		if err == nil && result != reconciliation.Deferred {
			markSettled(ctx, params.Guard, logg, provider, event.EventID)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "result", result.String()), "webhook event processed")
		}
		responses.WriteSuccess(w, webhookAck{EventID: event.EventID, Result: result.String()})
	}
}

func markSettled(ctx context.Context, guard eventGuard, logg *logger.Logger, provider enums.PaymentProvider, eventID string) {
	if guard == nil {
		return
	}
	if err := guard.MarkSettled(ctx, provider.String(), eventID); err != nil && logg != nil {
		logg.Warn(logg.WithField(ctx, "guard_error", err.Error()), "failed to record settled webhook event")
	}
}
