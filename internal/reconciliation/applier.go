package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fundledger-backend/internal/contributions"
	"github.com/angelmondragon/fundledger-backend/internal/webhooks/verifier"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/lock"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/metrics"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox/payloads"
)

// Applier applies verified settlement events to contributions exactly once.
// It never retries: storage failures surface as dependency errors and the
// provider's redelivery is the retry.
type Applier struct {
	contributions contributions.Repository
	deferred      DeferredRepository
	recomputer    *Recomputer
	outbox        outboxEmitter
	txRunner      txRunner
	locks         lock.Locker
	metrics       *metrics.ReconciliationMetrics
	logg          *logger.Logger
	now           func() time.Time
}

type ApplierParams struct {
	Contributions     contributions.Repository
	Deferred          DeferredRepository
	Recomputer        *Recomputer
	Outbox            outboxEmitter
	TransactionRunner txRunner
	// Locks serialises deliveries of one provider reference inside this
	// process. Defaults to an in-process keyed mutex.
	Locks   lock.Locker
	Metrics *metrics.ReconciliationMetrics
	Logger  *logger.Logger
}

func NewApplier(params ApplierParams) (*Applier, error) {
	if params.Contributions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "contribution repo required")
	}
	if params.Deferred == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "deferred event repo required")
	}
	if params.Recomputer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "recomputer required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	locks := params.Locks
	if locks == nil {
		locks = lock.NewKeyedMutex()
	}
	return &Applier{
		contributions: params.Contributions,
		deferred:      params.Deferred,
		recomputer:    params.Recomputer,
		outbox:        params.Outbox,
		txRunner:      params.TransactionRunner,
		locks:         locks,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Apply settles the contribution named by event. An unknown reference parks the
// event and returns Deferred; a terminal contribution returns AlreadyApplied.
func (a *Applier) Apply(ctx context.Context, event verifier.NormalizedEvent) (ApplyResult, error) {
	result, err := a.apply(ctx, event, true)
	a.metrics.IncApplyResult(event.Provider.String(), metricLabel(result, err))
	return result, err
}

func (a *Applier) apply(ctx context.Context, event verifier.NormalizedEvent, park bool) (ApplyResult, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}
	ctx = a.logg.WithProviderReference(a.logg.WithProvider(ctx, event.Provider.String()), event.ProviderReference)
	ctx = a.logg.WithFields(ctx, map[string]any{"event_id": event.EventID, "outcome": event.Outcome})

	release, err := a.locks.Acquire(ctx, "contribution:"+event.ProviderReference)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire contribution lock")
	}
	defer release()

	contribution, err := a.contributions.FindByProviderReference(ctx, event.ProviderReference)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contribution")
	}
	if contribution == nil {
		if park {
			if err := a.park(ctx, event); err != nil {
				return "", err
			}
		}
		return Deferred, nil
	}
	if contribution.Provider != event.Provider {
		return "", pkgerrors.New(pkgerrors.CodeInvariant, "provider reference belongs to another provider").
			WithDetails(map[string]any{"contribution_id": contribution.ID, "stored_provider": contribution.Provider})
	}
	if contribution.Status.IsTerminal() {
		a.logg.Info(ctx, "contribution already settled")
		return AlreadyApplied, nil
	}
	if event.Outcome == enums.PaymentOutcomeSucceeded && event.RawAmountCents != contribution.AmountCents {
		a.metrics.IncInvariantViolation("amount_mismatch")
		err := pkgerrors.New(pkgerrors.CodeInvariant, "settled amount differs from contribution amount").
			WithDetails(map[string]any{
				"contribution_id": contribution.ID,
				"expected_cents":  contribution.AmountCents,
				"event_cents":     event.RawAmountCents,
			})
		a.logg.Error(ctx, "amount mismatch on settlement event", err)
		return "", err
	}

	completes := event.Outcome == enums.PaymentOutcomeSucceeded
	if completes && contribution.TargetID != nil {
		releaseTarget, err := a.recomputer.LockTarget(ctx, *contribution.TargetID)
		if err != nil {
			return "", err
		}
		defer releaseTarget()
	}

	return a.settle(ctx, contribution, event)
}

func (a *Applier) settle(ctx context.Context, contribution *models.Contribution, event verifier.NormalizedEvent) (ApplyResult, error) {
	status := event.Outcome.ContributionStatus()
	settledAt := a.now()
	result := Applied
	var violation *InvariantViolation

	err := a.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		won, err := a.contributions.WithTx(tx).MarkSettled(ctx, contributions.SettleInput{
			ProviderReference: contribution.ProviderReference,
			Status:            status,
			FailureReason:     event.FailureReasonPtr(),
			SettledAt:         settledAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle contribution")
		}
		if !won {
			result = AlreadyApplied
			return nil
		}

		if err := a.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventContributionSettled,
			AggregateType: enums.AggregateContribution,
			AggregateID:   contribution.ID,
			Data: payloads.ContributionSettledEvent{
				ContributionID:    contribution.ID,
				TargetID:          contribution.TargetID,
				Provider:          contribution.Provider,
				ProviderReference: contribution.ProviderReference,
				Status:            status,
				AmountCents:       contribution.AmountCents,
				Currency:          contribution.Currency,
				FailureReason:     event.FailureReasonPtr(),
				SettledAt:         settledAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue contribution event")
		}

		if status != enums.ContributionStatusCompleted || contribution.TargetID == nil {
			return nil
		}
		_, err = a.recomputer.RecomputeTx(ctx, tx, *contribution.TargetID, RecomputeOptions{TriggeredBy: uuidPtr(contribution.ID)})
		if errors.As(err, &violation) {
			// The settlement is provider truth and commits; only the projection waits.
			return nil
		}
		return err
	})
	if err != nil {
		a.logg.Error(ctx, "apply settlement failed", err)
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply settlement")
		}
		return "", err
	}
	if violation != nil {
		a.recomputer.PlaceHold(ctx, violation)
		return Applied, invariantError(violation)
	}

	if result == AlreadyApplied {
		a.logg.Info(ctx, "concurrent delivery already settled contribution")
	} else {
		a.logg.Info(a.logg.WithField(ctx, "status", status), "contribution settled")
	}
	return result, nil
}

func (a *Applier) park(ctx context.Context, event verifier.NormalizedEvent) error {
	parked, err := a.deferred.Park(ctx, event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "park orphan event")
	}
	if parked {
		a.logg.Warn(ctx, "no contribution for provider reference, event deferred")
	}
	return nil
}

func metricLabel(result ApplyResult, err error) string {
	if err == nil {
		return result.String()
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
