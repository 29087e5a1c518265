package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fundledger-backend/internal/contributions"
	"github.com/angelmondragon/fundledger-backend/internal/targets"
	"github.com/angelmondragon/fundledger-backend/pkg/db"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/lock"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/metrics"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox/payloads"
)

const defaultRecomputeAttempts = 3

const (
	ViolationNegativeSum         = "negative_sum"
	ViolationSumBelowCached      = "sum_below_cached"
	ViolationDuplicateTransition = "duplicate_transition"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RecomputeOptions tunes a single recomputation.
type RecomputeOptions struct {
	// TriggeredBy is the contribution whose completion caused the recompute.
	TriggeredBy *uuid.UUID
	// AllowDecrease accepts a source sum below the cached value. Only operator
	// repairs set it; automatic paths treat a decrease as an invariant violation.
	AllowDecrease bool
}

// RecomputeResult reports the projection written by a recomputation.
type RecomputeResult struct {
	TargetID          uuid.UUID          `json:"target_id"`
	RaisedAmountCents int64              `json:"raised_amount_cents"`
	ContributorCount  int64              `json:"contributor_count"`
	PreviousStatus    enums.TargetStatus `json:"previous_status"`
	Status            enums.TargetStatus `json:"status"`
	Transitioned      bool               `json:"transitioned"`
	OnHold            bool               `json:"on_hold"`
	Violation         string             `json:"violation,omitempty"`
}

// InvariantViolation describes a projection that cannot be reconciled with its source rows.
type InvariantViolation struct {
	TargetID    uuid.UUID
	Kind        string
	CachedCents int64
	SourceCents int64
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("funding target %s: %s (cached=%d source=%d)", v.TargetID, v.Kind, v.CachedCents, v.SourceCents)
}

func invariantError(v *InvariantViolation) error {
	return pkgerrors.Wrap(pkgerrors.CodeInvariant, v, "aggregate invariant violated").
		WithDetails(map[string]any{"target_id": v.TargetID, "violation": v.Kind})
}

// Recomputer rebuilds a target's aggregate from its completed contributions and
// drives the single active -> funded/completed transition.
type Recomputer struct {
	contributions contributions.Repository
	targets       targets.Repository
	outbox        outboxEmitter
	txRunner      txRunner
	locker        lock.Locker
	metrics       *metrics.ReconciliationMetrics
	logg          *logger.Logger
	maxAttempts   int
	now           func() time.Time
}

type RecomputerParams struct {
	Contributions     contributions.Repository
	Targets           targets.Repository
	Outbox            outboxEmitter
	TransactionRunner txRunner
	// Locker serialises recomputation of one target across processes. Optional.
	Locker      lock.Locker
	Metrics     *metrics.ReconciliationMetrics
	Logger      *logger.Logger
	MaxAttempts int
}

func NewRecomputer(params RecomputerParams) (*Recomputer, error) {
	if params.Contributions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "contribution repo required")
	}
	if params.Targets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "target repo required")
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
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRecomputeAttempts
	}
	return &Recomputer{
		contributions: params.Contributions,
		targets:       params.Targets,
		outbox:        params.Outbox,
		txRunner:      params.TransactionRunner,
		locker:        params.Locker,
		metrics:       params.Metrics,
		logg:          params.Logger,
		maxAttempts:   attempts,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// LockTarget takes the cross-process target lock when one is configured.
func (r *Recomputer) LockTarget(ctx context.Context, targetID uuid.UUID) (func(), error) {
	if r.locker == nil {
		return func() {}, nil
	}
	release, err := r.locker.Acquire(ctx, "target:"+targetID.String())
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire target lock")
	}
	return release, nil
}

// Recompute runs a standalone recomputation in its own transaction. Violations
// place the target on hold before the error is returned.
func (r *Recomputer) Recompute(ctx context.Context, targetID uuid.UUID, opts RecomputeOptions) (*RecomputeResult, error) {
	ctx = r.logg.WithTargetID(ctx, targetID.String())
	release, err := r.LockTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *RecomputeResult
	err = r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = r.RecomputeTx(ctx, tx, targetID, opts)
		return txErr
	})
	var violation *InvariantViolation
	if errors.As(err, &violation) {
		r.PlaceHold(ctx, violation)
		return &RecomputeResult{TargetID: targetID, OnHold: true, Violation: violation.Kind}, err
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecomputeTx recomputes inside tx. The caller owns the transaction and must
// call PlaceHold after rollback when the error carries an InvariantViolation.
func (r *Recomputer) RecomputeTx(ctx context.Context, tx *gorm.DB, targetID uuid.UUID, opts RecomputeOptions) (*RecomputeResult, error) {
	targetRepo := r.targets.WithTx(tx)
	contributionRepo := r.contributions.WithTx(tx)

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		target, err := targetRepo.LockForUpdate(ctx, targetID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "funding target not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock funding target")
		}
		totals, err := contributionRepo.SumCompletedByTarget(ctx, targetID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum completed contributions")
		}

		if violation := checkInvariants(target, totals, opts); violation != nil {
			return nil, invariantError(violation)
		}

		result := &RecomputeResult{
			TargetID:          target.ID,
			RaisedAmountCents: totals.SumCents,
			ContributorCount:  totals.Count,
			PreviousStatus:    target.Status,
			Status:            target.Status,
			OnHold:            target.OnHold,
		}
		update := targets.AggregateUpdate{
			ID:                target.ID,
			ExpectedVersion:   target.Version,
			RaisedAmountCents: totals.SumCents,
			ContributorCount:  totals.Count,
			Status:            target.Status,
		}
		if target.Status == enums.TargetStatusActive && !target.OnHold && totals.SumCents >= target.TargetAmountCents {
			now := r.now()
			update.Status = target.Kind.ThresholdStatus()
			update.FundedAt = &now
			result.Status = update.Status
			result.Transitioned = true
		}

		// The projection write and its transition row share a savepoint. A
		// rejected transition undoes the status flip while the caller's
		// transaction stays usable for the settlement it already holds.
		written := false
		err = tx.Transaction(func(sp *gorm.DB) error {
			var err error
			written, err = r.targets.WithTx(sp).UpdateAggregate(ctx, update)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write target aggregate")
			}
			if !written || !result.Transitioned {
				return nil
			}
			return r.recordTransition(ctx, sp, target, update, totals, opts.TriggeredBy)
		})
		if err != nil {
			return nil, err
		}
		if !written {
			r.metrics.IncRecomputeConflict()
			r.logg.Warn(r.logg.WithField(ctx, "attempt", attempt), "target version moved during recompute")
			continue
		}
		return result, nil
	}

	return nil, pkgerrors.New(pkgerrors.CodeDependency, "funding target contended, retry later").
		WithDetails(map[string]any{"target_id": targetID, "attempts": r.maxAttempts})
}

func checkInvariants(target *models.FundingTarget, totals contributions.CompletedTotals, opts RecomputeOptions) *InvariantViolation {
	if totals.SumCents < 0 || totals.Count < 0 {
		return &InvariantViolation{TargetID: target.ID, Kind: ViolationNegativeSum, CachedCents: target.RaisedAmountCents, SourceCents: totals.SumCents}
	}
	if !opts.AllowDecrease && target.Status == enums.TargetStatusActive && totals.SumCents < target.RaisedAmountCents {
		return &InvariantViolation{TargetID: target.ID, Kind: ViolationSumBelowCached, CachedCents: target.RaisedAmountCents, SourceCents: totals.SumCents}
	}
	return nil
}

func (r *Recomputer) recordTransition(ctx context.Context, tx *gorm.DB, target *models.FundingTarget, update targets.AggregateUpdate, totals contributions.CompletedTotals, triggeredBy *uuid.UUID) error {
	transition := &models.FundingTargetTransition{
		ID:                uuid.New(),
		TargetID:          target.ID,
		FromStatus:        target.Status,
		ToStatus:          update.Status,
		RaisedAmountCents: totals.SumCents,
		TriggeredBy:       triggeredBy,
	}
	if err := r.targets.WithTx(tx).InsertTransition(ctx, transition); err != nil {
		if db.IsUniqueViolation(err, targets.TransitionConstraint) || db.IsUniqueViolation(err, "funding_target_transitions.target_id") {
			return invariantError(&InvariantViolation{TargetID: target.ID, Kind: ViolationDuplicateTransition, CachedCents: target.RaisedAmountCents, SourceCents: totals.SumCents})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record target transition")
	}

	// A target crosses its threshold once; the transition row already
	// enforces that, and the event follows the same rule.
	err := r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTargetStatusChanged,
		AggregateType: enums.AggregateFundingTarget,
		AggregateID:   target.ID,
		Data: payloads.TargetStatusChangedEvent{
			TargetID:          target.ID,
			Kind:              target.Kind,
			FromStatus:        target.Status,
			ToStatus:          update.Status,
			RaisedAmountCents: totals.SumCents,
			TargetAmountCents: target.TargetAmountCents,
			ContributorCount:  totals.Count,
			Currency:          target.Currency,
			TransitionedAt:    *update.FundedAt,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue target status event")
	}

	r.metrics.IncTransition(update.Status.String())
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"from_status": target.Status,
		"to_status":   update.Status,
		"raised":      totals.SumCents,
		"goal":        target.TargetAmountCents,
	}), "funding target threshold reached")
	return nil
}

// PlaceHold suspends automatic transitions for the target in its own
// transaction and alerts operators through the outbox.
func (r *Recomputer) PlaceHold(ctx context.Context, violation *InvariantViolation) {
	if violation == nil {
		return
	}
	ctx = r.logg.WithFields(r.logg.WithTargetID(ctx, violation.TargetID.String()), map[string]any{
		"violation":    violation.Kind,
		"cached_cents": violation.CachedCents,
		"source_cents": violation.SourceCents,
	})

	placed := false
	err := r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		placed, err = r.targets.WithTx(tx).SetHold(ctx, violation.TargetID, violation.Kind)
		if err != nil || !placed {
			return err
		}
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTargetPlacedOnHold,
			AggregateType: enums.AggregateFundingTarget,
			AggregateID:   violation.TargetID,
			Data: payloads.TargetPlacedOnHoldEvent{
				TargetID:          violation.TargetID,
				Reason:            violation.Kind,
				CachedRaisedCents: violation.CachedCents,
				ComputedSumCents:  violation.SourceCents,
				DetectedAt:        r.now(),
			},
		})
	})
	switch {
	case err != nil:
		r.logg.Error(ctx, "failed to place target on hold", err)
	case placed:
		r.metrics.IncInvariantViolation(violation.Kind)
		r.logg.Error(ctx, "aggregate invariant violated, target placed on hold", violation)
	default:
		r.logg.Debug(ctx, "aggregate invariant still violated on held target")
	}
}
