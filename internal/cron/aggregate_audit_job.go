package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fundledger-backend/internal/reconciliation"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
)

const (
	defaultAuditBatchSize    = 200
	defaultStalePendingAfter = 48 * time.Hour
	stalePendingSampleSize   = 50
)

type activeTargetLister interface {
	ListActive(ctx context.Context, after uuid.UUID, limit int) ([]models.FundingTarget, error)
}

type targetRecomputer interface {
	Recompute(ctx context.Context, targetID uuid.UUID, opts reconciliation.RecomputeOptions) (*reconciliation.RecomputeResult, error)
}

type stalePendingLister interface {
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Contribution, error)
}

type AggregateAuditJobParams struct {
	Logger            *logger.Logger
	Targets           activeTargetLister
	Recomputer        targetRecomputer
	Contributions     stalePendingLister
	BatchSize         int
	StalePendingAfter time.Duration
}

// NewAggregateAuditJob recomputes every active target from source rows. A
// drifted projection either heals or is placed on hold by the recomputer, and
// a target whose threshold transition was missed gets it here.
func NewAggregateAuditJob(params AggregateAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Targets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "targets repo required")
	}
	if params.Recomputer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "recomputer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAuditBatchSize
	}
	stale := params.StalePendingAfter
	if stale <= 0 {
		stale = defaultStalePendingAfter
	}
	return &aggregateAuditJob{
		logg:          params.Logger,
		targets:       params.Targets,
		recomputer:    params.Recomputer,
		contributions: params.Contributions,
		batchSize:     batch,
		staleAfter:    stale,
		now:           time.Now,
	}, nil
}

type aggregateAuditJob struct {
	logg          *logger.Logger
	targets       activeTargetLister
	recomputer    targetRecomputer
	contributions stalePendingLister
	batchSize     int
	staleAfter    time.Duration
	now           func() time.Time
}

func (j *aggregateAuditJob) Name() string { return "aggregate-audit" }

func (j *aggregateAuditJob) Run(ctx context.Context) error {
	var (
		errs        error
		audited     int
		transitions int
		holds       int
		after       = uuid.Nil
	)
	for {
		page, err := j.targets.ListActive(ctx, after, j.batchSize)
		if err != nil {
			return multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active targets"))
		}
		for _, target := range page {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			if target.OnHold {
				continue
			}
			audited++
			result, err := j.recomputer.Recompute(ctx, target.ID, reconciliation.RecomputeOptions{})
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeInvariant) {
					holds++
				}
				errs = multierr.Append(errs, err)
				continue
			}
			if result.Transitioned {
				transitions++
			}
		}
		if len(page) < j.batchSize {
			break
		}
		after = page[len(page)-1].ID
	}

	stale := j.reportStalePending(ctx)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"audited":       audited,
		"transitions":   transitions,
		"holds":         holds,
		"stale_pending": stale,
	}), "aggregate audit complete")
	return errs
}

// reportStalePending surfaces contributions the provider never settled. They
// are reported only; settlement state comes from the provider.
func (j *aggregateAuditJob) reportStalePending(ctx context.Context) int {
	if j.contributions == nil {
		return 0
	}
	cutoff := j.now().UTC().Add(-j.staleAfter)
	rows, err := j.contributions.ListStalePending(ctx, cutoff, stalePendingSampleSize)
	if err != nil {
		j.logg.Error(ctx, "failed to list stale pending contributions", err)
		return 0
	}
	if len(rows) == 0 {
		return 0
	}
	refs := make([]string, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, row.ProviderReference)
	}
	j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
		"cutoff":              cutoff,
		"count":               len(rows),
		"provider_references": refs,
	}), "contributions pending past settlement window")
	return len(rows)
}
