package reconciliation

import (
	"context"
	"time"

	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
)

const defaultReplayMaxAttempts = 20

// ReplayStats summarises one pass over parked events.
type ReplayStats struct {
	Scanned   int
	Resolved  int
	Waiting   int
	Abandoned int
	Failed    int
}

// Replayer re-runs parked events through the applier once their contribution
// may have been committed. It never creates contributions.
type Replayer struct {
	applier     *Applier
	deferred    DeferredRepository
	maxAttempts int
}

func NewReplayer(applier *Applier, deferred DeferredRepository, maxAttempts int) (*Replayer, error) {
	if applier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "applier required")
	}
	if deferred == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "deferred event repo required")
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultReplayMaxAttempts
	}
	return &Replayer{applier: applier, deferred: deferred, maxAttempts: maxAttempts}, nil
}

// ReplayPending processes up to limit parked events. Failures are isolated per
// event and returned together.
func (r *Replayer) ReplayPending(ctx context.Context, limit int) (ReplayStats, error) {
	var stats ReplayStats
	rows, err := r.deferred.ListPending(ctx, limit)
	if err != nil {
		return stats, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deferred events")
	}

	var errs error
	for _, row := range rows {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		stats.Scanned++
		event := eventFromDeferred(row)
		now := time.Now().UTC()

		result, applyErr := r.applier.apply(ctx, event, false)
		outcome := ""
		switch {
		case applyErr != nil && result != Applied:
			stats.Failed++
			outcome = "failed"
			errs = multierr.Append(errs, applyErr)
			abandon := row.Attempts+1 >= r.maxAttempts
			if err := r.deferred.RecordAttempt(ctx, row.ID, now, abandon); err != nil {
				errs = multierr.Append(errs, err)
			}
		case result == Deferred:
			abandon := row.Attempts+1 >= r.maxAttempts
			if abandon {
				stats.Abandoned++
				outcome = "abandoned"
			} else {
				stats.Waiting++
				outcome = "waiting"
			}
			if err := r.deferred.RecordAttempt(ctx, row.ID, now, abandon); err != nil {
				errs = multierr.Append(errs, err)
			}
		default:
			// Applied with a projection violation still settled the contribution.
			if applyErr != nil {
				errs = multierr.Append(errs, applyErr)
			}
			stats.Resolved++
			outcome = "resolved"
			if err := r.deferred.MarkResolved(ctx, row.ID, now); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		r.applier.metrics.IncDeferredReplay(outcome)
		r.applier.metrics.IncApplyResult(event.Provider.String(), metricLabel(result, applyErr))
	}
	return stats, errs
}
