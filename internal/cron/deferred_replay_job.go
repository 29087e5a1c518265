package cron

import (
	"context"

	"github.com/angelmondragon/fundledger-backend/internal/reconciliation"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
)

const (
	defaultReplayBatchSize  = 100
	defaultReplayMaxBatches = 10
)

type deferredReplayer interface {
	ReplayPending(ctx context.Context, limit int) (reconciliation.ReplayStats, error)
}

type DeferredReplayJobParams struct {
	Logger     *logger.Logger
	Replayer   deferredReplayer
	BatchSize  int
	MaxBatches int
}

// NewDeferredReplayJob replays parked webhook events whose contribution may
// have been committed since the delivery arrived.
func NewDeferredReplayJob(params DeferredReplayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Replayer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "replayer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReplayBatchSize
	}
	maxBatches := params.MaxBatches
	if maxBatches <= 0 {
		maxBatches = defaultReplayMaxBatches
	}
	return &deferredReplayJob{
		logg:       params.Logger,
		replayer:   params.Replayer,
		batchSize:  batch,
		maxBatches: maxBatches,
	}, nil
}

type deferredReplayJob struct {
	logg       *logger.Logger
	replayer   deferredReplayer
	batchSize  int
	maxBatches int
}

func (j *deferredReplayJob) Name() string { return "deferred-replay" }

func (j *deferredReplayJob) Run(ctx context.Context) error {
	var total reconciliation.ReplayStats
	var runErr error
	for batch := 0; batch < j.maxBatches; batch++ {
		stats, err := j.replayer.ReplayPending(ctx, j.batchSize)
		total.Scanned += stats.Scanned
		total.Resolved += stats.Resolved
		total.Waiting += stats.Waiting
		total.Abandoned += stats.Abandoned
		total.Failed += stats.Failed
		if err != nil {
			runErr = err
			break
		}
		// Waiting rows stay pending, so a short or all-waiting batch means
		// another pass would only see the same rows again.
		if stats.Scanned < j.batchSize || stats.Resolved+stats.Abandoned == 0 {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   total.Scanned,
		"resolved":  total.Resolved,
		"waiting":   total.Waiting,
		"abandoned": total.Abandoned,
		"failed":    total.Failed,
	})
	if total.Abandoned > 0 {
		j.logg.Warn(logCtx, "deferred events abandoned without a matching contribution")
	}
	if runErr != nil {
		return runErr
	}
	j.logg.Info(logCtx, "deferred replay complete")
	return nil
}
