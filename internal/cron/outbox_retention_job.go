package cron

import (
	"context"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
)

const (
	outboxRetentionDays = 30
	outboxMinAttempts   = 10
	deadLetterLookback  = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterCounter interface {
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// DeadLetters is optional. When set, each run warns about rows
	// dead-lettered in the last 24h so they get remediated.
	DeadLetters deadLetterCounter
	// Retention is the age in days after which published rows are removed.
	Retention int
	// MinAttempts identifies terminal rows the publisher gave up on; those
	// already have a DLQ copy and can be pruned with published rows.
	MinAttempts int
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	deadLetters deadLetterCounter
	retention   time.Duration
	minAttempts int
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db runner required")
	case params.Repository == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox repository required")
	}
	days := params.Retention
	if days <= 0 {
		days = outboxRetentionDays
	}
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = outboxMinAttempts
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		deadLetters: params.DeadLetters,
		retention:   time.Duration(days) * 24 * time.Hour,
		minAttempts: minAttempts,
		now:         time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)

	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		deleted, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts)
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "prune outbox rows")
	}
	ctx = j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "rows_deleted": deleted})
	j.logg.Info(ctx, "outbox rows pruned")

	j.reportDeadLetters(ctx, now.Add(-deadLetterLookback))
	return nil
}

// reportDeadLetters never fails the run; pruning already succeeded.
func (j *outboxRetentionJob) reportDeadLetters(ctx context.Context, since time.Time) {
	if j.deadLetters == nil {
		return
	}
	count, err := j.deadLetters.CountSince(ctx, since)
	if err != nil {
		j.logg.Error(ctx, "count dead-lettered outbox rows", err)
		return
	}
	if count > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{"dead_letters": count, "since": since}), "ledger events dead-lettered recently")
	}
}
