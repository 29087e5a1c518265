package cron

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/lock"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/metrics"
)

const (
	defaultInterval = 5 * time.Minute
	defaultLockKey  = "cron-worker:cycle"
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	// Locker elects the instance that runs a cycle. It must fail fast with
	// CodeConflict when another instance holds the key. Defaults to an
	// in-process mutex.
	Locker  lock.Locker
	LockKey string
	Metrics *metrics.CronJobMetrics
	// Interval between cycle starts.
	Interval time.Duration
	// JobTimeout bounds each job; zero leaves jobs bounded only by the caller.
	JobTimeout time.Duration
}

// Service runs the registered ledger maintenance jobs on a fixed cadence.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	locker     lock.Locker
	lockKey    string
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		locker:     params.Locker,
		lockKey:    params.LockKey,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.locker == nil {
		s.locker = lock.NewKeyedMutex()
	}
	if s.lockKey == "" {
		s.lockKey = defaultLockKey
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run executes a cycle immediately and then once per interval until ctx is
// canceled. A failed cycle is logged and the loop carries on.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes every job in registry order while holding the cycle lock.
// A failing job is recorded and the remaining jobs still run.
func (s *Service) RunOnce(ctx context.Context) error {
	release, err := s.locker.Acquire(ctx, s.lockKey)
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		s.logg.Info(ctx, "another cron instance holds the cycle lock; skipping")
		return nil
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cron lock")
	}
	defer release()

	s.logg.Info(s.logg.WithField(ctx, "jobs", s.registry.Names()), "scheduled run starting")
	var canceled error
	s.registry.Each(func(job Job) bool {
		if canceled = ctx.Err(); canceled != nil {
			return false
		}
		s.runJob(ctx, job)
		return true
	})
	if canceled != nil {
		return canceled
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	ctx = s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	s.logg.Debug(ctx, "job start")
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	s.metrics.ObserveDuration(name, elapsed)
	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(ctx, "job failed", err)
		return
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(ctx, "job completed")
}
