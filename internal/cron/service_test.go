package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/metrics"
)

// stubLocker answers every Acquire with err, or grants the key and counts releases.
type stubLocker struct {
	err      error
	keys     []string
	releases int
}

func (s *stubLocker) Acquire(_ context.Context, key string) (func(), error) {
	s.keys = append(s.keys, key)
	if s.err != nil {
		return nil, s.err
	}
	return func() { s.releases++ }, nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(ctx context.Context) error {
	j.runs++
	_, j.deadline = ctx.Deadline()
	return j.err
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	locker := &stubLocker{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: mustRegistry(t, success, failure),
		Locker:   locker,
		LockKey:  "fl:cron:test",
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, success.runs)
	assert.Equal(t, 1, failure.runs)
	assert.Equal(t, []string{"fl:cron:test"}, locker.keys)
	assert.Equal(t, 1, locker.releases)
}

func TestRunOnceSkipsCycleWhenLockHeldElsewhere(t *testing.T) {
	job := &testJob{name: "replay"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: mustRegistry(t, job),
		Locker:   &stubLocker{err: pkgerrors.New(pkgerrors.CodeConflict, "lock busy")},
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunOnceReportsLockOutage(t *testing.T) {
	job := &testJob{name: "replay"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: mustRegistry(t, job),
		Locker:   &stubLocker{err: errors.New("redis: connection refused")},
	})
	require.NoError(t, err)

	err = service.RunOnce(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Zero(t, job.runs)
}

func TestRunOnceAppliesJobTimeout(t *testing.T) {
	bounded := &testJob{name: "bounded"}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: mustRegistry(t, bounded), JobTimeout: time.Minute})
	require.NoError(t, err)
	require.NoError(t, service.RunOnce(context.Background()))
	assert.True(t, bounded.deadline)

	unbounded := &testJob{name: "unbounded"}
	service, err = NewService(ServiceParams{Logger: logger.Nop(), Registry: mustRegistry(t, unbounded)})
	require.NoError(t, err)
	require.NoError(t, service.RunOnce(context.Background()))
	assert.False(t, unbounded.deadline)
}

func TestRunOnceRecordsJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: mustRegistry(t, &testJob{name: "ok"}, &testJob{name: "bad", err: errors.New("boom")}),
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	require.NoError(t, service.RunOnce(context.Background()))

	assert.Equal(t, 1.0, jobRuns(t, reg, "bad", "failure"))
	assert.Equal(t, 1.0, jobRuns(t, reg, "ok", "success"))
	assert.Zero(t, jobRuns(t, reg, "ok", "failure"))
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "replay"}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: mustRegistry(t, job), Locker: &stubLocker{}, Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, service.Run(ctx), context.Canceled)
}

func TestNewServiceRequiresLogger(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

func jobRuns(t *testing.T, reg *prometheus.Registry, job, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "fundledger_cron_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["job"] == job && labels["result"] == result {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func mustRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	r, err := NewRegistry(jobs...)
	require.NoError(t, err)
	return r
}
