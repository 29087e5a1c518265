package cron

import (
	"context"
	"strings"

	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
)

// Job is one unit of scheduled work. Name labels the job's logs and metrics.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry is the ordered list of jobs executed on every cycle.
type Registry struct {
	jobs []Job
}

// NewRegistry keeps jobs in argument order. Nil jobs are skipped; blank or
// repeated names are rejected because they would merge metric series.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{}
	seen := make(map[string]struct{}, len(jobs))
	for i, job := range jobs {
		if job == nil {
			continue
		}
		name := strings.TrimSpace(job.Name())
		if name == "" {
			return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "cron job %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "cron job %q registered twice", name)
		}
		seen[name] = struct{}{}
		r.jobs = append(r.jobs, job)
	}
	return r, nil
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.jobs)
}

// Each visits jobs in order and stops early when fn returns false.
func (r *Registry) Each(fn func(Job) bool) {
	if r == nil {
		return
	}
	for _, job := range r.jobs {
		if !fn(job) {
			return
		}
	}
}

func (r *Registry) Names() []string {
	names := make([]string, 0, r.Len())
	r.Each(func(job Job) bool {
		names = append(names, job.Name())
		return true
	})
	return names
}
