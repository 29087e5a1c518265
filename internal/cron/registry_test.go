package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	r, err := NewRegistry(namedJob("deferred-replay"), nil, namedJob("aggregate-audit"))
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"deferred-replay", "aggregate-audit"}, r.Names())
}

func TestRegistryRejectsBadNames(t *testing.T) {
	tests := map[string][]Job{
		"duplicate": {namedJob("outbox-retention"), namedJob("outbox-retention")},
		"blank":     {namedJob("  ")},
	}
	for name, jobs := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(jobs...)
			assert.Error(t, err)
		})
	}
}

func TestRegistryEachStopsEarly(t *testing.T) {
	r, err := NewRegistry(namedJob("a"), namedJob("b"), namedJob("c"))
	require.NoError(t, err)

	var visited []string
	r.Each(func(job Job) bool {
		visited = append(visited, job.Name())
		return job.Name() != "b"
	})
	assert.Equal(t, []string{"a", "b"}, visited)

	var empty *Registry
	assert.Zero(t, empty.Len())
	assert.Empty(t, empty.Names())
}
