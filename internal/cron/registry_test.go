package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	purge := &stubJob{name: "cancelled-order-purge"}
	stale := &stubJob{name: "stale-pending-orders"}
	registry, err := NewRegistry(purge, nil, stale)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, purge, jobs[0])
	assert.Same(t, stale, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "outbox-retention"}, &stubJob{name: "outbox-retention"})
	assert.Error(t, err)

	_, err = NewRegistry(&stubJob{name: " "})
	assert.Error(t, err)
}

func TestRegistrySelect(t *testing.T) {
	registry, err := NewRegistry(
		&stubJob{name: "cancelled-order-purge"},
		&stubJob{name: "stale-pending-orders"},
		&stubJob{name: "outbox-retention"},
	)
	require.NoError(t, err)

	selected, err := registry.Select("outbox-retention", "cancelled-order-purge")
	require.NoError(t, err)
	names := make([]string, 0)
	for _, job := range selected.Jobs() {
		names = append(names, job.Name())
	}
	assert.Equal(t, []string{"cancelled-order-purge", "outbox-retention"}, names)

	all, err := registry.Select()
	require.NoError(t, err)
	assert.Len(t, all.Jobs(), 3)

	_, err = registry.Select("reindex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale-pending-orders")
}
