package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type fakeLock struct {
	acquired  bool
	refreshes int
	loseAfter int
	released  bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Refresh(context.Context) (bool, error) {
	f.refreshes++
	if f.loseAfter > 0 && f.refreshes >= f.loseAfter {
		return false, nil
	}
	return f.acquired, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.released = true
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
	})
	require.NoError(t, err)
	return service
}

func TestRunOnceRunsAllJobsAndReportsFailures(t *testing.T) {
	purge := &testJob{name: "cancelled-order-purge", err: errors.New("db down")}
	stale := &testJob{name: "stale-pending-orders"}
	lock := &fakeLock{}
	service := newTestService(t, lock, purge, stale)

	err := service.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled-order-purge: db down")
	assert.Equal(t, 1, purge.runs)
	assert.Equal(t, 1, stale.runs)
	assert.True(t, lock.released)
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	service := newTestService(t, &fakeLock{acquired: true}, job)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunOnceStopsWhenLockIsLost(t *testing.T) {
	first := &testJob{name: "cancelled-order-purge"}
	second := &testJob{name: "stale-pending-orders"}
	third := &testJob{name: "outbox-retention"}
	service := newTestService(t, &fakeLock{loseAfter: 2}, first, second, third)

	err := service.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrLockLost)
	assert.Equal(t, 1, first.runs)
	assert.Equal(t, 1, second.runs)
	assert.Zero(t, third.runs)
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	assert.Error(t, err)
}

func TestRunOnceRecordsJobOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	registry, err := NewRegistry(&testJob{name: "outbox-retention"}, &testJob{name: "cancelled-order-purge", err: errors.New("boom")})
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registry,
		Lock:     &fakeLock{},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.Error(t, service.RunOnce(context.Background()))

	families, err := reg.Gather()
	require.NoError(t, err)
	outcomes := map[string]string{}
	for _, family := range families {
		if family.GetName() != "storefront_cron_job_runs_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range m.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			outcomes[labels["job"]] = labels["outcome"]
		}
	}
	assert.Equal(t, map[string]string{"outbox-retention": "success", "cancelled-order-purge": "failure"}, outcomes)
}

type cancelingJob struct {
	cancel context.CancelFunc
	runs   int
}

func (c *cancelingJob) Name() string { return "cancelled-order-purge" }

func (c *cancelingJob) Run(context.Context) error {
	c.runs++
	c.cancel()
	return nil
}

func TestRunStartsImmediatelyAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := &cancelingJob{cancel: cancel}
	service := newTestService(t, &fakeLock{}, job)

	err := service.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, job.runs)
}
