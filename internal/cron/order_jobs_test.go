package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeOrderSweeper struct {
	retention time.Duration
	ttl       time.Duration
	batch     int
	purged    int64
	result    orders.StaleSweepResult
	err       error
}

func (f *fakeOrderSweeper) PurgeCancelled(_ context.Context, retention time.Duration, batchSize int) (int64, error) {
	f.retention = retention
	f.batch = batchSize
	return f.purged, f.err
}

func (f *fakeOrderSweeper) ReconcileStalePending(_ context.Context, ttl time.Duration, batchSize int) (orders.StaleSweepResult, error) {
	f.ttl = ttl
	f.batch = batchSize
	return f.result, f.err
}

func TestCancelledOrderPurgeJobDefaults(t *testing.T) {
	sweeper := &fakeOrderSweeper{purged: 4}
	job, err := NewCancelledOrderPurgeJob(CancelledOrderPurgeJobParams{Logger: logger.Nop(), Orders: sweeper})
	require.NoError(t, err)
	assert.Equal(t, "cancelled-order-purge", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 240*time.Hour, sweeper.retention)
	assert.Equal(t, defaultPurgeBatch, sweeper.batch)
}

func TestCancelledOrderPurgeJobPropagatesError(t *testing.T) {
	sweeper := &fakeOrderSweeper{err: errors.New("db down")}
	job, err := NewCancelledOrderPurgeJob(CancelledOrderPurgeJobParams{
		Logger:    logger.Nop(),
		Orders:    sweeper,
		Retention: time.Hour,
		BatchSize: 10,
	})
	require.NoError(t, err)

	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, time.Hour, sweeper.retention)
	assert.Equal(t, 10, sweeper.batch)
}

func TestStalePendingJob(t *testing.T) {
	sweeper := &fakeOrderSweeper{result: orders.StaleSweepResult{Examined: 3, Confirmed: 1, Cancelled: 2}}
	job, err := NewStalePendingJob(StalePendingJobParams{Logger: logger.Nop(), Orders: sweeper})
	require.NoError(t, err)
	assert.Equal(t, "stale-pending-orders", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 48*time.Hour, sweeper.ttl)
	assert.Equal(t, defaultStaleBatch, sweeper.batch)

	sweeper.err = errors.New("gateway timeout")
	assert.Error(t, job.Run(context.Background()))
}

func TestOrderJobsRequireDependencies(t *testing.T) {
	_, err := NewCancelledOrderPurgeJob(CancelledOrderPurgeJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
	_, err = NewStalePendingJob(StalePendingJobParams{Orders: &fakeOrderSweeper{}})
	assert.Error(t, err)
}
