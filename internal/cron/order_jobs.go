package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultCancelledRetention = 10 * 24 * time.Hour
	defaultPendingTTL         = 48 * time.Hour
	defaultPurgeBatch         = 500
	defaultStaleBatch         = 100
)

type cancelledOrderPurger interface {
	PurgeCancelled(ctx context.Context, retention time.Duration, batchSize int) (int64, error)
}

type stalePendingReconciler interface {
	ReconcileStalePending(ctx context.Context, ttl time.Duration, batchSize int) (orders.StaleSweepResult, error)
}

// CancelledOrderPurgeJobParams configure the cancelled order reaper.
type CancelledOrderPurgeJobParams struct {
	Logger    *logger.Logger
	Orders    cancelledOrderPurger
	Retention time.Duration
	BatchSize int
}

// NewCancelledOrderPurgeJob builds the job that deletes cancelled orders once
// their retention window has passed.
func NewCancelledOrderPurgeJob(params CancelledOrderPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultCancelledRetention
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPurgeBatch
	}
	return &cancelledOrderPurgeJob{
		logg:      params.Logger,
		orders:    params.Orders,
		retention: retention,
		batch:     batch,
	}, nil
}

type cancelledOrderPurgeJob struct {
	logg      *logger.Logger
	orders    cancelledOrderPurger
	retention time.Duration
	batch     int
}

func (j *cancelledOrderPurgeJob) Name() string { return "cancelled-order-purge" }

func (j *cancelledOrderPurgeJob) Run(ctx context.Context) error {
	deleted, err := j.orders.PurgeCancelled(ctx, j.retention, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"retention_hours": j.retention.Hours(),
		"rows_deleted":    deleted,
	})
	if err != nil {
		return fmt.Errorf("purge cancelled orders: %w", err)
	}
	j.logg.Info(logCtx, "cancelled order purge complete")
	return nil
}

// StalePendingJobParams configure the stale card order sweep.
type StalePendingJobParams struct {
	Logger    *logger.Logger
	Orders    stalePendingReconciler
	TTL       time.Duration
	BatchSize int
}

// NewStalePendingJob builds the job that settles or cancels card orders whose
// payment never completed.
func NewStalePendingJob(params StalePendingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	return &stalePendingJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
	}, nil
}

type stalePendingJob struct {
	logg   *logger.Logger
	orders stalePendingReconciler
	ttl    time.Duration
	batch  int
}

func (j *stalePendingJob) Name() string { return "stale-pending-orders" }

func (j *stalePendingJob) Run(ctx context.Context) error {
	result, err := j.orders.ReconcileStalePending(ctx, j.ttl, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"examined":  result.Examined,
		"confirmed": result.Confirmed,
		"cancelled": result.Cancelled,
		"failed":    result.Failed,
	})
	if err != nil {
		j.logg.Warn(logCtx, "stale pending sweep finished with failures")
		return fmt.Errorf("reconcile stale pending orders: %w", err)
	}
	j.logg.Info(logCtx, "stale pending sweep complete")
	return nil
}
