package scheduler

import (
	"context"
	"time"

	"custodia/internal/services"
)

// Default per-run deadlines. The nightly sync walks every asset against the
// provider, the broadcast is one batched quote call.
const (
	syncTimeout      = 10 * time.Minute
	broadcastTimeout = 30 * time.Second
)

type priceSyncJob struct {
	service services.PriceSyncServicer
}

// NewPriceSyncJob wraps the nightly daily-history sync as a scheduled job.
func NewPriceSyncJob(service services.PriceSyncServicer) Job {
	return &priceSyncJob{service: service}
}

func (j *priceSyncJob) Name() string { return "price_sync" }

func (j *priceSyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	_, err := j.service.SyncDailyHistory(ctx)
	return err
}

type broadcastJob struct {
	service services.PriceSyncServicer
}

// NewBroadcastJob wraps the live price broadcast tick as a scheduled job.
func NewBroadcastJob(service services.PriceSyncServicer) Job {
	return &broadcastJob{service: service}
}

func (j *broadcastJob) Name() string { return "live_broadcast" }

func (j *broadcastJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()

	_, err := j.service.BroadcastLivePrices(ctx)
	return err
}

type snapshotJob struct {
	service services.PerformanceServicer
}

// NewSnapshotJob wraps the daily portfolio metric recording as a scheduled
// job.
func NewSnapshotJob(service services.PerformanceServicer) Job {
	return &snapshotJob{service: service}
}

func (j *snapshotJob) Name() string { return "daily_snapshot" }

func (j *snapshotJob) Run() error {
	_, err := j.service.ComputeAndRecordDailyMetrics(time.Now())
	return err
}

type commissionJob struct {
	service services.CommissionServicer
}

// NewCommissionJob wraps the monthly commission generation as a scheduled
// job. Each run bills the previous calendar month.
func NewCommissionJob(service services.CommissionServicer) Job {
	return &commissionJob{service: service}
}

func (j *commissionJob) Name() string { return "monthly_commissions" }

func (j *commissionJob) Run() error {
	now := time.Now().UTC()
	periodEnd := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodStart := periodEnd.AddDate(0, -1, 0)

	_, err := j.service.GenerateMonthlyCommissions(periodStart, periodEnd)
	return err
}
