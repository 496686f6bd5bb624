package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"custodia/internal/models"
	"custodia/internal/pagination"
	"custodia/internal/performance"
	"custodia/internal/services"
)

type mockPriceSync struct {
	syncCalls      int
	broadcastCalls int
	err            error
}

func (m *mockPriceSync) SyncDailyHistory(ctx context.Context) (*services.SyncReport, error) {
	m.syncCalls++
	return &services.SyncReport{}, m.err
}

func (m *mockPriceSync) BroadcastLivePrices(ctx context.Context) (int, error) {
	m.broadcastCalls++
	return 0, m.err
}

type mockPerformance struct {
	recordedAt time.Time
}

func (m *mockPerformance) GetClientPerformance(string, *time.Time, *time.Time) (*services.PerformanceReport, error) {
	return nil, nil
}

func (m *mockPerformance) GetNetNewMoney(services.FlowQuery) ([]performance.FlowBucket, error) {
	return nil, nil
}

func (m *mockPerformance) ComputeAndRecordDailyMetrics(recordedAt time.Time) (int, error) {
	m.recordedAt = recordedAt
	return 0, nil
}

type mockCommissions struct {
	periodStart time.Time
	periodEnd   time.Time
}

func (m *mockCommissions) GetCommissions(pagination.PageRequest, services.CommissionFilter) (*pagination.PageResponse[models.Commission], error) {
	return nil, nil
}

func (m *mockCommissions) CreateCommission(services.CreateCommissionInput) (*models.Commission, error) {
	return nil, nil
}

func (m *mockCommissions) UpdateCommissionStatus(string, models.CommissionStatus) (*models.Commission, error) {
	return nil, nil
}

func (m *mockCommissions) GenerateMonthlyCommissions(periodStart, periodEnd time.Time) (int, error) {
	m.periodStart = periodStart
	m.periodEnd = periodEnd
	return 0, nil
}

func TestPriceSyncJob(t *testing.T) {
	t.Run("delegates_to_the_sync_service", func(t *testing.T) {
		mock := &mockPriceSync{}
		job := NewPriceSyncJob(mock)

		if job.Name() != "price_sync" {
			t.Errorf("unexpected job name %s", job.Name())
		}
		if err := job.Run(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if mock.syncCalls != 1 {
			t.Errorf("expected 1 sync call, got %d", mock.syncCalls)
		}
	})

	t.Run("surfaces_service_errors", func(t *testing.T) {
		mock := &mockPriceSync{err: errors.New("provider down")}
		job := NewPriceSyncJob(mock)

		if err := job.Run(); err == nil {
			t.Error("expected the service error to surface")
		}
	})
}

func TestBroadcastJob(t *testing.T) {
	mock := &mockPriceSync{}
	job := NewBroadcastJob(mock)

	if job.Name() != "live_broadcast" {
		t.Errorf("unexpected job name %s", job.Name())
	}
	if err := job.Run(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if mock.broadcastCalls != 1 {
		t.Errorf("expected 1 broadcast call, got %d", mock.broadcastCalls)
	}
}

func TestSnapshotJob(t *testing.T) {
	mock := &mockPerformance{}
	job := NewSnapshotJob(mock)

	if job.Name() != "daily_snapshot" {
		t.Errorf("unexpected job name %s", job.Name())
	}
	if err := job.Run(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if mock.recordedAt.IsZero() {
		t.Error("expected the recording timestamp to be passed")
	}
}

func TestCommissionJob(t *testing.T) {
	mock := &mockCommissions{}
	job := NewCommissionJob(mock)

	if job.Name() != "monthly_commissions" {
		t.Errorf("unexpected job name %s", job.Name())
	}
	if err := job.Run(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	now := time.Now().UTC()
	wantEnd := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if !mock.periodEnd.Equal(wantEnd) {
		t.Errorf("expected period end %v, got %v", wantEnd, mock.periodEnd)
	}
	if !mock.periodStart.Equal(wantEnd.AddDate(0, -1, 0)) {
		t.Errorf("expected period start one month earlier, got %v", mock.periodStart)
	}
}
