package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "custodia/internal/errors"
	"custodia/internal/models"
	"custodia/internal/performance"
)

type performanceService struct {
	db      *gorm.DB
	clients ClientServicer
}

// NewPerformanceService creates a new performance service instance.
func NewPerformanceService(db *gorm.DB, clients ClientServicer) PerformanceServicer {
	return &performanceService{db: db, clients: clients}
}

// GetClientPerformance reconstructs a client's portfolio value over the
// window and derives returns from it. Nil dates default to the trailing
// year. Clients without bar data in the window get a zero report, not an
// error.
func (s *performanceService) GetClientPerformance(clientID string, startDate, endDate *time.Time) (*PerformanceReport, error) {
	if _, err := s.clients.GetClientByID(clientID); err != nil {
		return nil, err
	}

	end := time.Now()
	if endDate != nil {
		end = *endDate
	}
	start := end.AddDate(-1, 0, 0)
	if startDate != nil {
		start = *startDate
	}
	if start.After(end) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Start date must not be after end date")
	}

	// Positions held at any point inside the window.
	var allocations []models.Allocation
	err := s.db.
		Where("client_id = ? AND purchase_date <= ? AND (exit_date >= ? OR exit_date IS NULL)",
			clientID, end, start).
		Find(&allocations).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	report := &PerformanceReport{
		StartDate:    start,
		EndDate:      end,
		DailyReturns: []performance.DailyReturn{},
	}
	if len(allocations) == 0 {
		return report, nil
	}

	assetIDs := make([]string, 0, len(allocations))
	seen := make(map[string]struct{}, len(allocations))
	for i := range allocations {
		if _, ok := seen[allocations[i].AssetID]; ok {
			continue
		}
		seen[allocations[i].AssetID] = struct{}{}
		assetIDs = append(assetIDs, allocations[i].AssetID)
	}

	var bars []models.PriceBar
	err = s.db.
		Where("asset_id IN ? AND date >= ? AND date <= ?", assetIDs, start, end).
		Order("date asc").
		Find(&bars).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	series := performance.BuildSeries(allocations, bars)
	daily := performance.DailyReturns(series)
	if daily == nil {
		daily = []performance.DailyReturn{}
	}

	report.StartValue = series.StartValue
	report.EndValue = series.EndValue
	report.TimeWeightedReturn = performance.TimeWeightedReturn(daily)
	report.MoneyWeightedReturn = performance.InternalRateOfReturn(nil)
	report.SimpleReturn = performance.SimpleReturn(series.StartValue, series.EndValue)
	report.DailyReturns = daily

	return report, nil
}

// GetNetNewMoney aggregates cash flows into period buckets for one client,
// one advisor's book, or the whole house. Only events inside the window
// count: an exit outside it is ignored while the purchase may still
// contribute, and vice versa.
func (s *performanceService) GetNetNewMoney(query FlowQuery) ([]performance.FlowBucket, error) {
	if query.ClientID != nil && query.AdvisorID != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Client and advisor scopes are mutually exclusive")
	}

	granularity := query.Granularity
	if granularity == "" {
		granularity = performance.GranularityMonth
	}
	switch granularity {
	case performance.GranularityDay, performance.GranularityWeek, performance.GranularityMonth:
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Granularity must be day, week or month")
	}

	end := time.Now()
	if query.EndDate != nil {
		end = *query.EndDate
	}
	start := end.AddDate(-1, 0, 0)
	if query.StartDate != nil {
		start = *query.StartDate
	}
	if start.After(end) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Start date must not be after end date")
	}

	scope := s.db.Model(&models.Allocation{})
	if query.ClientID != nil {
		if _, err := s.clients.GetClientByID(*query.ClientID); err != nil {
			return nil, err
		}
		scope = scope.Where("client_id = ?", *query.ClientID)
	}
	if query.AdvisorID != nil {
		var count int64
		if err := s.db.Model(&models.Advisor{}).Where("id = ?", *query.AdvisorID).Count(&count).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count == 0 {
			return nil, apperrors.ErrAdvisorNotFound
		}
		scope = scope.
			Joins("JOIN clients ON clients.id = allocations.client_id").
			Where("clients.advisor_id = ?", *query.AdvisorID)
	}

	// Allocations with at least one event inside the window: purchased in
	// range, or closed in range after an earlier purchase.
	var allocations []models.Allocation
	err := scope.
		Where("purchase_date <= ?", end).
		Where("purchase_date >= ? OR (is_active = ? AND exit_date >= ? AND exit_date <= ?)",
			start, false, start, end).
		Find(&allocations).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	// Exits after the window end must not show up as outflows.
	for i := range allocations {
		if allocations[i].ExitDate != nil && allocations[i].ExitDate.After(end) {
			allocations[i].IsActive = true
			allocations[i].ExitDate = nil
		}
	}

	buckets := performance.NetNewMoney(allocations, granularity)

	// Purchases before the window start land in buckets before it; drop
	// those and restart the running net at the first kept bucket.
	windowStart := performance.BucketStart(start, granularity)
	kept := buckets[:0]
	cumulative := decimal.Zero
	for _, bucket := range buckets {
		if bucket.Period.Before(windowStart) {
			continue
		}
		cumulative = cumulative.Add(bucket.NetFlow)
		bucket.CumulativeNet = cumulative
		kept = append(kept, bucket)
	}

	return kept, nil
}

// ComputeAndRecordDailyMetrics values every active client's portfolio and
// upserts one daily metric row per client for the given date. Returns how
// many clients were recorded.
func (s *performanceService) ComputeAndRecordDailyMetrics(recordedAt time.Time) (int, error) {
	var clientIDs []string
	err := s.db.Model(&models.Client{}).
		Where("lifecycle_state = ?", models.LifecycleActive).
		Pluck("id", &clientIDs).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	periodDate := time.Date(recordedAt.Year(), recordedAt.Month(), recordedAt.Day(), 0, 0, 0, 0, time.UTC)
	recorded := 0

	for _, clientID := range clientIDs {
		portfolio, err := s.clients.GetClientPortfolio(clientID)
		if err != nil {
			return recorded, err
		}

		metric := models.PerformanceMetric{
			ClientID:             clientID,
			PeriodType:           models.MetricDaily,
			PeriodDate:           periodDate,
			TotalInvested:        portfolio.TotalInvested,
			CurrentValue:         portfolio.CurrentValue,
			TotalGainLoss:        portfolio.TotalGainLoss,
			TotalGainLossPercent: portfolio.TotalGainLossPercent,
			ActivePositions:      portfolio.ActivePositions,
			CalculatedAt:         recordedAt,
		}

		var existing models.PerformanceMetric
		err = s.db.
			Where("client_id = ? AND period_type = ? AND period_date = ?",
				clientID, models.MetricDaily, periodDate).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := s.db.Create(&metric).Error; err != nil {
				return recorded, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		case err != nil:
			return recorded, apperrors.Wrap(apperrors.ErrInternalServer, err)
		default:
			updates := map[string]interface{}{
				"total_invested":          metric.TotalInvested,
				"current_value":           metric.CurrentValue,
				"total_gain_loss":         metric.TotalGainLoss,
				"total_gain_loss_percent": metric.TotalGainLossPercent,
				"active_positions":        metric.ActivePositions,
				"calculated_at":           metric.CalculatedAt,
			}
			if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
				return recorded, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		recorded++
	}

	return recorded, nil
}
