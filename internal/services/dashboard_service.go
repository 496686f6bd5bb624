package services

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "custodia/internal/errors"
	"custodia/internal/models"
	"custodia/internal/performance"
)

var oneHundred = decimal.NewFromInt(100)

// commissionTargetNet is the monthly net commission an advisor must exceed
// for a "met" status on the commission detail.
var commissionTargetNet = decimal.NewFromInt(1000)

const (
	defaultTopAdvisors = 5

	commissionStatusMet    = "met"
	commissionStatusMissed = "missed"
)

type dashboardService struct {
	db    *gorm.DB
	flows PerformanceServicer
}

// NewDashboardService creates a new dashboard service instance.
func NewDashboardService(db *gorm.DB, flows PerformanceServicer) DashboardServicer {
	return &dashboardService{db: db, flows: flows}
}

// GetMetrics assembles the headline dashboard block. Every change field is a
// real percentage delta against the preceding window of the same length,
// zero when that window had no activity.
func (s *dashboardService) GetMetrics() (*DashboardMetrics, error) {
	now := time.Now()
	monthStart := startOfMonth(now)
	lastMonthStart := startOfMonth(monthStart.AddDate(0, 0, -1))
	monthBeforeLastStart := startOfMonth(lastMonthStart.AddDate(0, 0, -1))
	weekStart := now.AddDate(0, 0, -7)
	semStart := semesterStart(now)

	metrics := &DashboardMetrics{}
	var err error

	if metrics.NNMCurrentWeek, metrics.NNMCurrentWeekChange, err = s.netFlowWithChange(weekStart, now); err != nil {
		return nil, err
	}
	if metrics.NNMSemester, metrics.NNMSemesterChange, err = s.netFlowWithChange(semStart, now); err != nil {
		return nil, err
	}
	if metrics.NNMMonthly, metrics.NNMMonthlyChange, err = s.netFlowWithChange(monthStart, now); err != nil {
		return nil, err
	}

	auc, err := assetsUnderCustody(s.db)
	if err != nil {
		return nil, err
	}
	metrics.AuCTotal = auc
	metrics.AuCEndPeriod = auc

	aucStart, err := s.investedBefore(monthStart)
	if err != nil {
		return nil, err
	}
	metrics.AuCStartPeriod = aucStart
	if aucStart.IsPositive() {
		metrics.AuCVariation = auc.Sub(aucStart).Div(aucStart).Mul(oneHundred)
	} else {
		metrics.AuCVariation = decimal.Zero
	}

	if metrics.TotalRevenueMonth, metrics.TotalRevenueChange, err = s.commissionSumWithChange("gross_revenue", monthStart, now); err != nil {
		return nil, err
	}

	err = s.db.Model(&models.Advisor{}).
		Where("state = ?", models.LifecycleActive).
		Count(&metrics.TotalAdvisors).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if metrics.GrossCommissionWeek, metrics.GrossCommissionChange, err = s.commissionSumWithChange("commission_amount", weekStart, now); err != nil {
		return nil, err
	}

	// The net commission card reports the last full month.
	lastMonthNet, err := s.sumCommissions("net_commission", lastMonthStart, monthStart)
	if err != nil {
		return nil, err
	}
	priorNet, err := s.sumCommissions("net_commission", monthBeforeLastStart, lastMonthStart)
	if err != nil {
		return nil, err
	}
	metrics.NetCommissionMonth = lastMonthNet
	metrics.NetCommissionChange = percentDelta(lastMonthNet, priorNet)

	if metrics.TotalCommission, metrics.TotalCommissionChange, err = s.commissionSumWithChange("commission_amount", monthStart, now); err != nil {
		return nil, err
	}

	return metrics, nil
}

// GetTopAdvisors ranks active advisors by lifetime gross revenue. The
// revenue share divisor is the house total; with no revenue at all every
// share is zero.
func (s *dashboardService) GetTopAdvisors(limit int) ([]TopAdvisor, error) {
	if limit <= 0 {
		limit = defaultTopAdvisors
	}

	var rows []struct {
		AdvisorID   string
		AdvisorName string
		Revenue     decimal.Decimal
	}
	err := s.db.Model(&models.Advisor{}).
		Select("advisors.id AS advisor_id, advisors.name AS advisor_name, " +
			"COALESCE(SUM(commissions.gross_revenue), 0) AS revenue").
		Joins("LEFT JOIN commissions ON commissions.advisor_id = advisors.id").
		Where("advisors.state = ?", models.LifecycleActive).
		Group("advisors.id, advisors.name").
		Order("revenue DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(rows) == 0 {
		return []TopAdvisor{}, nil
	}

	var totalRevenue decimal.NullDecimal
	err = s.db.Model(&models.Commission{}).
		Select("SUM(gross_revenue)").
		Scan(&totalRevenue).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].AdvisorID
	}

	clientCounts, err := s.clientCountsByAdvisor(ids)
	if err != nil {
		return nil, err
	}
	inflows, err := s.groupedSum(s.db.Model(&models.Allocation{}).
		Select("clients.advisor_id AS key, COALESCE(SUM(allocations.total_invested), 0) AS total").
		Joins("JOIN clients ON clients.id = allocations.client_id").
		Where("clients.advisor_id IN ?", ids).
		Group("clients.advisor_id"))
	if err != nil {
		return nil, err
	}
	outflows, err := s.groupedSum(s.db.Model(&models.Allocation{}).
		Select("clients.advisor_id AS key, COALESCE(SUM(allocations.quantity * allocations.exit_price), 0) AS total").
		Joins("JOIN clients ON clients.id = allocations.client_id").
		Where("clients.advisor_id IN ? AND allocations.is_active = ? AND allocations.exit_date IS NOT NULL", ids, false).
		Group("clients.advisor_id"))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	monthStart := startOfMonth(now)
	lastMonthStart := startOfMonth(monthStart.AddDate(0, 0, -1))
	currentRevenue, err := s.revenueByAdvisor(ids, monthStart, now)
	if err != nil {
		return nil, err
	}
	previousRevenue, err := s.revenueByAdvisor(ids, lastMonthStart, monthStart)
	if err != nil {
		return nil, err
	}

	result := make([]TopAdvisor, 0, len(rows))
	for _, row := range rows {
		share := decimal.Zero
		if totalRevenue.Valid && totalRevenue.Decimal.IsPositive() {
			share = row.Revenue.Div(totalRevenue.Decimal).Mul(oneHundred)
		}

		result = append(result, TopAdvisor{
			AdvisorID:         row.AdvisorID,
			AdvisorName:       row.AdvisorName,
			Revenue:           row.Revenue,
			RevenuePercentage: share,
			NetNewMoney:       inflows[row.AdvisorID].Sub(outflows[row.AdvisorID]),
			ClientsCount:      clientCounts[row.AdvisorID],
			ChangePercent:     percentDelta(currentRevenue[row.AdvisorID], previousRevenue[row.AdvisorID]),
		})
	}

	return result, nil
}

// GetMonthlyPerformance returns twelve month buckets of net flow, revenue,
// commission and end-of-month custody for the chart views. A non-positive
// year means the current one.
func (s *dashboardService) GetMonthlyPerformance(year int) ([]MonthlyPerformance, error) {
	if year <= 0 {
		year = time.Now().Year()
	}

	months := make([]MonthlyPerformance, 0, 12)
	for m := time.January; m <= time.December; m++ {
		monthStart := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, 0)

		nnm, err := s.netFlowBetween(monthStart, monthEnd)
		if err != nil {
			return nil, err
		}
		revenue, err := s.sumCommissions("gross_revenue", monthStart, monthEnd)
		if err != nil {
			return nil, err
		}
		commission, err := s.sumCommissions("commission_amount", monthStart, monthEnd)
		if err != nil {
			return nil, err
		}
		auc, err := assetsUnderCustody(s.db, func(db *gorm.DB) *gorm.DB {
			return db.Where("allocations.purchase_date < ?", monthEnd)
		})
		if err != nil {
			return nil, err
		}

		months = append(months, MonthlyPerformance{
			Month:           m.String()[:3],
			NNMValue:        nnm,
			RevenueValue:    revenue,
			CommissionValue: commission,
			AuCValue:        auc,
		})
	}

	return months, nil
}

// GetAdvisorCommissions details each active advisor's commissions for the
// running month, ranked by net commission.
func (s *dashboardService) GetAdvisorCommissions() ([]AdvisorCommissionDetail, error) {
	now := time.Now()
	monthStart := startOfMonth(now)
	lastMonthStart := startOfMonth(monthStart.AddDate(0, 0, -1))

	var rows []struct {
		AdvisorID       string
		AdvisorName     string
		GrossCommission decimal.Decimal
		NetCommission   decimal.Decimal
		AvgRate         decimal.NullDecimal
	}
	err := s.db.Model(&models.Commission{}).
		Select("advisors.id AS advisor_id, advisors.name AS advisor_name, "+
			"COALESCE(SUM(commissions.commission_amount), 0) AS gross_commission, "+
			"COALESCE(SUM(commissions.net_commission), 0) AS net_commission, "+
			"AVG(commissions.commission_rate * 100) AS avg_rate").
		Joins("JOIN advisors ON advisors.id = commissions.advisor_id").
		Where("advisors.state = ? AND commissions.period_start >= ?", models.LifecycleActive, monthStart).
		Group("advisors.id, advisors.name").
		Order("net_commission DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(rows) == 0 {
		return []AdvisorCommissionDetail{}, nil
	}

	previousNet, err := s.groupedSum(s.db.Model(&models.Commission{}).
		Select("advisor_id AS key, COALESCE(SUM(net_commission), 0) AS total").
		Where("period_start >= ? AND period_start < ?", lastMonthStart, monthStart).
		Group("advisor_id"))
	if err != nil {
		return nil, err
	}

	result := make([]AdvisorCommissionDetail, 0, len(rows))
	for _, row := range rows {
		rate := defaultCommissionRate.Mul(oneHundred)
		if row.AvgRate.Valid {
			rate = row.AvgRate.Decimal
		}

		status := commissionStatusMissed
		if row.NetCommission.GreaterThan(commissionTargetNet) {
			status = commissionStatusMet
		}

		result = append(result, AdvisorCommissionDetail{
			AdvisorID:            row.AdvisorID,
			AdvisorName:          row.AdvisorName,
			NetCommission:        row.NetCommission,
			GrossCommission:      row.GrossCommission,
			CommissionPercentage: rate,
			MonthOverMonthChange: percentDelta(row.NetCommission, previousNet[row.AdvisorID]),
			Status:               status,
		})
	}

	return result, nil
}

// GetNetNewMoneyHistory returns the whole-book flow buckets for the
// dashboard chart.
func (s *dashboardService) GetNetNewMoneyHistory(startDate, endDate *time.Time, granularity performance.Granularity) ([]performance.FlowBucket, error) {
	return s.flows.GetNetNewMoney(FlowQuery{
		StartDate:   startDate,
		EndDate:     endDate,
		Granularity: granularity,
	})
}

// GetPortfolioSummary returns the overview card counters.
func (s *dashboardService) GetPortfolioSummary() (*PortfolioSummary, error) {
	summary := &PortfolioSummary{Timestamp: time.Now()}

	err := s.db.Model(&models.Client{}).
		Where("lifecycle_state = ?", models.LifecycleActive).
		Count(&summary.TotalClients).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	err = s.db.Model(&models.Allocation{}).
		Where("is_active = ?", true).
		Distinct("asset_id").
		Count(&summary.TotalAssets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	err = s.db.Model(&models.Allocation{}).
		Where("is_active = ?", true).
		Count(&summary.TotalPositions).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	auc, err := assetsUnderCustody(s.db)
	if err != nil {
		return nil, err
	}
	summary.TotalAuC = auc

	return summary, nil
}

// netFlowBetween is inflows minus outflows over a half-open window: invested
// amounts by purchase date against exit proceeds by exit date.
func (s *dashboardService) netFlowBetween(start, end time.Time) (decimal.Decimal, error) {
	var inflows decimal.NullDecimal
	err := s.db.Model(&models.Allocation{}).
		Where("purchase_date >= ? AND purchase_date < ?", start, end).
		Select("SUM(total_invested)").
		Scan(&inflows).Error
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var outflows decimal.NullDecimal
	err = s.db.Model(&models.Allocation{}).
		Where("is_active = ? AND exit_date >= ? AND exit_date < ?", false, start, end).
		Select("SUM(quantity * exit_price)").
		Scan(&outflows).Error
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	net := decimal.Zero
	if inflows.Valid {
		net = inflows.Decimal
	}
	if outflows.Valid {
		net = net.Sub(outflows.Decimal)
	}
	return net, nil
}

// netFlowWithChange pairs a window's net flow with its delta against the
// preceding window of equal length.
func (s *dashboardService) netFlowWithChange(start, end time.Time) (decimal.Decimal, decimal.Decimal, error) {
	current, err := s.netFlowBetween(start, end)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	previous, err := s.netFlowBetween(start.Add(-end.Sub(start)), start)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return current, percentDelta(current, previous), nil
}

// sumCommissions totals one commission column over a half-open period_start
// window. The column is always a compile-time constant at the call sites.
func (s *dashboardService) sumCommissions(column string, start, end time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := s.db.Model(&models.Commission{}).
		Where("period_start >= ? AND period_start < ?", start, end).
		Select("SUM(" + column + ")").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (s *dashboardService) commissionSumWithChange(column string, start, end time.Time) (decimal.Decimal, decimal.Decimal, error) {
	current, err := s.sumCommissions(column, start, end)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	previous, err := s.sumCommissions(column, start.Add(-end.Sub(start)), start)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return current, percentDelta(current, previous), nil
}

// groupedSum runs a "key, total" aggregate query into a map.
func (s *dashboardService) groupedSum(query *gorm.DB) (map[string]decimal.Decimal, error) {
	var rows []struct {
		Key   string
		Total decimal.Decimal
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Total
	}
	return out, nil
}

func (s *dashboardService) clientCountsByAdvisor(ids []string) (map[string]int64, error) {
	var rows []struct {
		Key   string
		Total int64
	}
	err := s.db.Model(&models.Client{}).
		Select("advisor_id AS key, COUNT(*) AS total").
		Where("advisor_id IN ?", ids).
		Group("advisor_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Total
	}
	return out, nil
}

func (s *dashboardService) revenueByAdvisor(ids []string, start, end time.Time) (map[string]decimal.Decimal, error) {
	return s.groupedSum(s.db.Model(&models.Commission{}).
		Select("advisor_id AS key, COALESCE(SUM(gross_revenue), 0) AS total").
		Where("advisor_id IN ? AND period_start >= ? AND period_start < ?", ids, start, end).
		Group("advisor_id"))
}

// investedBefore is the cost basis of the open positions purchased before
// the cutoff, the dashboard's start-of-period custody figure.
func (s *dashboardService) investedBefore(cutoff time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := s.db.Model(&models.Allocation{}).
		Where("is_active = ? AND purchase_date < ?", true, cutoff).
		Select("SUM(total_invested)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// assetsUnderCustody sums quantity times the coalesced price (current price
// when known, else purchase price) over open allocations. Optional scopes
// narrow the set, e.g. to one advisor's book or a purchase-date cutoff.
func assetsUnderCustody(db *gorm.DB, scopes ...func(*gorm.DB) *gorm.DB) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := db.Model(&models.Allocation{}).
		Joins("JOIN assets ON assets.id = allocations.asset_id").
		Where("allocations.is_active = ?", true).
		Scopes(scopes...).
		Select("SUM(allocations.quantity * COALESCE(assets.current_price, allocations.purchase_price))").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// percentDelta is the relative change between two window values as a
// percentage. A zero prior window yields zero; the divisor is the prior
// value's magnitude so the sign of the delta follows the direction of the
// move even across negative flows.
func percentDelta(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous.Abs()).Mul(oneHundred)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// semesterStart is July 1st in the second half of the year, January 1st in
// the first.
func semesterStart(t time.Time) time.Time {
	month := time.January
	if t.Month() >= time.July {
		month = time.July
	}
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, t.Location())
}
