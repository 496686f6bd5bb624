package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"custodia/internal/performance"
	"custodia/internal/services"
	"custodia/internal/uuid"
)

// --- mock dashboard service ---

type mockDashboardService struct {
	getMetricsFn            func() (*services.DashboardMetrics, error)
	getTopAdvisorsFn        func(limit int) ([]services.TopAdvisor, error)
	getMonthlyPerformanceFn func(year int) ([]services.MonthlyPerformance, error)
	getAdvisorCommissionsFn func() ([]services.AdvisorCommissionDetail, error)
	getNetNewMoneyHistoryFn func(startDate, endDate *time.Time, granularity performance.Granularity) ([]performance.FlowBucket, error)
	getPortfolioSummaryFn   func() (*services.PortfolioSummary, error)
}

func (m *mockDashboardService) GetMetrics() (*services.DashboardMetrics, error) {
	if m.getMetricsFn != nil {
		return m.getMetricsFn()
	}
	return &services.DashboardMetrics{}, nil
}

func (m *mockDashboardService) GetTopAdvisors(limit int) ([]services.TopAdvisor, error) {
	if m.getTopAdvisorsFn != nil {
		return m.getTopAdvisorsFn(limit)
	}
	return []services.TopAdvisor{}, nil
}

func (m *mockDashboardService) GetMonthlyPerformance(year int) ([]services.MonthlyPerformance, error) {
	if m.getMonthlyPerformanceFn != nil {
		return m.getMonthlyPerformanceFn(year)
	}
	return []services.MonthlyPerformance{}, nil
}

func (m *mockDashboardService) GetAdvisorCommissions() ([]services.AdvisorCommissionDetail, error) {
	if m.getAdvisorCommissionsFn != nil {
		return m.getAdvisorCommissionsFn()
	}
	return []services.AdvisorCommissionDetail{}, nil
}

func (m *mockDashboardService) GetNetNewMoneyHistory(startDate, endDate *time.Time, granularity performance.Granularity) ([]performance.FlowBucket, error) {
	if m.getNetNewMoneyHistoryFn != nil {
		return m.getNetNewMoneyHistoryFn(startDate, endDate, granularity)
	}
	return []performance.FlowBucket{}, nil
}

func (m *mockDashboardService) GetPortfolioSummary() (*services.PortfolioSummary, error) {
	if m.getPortfolioSummaryFn != nil {
		return m.getPortfolioSummaryFn()
	}
	return &services.PortfolioSummary{}, nil
}

var _ services.DashboardServicer = (*mockDashboardService)(nil)

func setupDashboardRouter(handler *DashboardHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("/dashboard", injectUser(uuid.New()))
	auth.GET("/metrics", handler.GetMetrics)
	auth.GET("/top-advisors", handler.GetTopAdvisors)
	auth.GET("/monthly-performance", handler.GetMonthlyPerformance)
	auth.GET("/advisor-commissions", handler.GetAdvisorCommissions)
	auth.GET("/net-new-money", handler.GetNetNewMoneyHistory)
	auth.GET("/portfolio-summary", handler.GetPortfolioSummary)
	return r
}

// --- tests ---

func TestDashboardHandler_GetMetrics(t *testing.T) {
	svc := &mockDashboardService{
		getMetricsFn: func() (*services.DashboardMetrics, error) {
			return &services.DashboardMetrics{
				NNMCurrentWeek: decimal.NewFromInt(25000),
				AuCTotal:       decimal.NewFromInt(4500000),
				TotalAdvisors:  7,
			}, nil
		},
	}
	r := setupDashboardRouter(NewDashboardHandler(svc))

	rec := doRequest(r, "GET", "/dashboard/metrics", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	if result["nnm_current_week"] != "25000" {
		t.Errorf("expected weekly NNM 25000, got %v", result["nnm_current_week"])
	}
	if result["auc_total"] != "4500000" {
		t.Errorf("expected AuC 4500000, got %v", result["auc_total"])
	}
	if result["total_advisors"] != float64(7) {
		t.Errorf("expected 7 advisors, got %v", result["total_advisors"])
	}
}

func TestDashboardHandler_GetTopAdvisors(t *testing.T) {
	t.Run("passes the limit through", func(t *testing.T) {
		var gotLimit int
		svc := &mockDashboardService{
			getTopAdvisorsFn: func(limit int) ([]services.TopAdvisor, error) {
				gotLimit = limit
				return []services.TopAdvisor{
					{AdvisorName: "Ana Lima", Revenue: decimal.NewFromInt(12000)},
				}, nil
			},
		}
		r := setupDashboardRouter(NewDashboardHandler(svc))

		rec := doRequest(r, "GET", "/dashboard/top-advisors?limit=3", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotLimit != 3 {
			t.Errorf("expected limit 3, got %d", gotLimit)
		}
		result := parseJSON(t, rec)
		advisors := result["advisors"].([]interface{})
		if len(advisors) != 1 {
			t.Fatalf("expected 1 row, got %d", len(advisors))
		}
	})

	t.Run("rejects non-positive limits", func(t *testing.T) {
		r := setupDashboardRouter(NewDashboardHandler(&mockDashboardService{}))

		rec := doRequest(r, "GET", "/dashboard/top-advisors?limit=0", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestDashboardHandler_GetMonthlyPerformance(t *testing.T) {
	t.Run("passes the year through", func(t *testing.T) {
		var gotYear int
		svc := &mockDashboardService{
			getMonthlyPerformanceFn: func(year int) ([]services.MonthlyPerformance, error) {
				gotYear = year
				return []services.MonthlyPerformance{
					{Month: "2025-03", NNMValue: decimal.NewFromInt(8000)},
				}, nil
			},
		}
		r := setupDashboardRouter(NewDashboardHandler(svc))

		rec := doRequest(r, "GET", "/dashboard/monthly-performance?year=2025", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotYear != 2025 {
			t.Errorf("expected year 2025, got %d", gotYear)
		}
		result := parseJSON(t, rec)
		months := result["months"].([]interface{})
		month := months[0].(map[string]interface{})
		if month["month"] != "2025-03" {
			t.Errorf("expected month label 2025-03, got %v", month["month"])
		}
	})

	t.Run("rejects years before 1900", func(t *testing.T) {
		r := setupDashboardRouter(NewDashboardHandler(&mockDashboardService{}))

		rec := doRequest(r, "GET", "/dashboard/monthly-performance?year=99", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestDashboardHandler_GetAdvisorCommissions(t *testing.T) {
	svc := &mockDashboardService{
		getAdvisorCommissionsFn: func() ([]services.AdvisorCommissionDetail, error) {
			return []services.AdvisorCommissionDetail{
				{AdvisorName: "Ana Lima", NetCommission: decimal.NewFromInt(850), Status: "above_target"},
			}, nil
		},
	}
	r := setupDashboardRouter(NewDashboardHandler(svc))

	rec := doRequest(r, "GET", "/dashboard/advisor-commissions", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	result := parseJSON(t, rec)
	advisors := result["advisors"].([]interface{})
	row := advisors[0].(map[string]interface{})
	if row["net_commission"] != "850" {
		t.Errorf("expected net commission 850, got %v", row["net_commission"])
	}
	if row["status"] != "above_target" {
		t.Errorf("expected status above_target, got %v", row["status"])
	}
}

func TestDashboardHandler_GetNetNewMoneyHistory(t *testing.T) {
	t.Run("passes the window and granularity through", func(t *testing.T) {
		var gotGranularity performance.Granularity
		var gotStart *time.Time
		svc := &mockDashboardService{
			getNetNewMoneyHistoryFn: func(startDate, _ *time.Time, granularity performance.Granularity) ([]performance.FlowBucket, error) {
				gotStart = startDate
				gotGranularity = granularity
				return []performance.FlowBucket{}, nil
			},
		}
		r := setupDashboardRouter(NewDashboardHandler(svc))

		rec := doRequest(r, "GET", "/dashboard/net-new-money?granularity=day&start_date=2026-08-01", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotGranularity != performance.GranularityDay {
			t.Errorf("expected day granularity, got %q", gotGranularity)
		}
		if gotStart == nil || gotStart.Format("2006-01-02") != "2026-08-01" {
			t.Errorf("expected start date, got %v", gotStart)
		}
	})

	t.Run("rejects unknown granularities", func(t *testing.T) {
		r := setupDashboardRouter(NewDashboardHandler(&mockDashboardService{}))

		rec := doRequest(r, "GET", "/dashboard/net-new-money?granularity=quarter", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestDashboardHandler_GetPortfolioSummary(t *testing.T) {
	svc := &mockDashboardService{
		getPortfolioSummaryFn: func() (*services.PortfolioSummary, error) {
			return &services.PortfolioSummary{
				TotalClients:   12,
				TotalAssets:    30,
				TotalPositions: 85,
				TotalAuC:       decimal.NewFromInt(4500000),
				Timestamp:      time.Now(),
			}, nil
		},
	}
	r := setupDashboardRouter(NewDashboardHandler(svc))

	rec := doRequest(r, "GET", "/dashboard/portfolio-summary", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	result := parseJSON(t, rec)
	if result["total_positions"] != float64(85) {
		t.Errorf("expected 85 positions, got %v", result["total_positions"])
	}
	if result["total_auc"] != "4500000" {
		t.Errorf("expected AuC 4500000, got %v", result["total_auc"])
	}
}
