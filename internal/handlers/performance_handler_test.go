package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "custodia/internal/errors"
	"custodia/internal/performance"
	"custodia/internal/services"
	"custodia/internal/uuid"
)

// --- mock performance service ---

type mockPerformanceService struct {
	getClientPerformanceFn         func(clientID string, startDate, endDate *time.Time) (*services.PerformanceReport, error)
	getNetNewMoneyFn               func(query services.FlowQuery) ([]performance.FlowBucket, error)
	computeAndRecordDailyMetricsFn func(recordedAt time.Time) (int, error)
}

func (m *mockPerformanceService) GetClientPerformance(clientID string, startDate, endDate *time.Time) (*services.PerformanceReport, error) {
	if m.getClientPerformanceFn != nil {
		return m.getClientPerformanceFn(clientID, startDate, endDate)
	}
	return &services.PerformanceReport{}, nil
}

func (m *mockPerformanceService) GetNetNewMoney(query services.FlowQuery) ([]performance.FlowBucket, error) {
	if m.getNetNewMoneyFn != nil {
		return m.getNetNewMoneyFn(query)
	}
	return []performance.FlowBucket{}, nil
}

func (m *mockPerformanceService) ComputeAndRecordDailyMetrics(recordedAt time.Time) (int, error) {
	if m.computeAndRecordDailyMetricsFn != nil {
		return m.computeAndRecordDailyMetricsFn(recordedAt)
	}
	return 0, nil
}

var _ services.PerformanceServicer = (*mockPerformanceService)(nil)

func setupPerformanceRouter(handler *PerformanceHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUser(uuid.New()))
	auth.GET("/clients/:id/performance", handler.GetClientPerformance)
	auth.GET("/performance/net-new-money", handler.GetNetNewMoney)
	return r
}

// --- tests ---

func TestPerformanceHandler_GetClientPerformance(t *testing.T) {
	t.Run("returns the report for a date window", func(t *testing.T) {
		clientID := uuid.New()
		var gotStart, gotEnd *time.Time
		svc := &mockPerformanceService{
			getClientPerformanceFn: func(id string, startDate, endDate *time.Time) (*services.PerformanceReport, error) {
				if id != clientID {
					t.Errorf("expected client %s, got %s", clientID, id)
				}
				gotStart, gotEnd = startDate, endDate
				return &services.PerformanceReport{
					StartValue:         decimal.NewFromInt(100000),
					EndValue:           decimal.NewFromInt(112500),
					TimeWeightedReturn: 0.125,
					SimpleReturn:       decimal.RequireFromString("0.125"),
				}, nil
			},
		}
		r := setupPerformanceRouter(NewPerformanceHandler(svc))

		rec := doRequest(r, "GET", "/clients/"+clientID+"/performance?start_date=2026-01-01&end_date=2026-06-30", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotStart == nil || gotStart.Format("2006-01-02") != "2026-01-01" {
			t.Errorf("expected start date to reach the service, got %v", gotStart)
		}
		if gotEnd == nil || gotEnd.Format("2006-01-02") != "2026-06-30" {
			t.Errorf("expected end date to reach the service, got %v", gotEnd)
		}
		result := parseJSON(t, rec)
		if result["time_weighted_return"] != 0.125 {
			t.Errorf("expected TWR 0.125, got %v", result["time_weighted_return"])
		}
		if result["end_value"] != "112500" {
			t.Errorf("expected end value 112500, got %v", result["end_value"])
		}
	})

	t.Run("defaults to the full history when dates are omitted", func(t *testing.T) {
		called := false
		svc := &mockPerformanceService{
			getClientPerformanceFn: func(_ string, startDate, endDate *time.Time) (*services.PerformanceReport, error) {
				called = true
				if startDate != nil || endDate != nil {
					t.Errorf("expected nil dates, got %v / %v", startDate, endDate)
				}
				return &services.PerformanceReport{}, nil
			},
		}
		r := setupPerformanceRouter(NewPerformanceHandler(svc))

		rec := doRequest(r, "GET", "/clients/"+uuid.New()+"/performance", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !called {
			t.Error("expected the service to be called")
		}
	})

	t.Run("rejects malformed dates", func(t *testing.T) {
		r := setupPerformanceRouter(NewPerformanceHandler(&mockPerformanceService{}))

		rec := doRequest(r, "GET", "/clients/"+uuid.New()+"/performance?start_date=June+1st", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("propagates unknown clients", func(t *testing.T) {
		svc := &mockPerformanceService{
			getClientPerformanceFn: func(_ string, _, _ *time.Time) (*services.PerformanceReport, error) {
				return nil, apperrors.ErrClientNotFound
			},
		}
		r := setupPerformanceRouter(NewPerformanceHandler(svc))

		rec := doRequest(r, "GET", "/clients/"+uuid.New()+"/performance", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "CLIENT_NOT_FOUND")
	})
}

func TestPerformanceHandler_GetNetNewMoney(t *testing.T) {
	t.Run("scopes the query and returns buckets", func(t *testing.T) {
		advisorID := uuid.New()
		var gotQuery services.FlowQuery
		svc := &mockPerformanceService{
			getNetNewMoneyFn: func(query services.FlowQuery) ([]performance.FlowBucket, error) {
				gotQuery = query
				return []performance.FlowBucket{
					{
						Period:        time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
						Inflows:       decimal.NewFromInt(5000),
						Outflows:      decimal.NewFromInt(1000),
						NetFlow:       decimal.NewFromInt(4000),
						CumulativeNet: decimal.NewFromInt(4000),
					},
				}, nil
			},
		}
		r := setupPerformanceRouter(NewPerformanceHandler(svc))

		rec := doRequest(r, "GET",
			"/performance/net-new-money?advisor_id="+advisorID+"&granularity=week&start_date=2026-07-01", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotQuery.AdvisorID == nil || *gotQuery.AdvisorID != advisorID {
			t.Errorf("expected advisor scope, got %v", gotQuery.AdvisorID)
		}
		if gotQuery.ClientID != nil {
			t.Errorf("expected no client scope, got %v", gotQuery.ClientID)
		}
		if gotQuery.Granularity != performance.GranularityWeek {
			t.Errorf("expected week granularity, got %q", gotQuery.Granularity)
		}
		if gotQuery.StartDate == nil || gotQuery.StartDate.Format("2006-01-02") != "2026-07-01" {
			t.Errorf("expected start date, got %v", gotQuery.StartDate)
		}
		result := parseJSON(t, rec)
		buckets := result["buckets"].([]interface{})
		if len(buckets) != 1 {
			t.Fatalf("expected 1 bucket, got %d", len(buckets))
		}
		bucket := buckets[0].(map[string]interface{})
		if bucket["net_flow"] != "4000" {
			t.Errorf("expected net flow 4000, got %v", bucket["net_flow"])
		}
	})

	t.Run("rejects unknown granularities", func(t *testing.T) {
		r := setupPerformanceRouter(NewPerformanceHandler(&mockPerformanceService{}))

		rec := doRequest(r, "GET", "/performance/net-new-money?granularity=fortnight", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("rejects malformed uuid scopes", func(t *testing.T) {
		r := setupPerformanceRouter(NewPerformanceHandler(&mockPerformanceService{}))

		rec := doRequest(r, "GET", "/performance/net-new-money?client_id=7", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
