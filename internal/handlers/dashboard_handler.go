package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "custodia/internal/errors"
	"custodia/internal/performance"
	"custodia/internal/services"
)

// DashboardHandler handles back-office dashboard requests
type DashboardHandler struct {
	dashboardService services.DashboardServicer
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(dashboardService services.DashboardServicer) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// GetMetrics handles the headline dashboard block
// @Summary     Get dashboard metrics
// @Description Get net new money, assets under custody, revenue and commission headlines with period-over-period deltas
// @Tags        dashboard
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.DashboardMetrics "Dashboard metrics"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /dashboard/metrics [get]
func (h *DashboardHandler) GetMetrics(c *gin.Context) {
	metrics, err := h.dashboardService.GetMetrics()
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, metrics)
}

// GetTopAdvisors handles the advisor revenue leaderboard
// @Summary     Get top advisors
// @Description Get advisors ranked by commission revenue with share, net new money and client counts
// @Tags        dashboard
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       limit query int false "Number of rows (default 5)"
// @Success     200 {object} []services.TopAdvisor "Advisor leaderboard"
// @Failure     400 {object} ErrorResponse "Invalid limit"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /dashboard/top-advisors [get]
func (h *DashboardHandler) GetTopAdvisors(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	advisors, err := h.dashboardService.GetTopAdvisors(limit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"advisors": advisors})
}

// GetMonthlyPerformance handles the twelve-month dashboard chart
// @Summary     Get monthly performance
// @Description Get one year of monthly net new money, revenue, commission and custody aggregates
// @Tags        dashboard
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       year query int false "Calendar year (default current)"
// @Success     200 {object} []services.MonthlyPerformance "Monthly buckets"
// @Failure     400 {object} ErrorResponse "Invalid year"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /dashboard/monthly-performance [get]
func (h *DashboardHandler) GetMonthlyPerformance(c *gin.Context) {
	year := 0
	if raw := c.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1900 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "year must be a four-digit year"))
			return
		}
		year = parsed
	}

	months, err := h.dashboardService.GetMonthlyPerformance(year)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"months": months})
}

// GetAdvisorCommissions handles the per-advisor commission detail
// @Summary     Get advisor commissions
// @Description Get each active advisor's current-period commissions graded against the house target
// @Tags        dashboard
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} []services.AdvisorCommissionDetail "Advisor commission detail"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /dashboard/advisor-commissions [get]
func (h *DashboardHandler) GetAdvisorCommissions(c *gin.Context) {
	details, err := h.dashboardService.GetAdvisorCommissions()
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"advisors": details})
}

// GetNetNewMoneyHistory handles the dashboard flow history chart
// @Summary     Get net new money history
// @Description Get whole-book inflow/outflow buckets for the dashboard chart
// @Tags        dashboard
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       start_date  query string false "Window start (YYYY-MM-DD, default one year back)"
// @Param       end_date    query string false "Window end (YYYY-MM-DD, default now)"
// @Param       granularity query string false "day, week or month (default month)"
// @Success     200 {object} []performance.FlowBucket "Flow buckets"
// @Failure     400 {object} ErrorResponse "Invalid parameters"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /dashboard/net-new-money [get]
func (h *DashboardHandler) GetNetNewMoneyHistory(c *gin.Context) {
	var query struct {
		Granularity string `form:"granularity" binding:"omitempty,flow_granularity"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	startDate, err := parseDateQuery(c, "start_date")
	if err != nil {
		respondWithError(c, err)
		return
	}
	endDate, err := parseDateQuery(c, "end_date")
	if err != nil {
		respondWithError(c, err)
		return
	}

	buckets, err := h.dashboardService.GetNetNewMoneyHistory(startDate, endDate, performance.Granularity(query.Granularity))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

// GetPortfolioSummary handles the overview card
// @Summary     Get portfolio summary
// @Description Get client, asset and position counts plus total assets under custody
// @Tags        dashboard
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.PortfolioSummary "Portfolio summary"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /dashboard/portfolio-summary [get]
func (h *DashboardHandler) GetPortfolioSummary(c *gin.Context) {
	summary, err := h.dashboardService.GetPortfolioSummary()
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
