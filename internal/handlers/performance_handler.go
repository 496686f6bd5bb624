package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "custodia/internal/errors"
	"custodia/internal/performance"
	"custodia/internal/services"
)

// PerformanceHandler handles portfolio return and cash-flow requests
type PerformanceHandler struct {
	performanceService services.PerformanceServicer
}

// NewPerformanceHandler creates a new PerformanceHandler
func NewPerformanceHandler(performanceService services.PerformanceServicer) *PerformanceHandler {
	return &PerformanceHandler{performanceService: performanceService}
}

// netNewMoneyQuery holds the query string parameters for the net-new-money
// aggregation. Client and advisor scopes are mutually exclusive.
type netNewMoneyQuery struct {
	ClientID    string `form:"client_id" binding:"omitempty,uuid"`
	AdvisorID   string `form:"advisor_id" binding:"omitempty,uuid"`
	Granularity string `form:"granularity" binding:"omitempty,flow_granularity"`
}

// GetClientPerformance handles the per-client return calculation
// @Summary     Get client performance
// @Description Compute time-weighted and simple returns for a client over a window. The window defaults to the trailing year.
// @Tags        performance
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id         path  string true  "Client ID"
// @Param       start_date query string false "Window start (YYYY-MM-DD)"
// @Param       end_date   query string false "Window end (YYYY-MM-DD)"
// @Success     200 {object} services.PerformanceReport "Performance report"
// @Failure     400 {object} ErrorResponse "Invalid parameters"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Client not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /clients/{id}/performance [get]
func (h *PerformanceHandler) GetClientPerformance(c *gin.Context) {
	clientID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
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

	report, err := h.performanceService.GetClientPerformance(clientID, startDate, endDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetNetNewMoney handles the net-new-money flow aggregation
// @Summary     Get net new money
// @Description Aggregate inflows and outflows into period buckets, scoped to a client, an advisor or the whole book
// @Tags        performance
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       client_id   query string false "Scope to a client"
// @Param       advisor_id  query string false "Scope to an advisor's book"
// @Param       start_date  query string false "Window start (YYYY-MM-DD, default one year back)"
// @Param       end_date    query string false "Window end (YYYY-MM-DD, default now)"
// @Param       granularity query string false "day, week or month (default month)"
// @Success     200 {object} []performance.FlowBucket "Flow buckets"
// @Failure     400 {object} ErrorResponse "Invalid parameters"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /performance/net-new-money [get]
func (h *PerformanceHandler) GetNetNewMoney(c *gin.Context) {
	var query netNewMoneyQuery
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

	flowQuery := services.FlowQuery{
		StartDate:   startDate,
		EndDate:     endDate,
		Granularity: performance.Granularity(query.Granularity),
	}
	if query.ClientID != "" {
		flowQuery.ClientID = &query.ClientID
	}
	if query.AdvisorID != "" {
		flowQuery.AdvisorID = &query.AdvisorID
	}

	buckets, err := h.performanceService.GetNetNewMoney(flowQuery)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}
