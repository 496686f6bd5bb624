package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "custodia/internal/errors"
	"custodia/internal/models"
	"custodia/internal/pagination"
	"custodia/internal/services"
)

// CommissionHandler handles commission-related requests
type CommissionHandler struct {
	commissionService services.CommissionServicer
	auditService      services.AuditServicer
}

// NewCommissionHandler creates a new CommissionHandler
func NewCommissionHandler(commissionService services.CommissionServicer, auditService services.AuditServicer) *CommissionHandler {
	return &CommissionHandler{commissionService: commissionService, auditService: auditService}
}

// CreateCommissionRequest represents the payload for recording a commission.
// Amount, tax and net are derived from the gross revenue and rates. A zero
// commission rate falls back to the advisor's rate.
type CreateCommissionRequest struct {
	AdvisorID      string          `json:"advisor_id" binding:"required,uuid"`
	ClientID       string          `json:"client_id" binding:"required,uuid"`
	AllocationID   *string         `json:"allocation_id" binding:"omitempty,uuid"`
	CommissionType string          `json:"commission_type" binding:"required,commission_type"`
	PeriodStart    time.Time       `json:"period_start" binding:"required"`
	PeriodEnd      time.Time       `json:"period_end"`
	GrossRevenue   decimal.Decimal `json:"gross_revenue" binding:"required"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
}

// UpdateCommissionStatusRequest represents the status transition payload
type UpdateCommissionStatusRequest struct {
	Status string `json:"status" binding:"required,commission_status"`
}

// listCommissionsQuery holds the query string filters for listing commissions.
type listCommissionsQuery struct {
	AdvisorID string `form:"advisor_id" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"omitempty,commission_status"`
}

// GetCommissions handles listing commissions
// @Summary     List commissions
// @Description List commissions filtered by advisor, status and period, most recent first
// @Tags        commissions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page         query int    false "Page number (default 1)"
// @Param       page_size    query int    false "Page size (default 20, max 100)"
// @Param       advisor_id   query string false "Filter by advisor"
// @Param       status       query string false "calculated, approved, paid or cancelled"
// @Param       period_start query string false "Period start lower bound (YYYY-MM-DD)"
// @Param       period_end   query string false "Period start upper bound (YYYY-MM-DD)"
// @Success     200 {object} pagination.PageResponse[models.Commission] "Paginated commissions"
// @Failure     400 {object} ErrorResponse "Invalid query parameters"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /commissions [get]
func (h *CommissionHandler) GetCommissions(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	var query listCommissionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	periodStart, err := parseDateQuery(c, "period_start")
	if err != nil {
		respondWithError(c, err)
		return
	}
	periodEnd, err := parseDateQuery(c, "period_end")
	if err != nil {
		respondWithError(c, err)
		return
	}

	filter := services.CommissionFilter{PeriodStart: periodStart, PeriodEnd: periodEnd}
	if query.AdvisorID != "" {
		filter.AdvisorID = &query.AdvisorID
	}
	if query.Status != "" {
		status := models.CommissionStatus(query.Status)
		filter.Status = &status
	}

	result, err := h.commissionService.GetCommissions(page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CreateCommission handles recording a commission
// @Summary     Create a commission
// @Description Record a commission for an advisor and client. Amount, tax and net are derived from the rates.
// @Tags        commissions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateCommissionRequest true "Commission data"
// @Success     201 {object} models.Commission "Created commission"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Advisor, client or allocation not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /commissions [post]
func (h *CommissionHandler) CreateCommission(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	commission, err := h.commissionService.CreateCommission(services.CreateCommissionInput{
		AdvisorID:      req.AdvisorID,
		ClientID:       req.ClientID,
		AllocationID:   req.AllocationID,
		CommissionType: models.CommissionType(req.CommissionType),
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		GrossRevenue:   req.GrossRevenue,
		CommissionRate: req.CommissionRate,
		TaxRate:        req.TaxRate,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_COMMISSION", "commission", commission.ID, c.ClientIP(),
		map[string]interface{}{
			"advisor_id":    commission.AdvisorID,
			"gross_revenue": commission.GrossRevenue,
		})

	c.JSON(http.StatusCreated, gin.H{"commission": commission})
}

// UpdateCommissionStatus handles commission status transitions
// @Summary     Update commission status
// @Description Move a commission through its lifecycle. Paid commissions record the payment date.
// @Tags        commissions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                        true "Commission ID"
// @Param       request body UpdateCommissionStatusRequest true "Target status"
// @Success     200 {object} models.Commission "Updated commission"
// @Failure     400 {object} ErrorResponse "Invalid input or illegal transition"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Commission not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /commissions/{id}/status [put]
func (h *CommissionHandler) UpdateCommissionStatus(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	commissionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateCommissionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	commission, err := h.commissionService.UpdateCommissionStatus(commissionID, models.CommissionStatus(req.Status))
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_COMMISSION_STATUS", "commission", commission.ID, c.ClientIP(),
		map[string]interface{}{"status": commission.Status})

	c.JSON(http.StatusOK, gin.H{"commission": commission})
}
