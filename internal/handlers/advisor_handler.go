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

// AdvisorHandler handles advisor-related requests
type AdvisorHandler struct {
	advisorService services.AdvisorServicer
	auditService   services.AuditServicer
}

// NewAdvisorHandler creates a new AdvisorHandler
func NewAdvisorHandler(advisorService services.AdvisorServicer, auditService services.AuditServicer) *AdvisorHandler {
	return &AdvisorHandler{advisorService: advisorService, auditService: auditService}
}

// CreateAdvisorRequest represents the advisor registration payload. A zero
// commission rate falls back to the house default.
type CreateAdvisorRequest struct {
	Name               string          `json:"name" binding:"required,max=255"`
	Email              string          `json:"email" binding:"required,email,max=255"`
	Phone              string          `json:"phone" binding:"max=50"`
	RegistrationNumber string          `json:"registration_number" binding:"max=50"`
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	HireDate           *time.Time      `json:"hire_date"`
}

// UpdateAdvisorRequest represents the advisor update payload. Omitted fields
// are left unchanged.
type UpdateAdvisorRequest struct {
	Name               *string          `json:"name" binding:"omitempty,max=255"`
	Email              *string          `json:"email" binding:"omitempty,email,max=255"`
	Phone              *string          `json:"phone" binding:"omitempty,max=50"`
	RegistrationNumber *string          `json:"registration_number" binding:"omitempty,max=50"`
	CommissionRate     *decimal.Decimal `json:"commission_rate"`
	State              *string          `json:"state" binding:"omitempty,oneof=active deactivated"`
}

// CreateAdvisor handles registering a new advisor
// @Summary     Create an advisor
// @Description Register a new advisor with a commission rate
// @Tags        advisors
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateAdvisorRequest true "Advisor data"
// @Success     201 {object} models.Advisor "Created advisor"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Duplicate email or registration number"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /advisors [post]
func (h *AdvisorHandler) CreateAdvisor(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateAdvisorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	advisor, err := h.advisorService.CreateAdvisor(services.CreateAdvisorInput{
		Name:               req.Name,
		Email:              req.Email,
		Phone:              req.Phone,
		RegistrationNumber: req.RegistrationNumber,
		CommissionRate:     req.CommissionRate,
		HireDate:           req.HireDate,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_ADVISOR", "advisor", advisor.ID, c.ClientIP(),
		map[string]interface{}{"name": advisor.Name, "email": advisor.Email})

	c.JSON(http.StatusCreated, gin.H{"advisor": advisor})
}

// GetAdvisors handles listing advisors
// @Summary     List advisors
// @Description List advisors with optional name/email search
// @Tags        advisors
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page       query int    false "Page number (default 1)"
// @Param       page_size  query int    false "Page size (default 20, max 100)"
// @Param       sort_by    query string false "Sort column"
// @Param       sort_order query string false "asc or desc"
// @Param       search     query string false "Match against name or email"
// @Success     200 {object} pagination.PageResponse[models.Advisor] "Paginated advisors"
// @Failure     400 {object} ErrorResponse "Invalid query parameters"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /advisors [get]
func (h *AdvisorHandler) GetAdvisors(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	var sort pagination.SortRequest
	if err := c.ShouldBindQuery(&sort); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.advisorService.GetAdvisors(page, sort, c.Query("search"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAdvisor handles retrieving an advisor with book statistics
// @Summary     Get advisor by ID
// @Description Get an advisor enriched with client counts, custody and commission totals
// @Tags        advisors
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Advisor ID"
// @Success     200 {object} services.AdvisorWithStats "Advisor with statistics"
// @Failure     400 {object} ErrorResponse "Invalid advisor ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Advisor not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /advisors/{id} [get]
func (h *AdvisorHandler) GetAdvisor(c *gin.Context) {
	advisorID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	advisor, err := h.advisorService.GetAdvisorWithStats(advisorID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"advisor": advisor})
}

// UpdateAdvisor handles updating an advisor
// @Summary     Update advisor
// @Description Update advisor fields. Omitted fields are left unchanged.
// @Tags        advisors
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string               true "Advisor ID"
// @Param       request body UpdateAdvisorRequest true "Fields to update"
// @Success     200 {object} models.Advisor "Updated advisor"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Advisor not found"
// @Failure     409 {object} ErrorResponse "Duplicate email or registration number"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /advisors/{id} [put]
func (h *AdvisorHandler) UpdateAdvisor(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	advisorID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateAdvisorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	patch := services.AdvisorPatch{
		Name:               req.Name,
		Email:              req.Email,
		Phone:              req.Phone,
		RegistrationNumber: req.RegistrationNumber,
		CommissionRate:     req.CommissionRate,
	}
	if req.State != nil {
		state := models.LifecycleState(*req.State)
		patch.State = &state
	}

	advisor, err := h.advisorService.UpdateAdvisor(advisorID, patch)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_ADVISOR", "advisor", advisor.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"advisor": advisor})
}
