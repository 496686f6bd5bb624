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

// ClientHandler handles client-related requests
type ClientHandler struct {
	clientService services.ClientServicer
	auditService  services.AuditServicer
}

// NewClientHandler creates a new ClientHandler
func NewClientHandler(clientService services.ClientServicer, auditService services.AuditServicer) *ClientHandler {
	return &ClientHandler{clientService: clientService, auditService: auditService}
}

// CreateClientRequest represents the client registration payload
type CreateClientRequest struct {
	Name                 string              `json:"name" binding:"required,max=255"`
	Email                string              `json:"email" binding:"required,email,max=255"`
	Phone                string              `json:"phone" binding:"max=50"`
	Document             string              `json:"document" binding:"required,max=50"`
	BirthDate            *time.Time          `json:"birth_date"`
	Address              string              `json:"address" binding:"max=255"`
	City                 string              `json:"city" binding:"max=100"`
	State                string              `json:"state" binding:"max=100"`
	ZipCode              string              `json:"zip_code" binding:"max=20"`
	Country              string              `json:"country" binding:"max=100"`
	RiskProfile          string              `json:"risk_profile" binding:"omitempty,risk_profile"`
	InvestmentExperience string              `json:"investment_experience" binding:"max=50"`
	MonthlyIncome        decimal.NullDecimal `json:"monthly_income"`
	NetWorth             decimal.NullDecimal `json:"net_worth"`
	AccountOpenedDate    *time.Time          `json:"account_opened_date"`
	AdvisorID            *string             `json:"advisor_id" binding:"omitempty,uuid"`
}

// UpdateClientRequest represents the client update payload. Omitted fields
// are left unchanged.
type UpdateClientRequest struct {
	Name                 *string          `json:"name" binding:"omitempty,max=255"`
	Email                *string          `json:"email" binding:"omitempty,email,max=255"`
	Phone                *string          `json:"phone" binding:"omitempty,max=50"`
	Document             *string          `json:"document" binding:"omitempty,max=50"`
	BirthDate            *time.Time       `json:"birth_date"`
	Address              *string          `json:"address" binding:"omitempty,max=255"`
	City                 *string          `json:"city" binding:"omitempty,max=100"`
	State                *string          `json:"state" binding:"omitempty,max=100"`
	ZipCode              *string          `json:"zip_code" binding:"omitempty,max=20"`
	Country              *string          `json:"country" binding:"omitempty,max=100"`
	RiskProfile          *string          `json:"risk_profile" binding:"omitempty,risk_profile"`
	InvestmentExperience *string          `json:"investment_experience" binding:"omitempty,max=50"`
	MonthlyIncome        *decimal.Decimal `json:"monthly_income"`
	NetWorth             *decimal.Decimal `json:"net_worth"`
	KYCStatus            *string          `json:"kyc_status" binding:"omitempty,kyc_status"`
	AdvisorID            *string          `json:"advisor_id" binding:"omitempty,uuid"`
}

// listClientsQuery holds the query string filters for listing clients.
type listClientsQuery struct {
	Search      string `form:"search"`
	State       string `form:"state" binding:"omitempty,oneof=active deactivated"`
	KYCStatus   string `form:"kyc_status" binding:"omitempty,kyc_status"`
	RiskProfile string `form:"risk_profile" binding:"omitempty,risk_profile"`
	AdvisorID   string `form:"advisor_id" binding:"omitempty,uuid"`
}

func (q *listClientsQuery) toFilter() services.ClientFilter {
	filter := services.ClientFilter{Search: q.Search}
	if q.State != "" {
		state := models.LifecycleState(q.State)
		filter.State = &state
	}
	if q.KYCStatus != "" {
		status := models.KYCStatus(q.KYCStatus)
		filter.KYCStatus = &status
	}
	if q.RiskProfile != "" {
		profile := models.RiskProfile(q.RiskProfile)
		filter.RiskProfile = &profile
	}
	if q.AdvisorID != "" {
		filter.AdvisorID = &q.AdvisorID
	}
	return filter
}

// CreateClient handles registering a new client
// @Summary     Create a client
// @Description Register a new client, optionally assigned to an advisor
// @Tags        clients
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateClientRequest true "Client data"
// @Success     201 {object} models.Client "Created client"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Advisor not found"
// @Failure     409 {object} ErrorResponse "Duplicate email or document"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	client, err := h.clientService.CreateClient(services.CreateClientInput{
		Name:                 req.Name,
		Email:                req.Email,
		Phone:                req.Phone,
		Document:             req.Document,
		BirthDate:            req.BirthDate,
		Address:              req.Address,
		City:                 req.City,
		State:                req.State,
		ZipCode:              req.ZipCode,
		Country:              req.Country,
		RiskProfile:          models.RiskProfile(req.RiskProfile),
		InvestmentExperience: req.InvestmentExperience,
		MonthlyIncome:        req.MonthlyIncome,
		NetWorth:             req.NetWorth,
		AccountOpenedDate:    req.AccountOpenedDate,
		AdvisorID:            req.AdvisorID,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_CLIENT", "client", client.ID, c.ClientIP(),
		map[string]interface{}{"name": client.Name, "email": client.Email})

	c.JSON(http.StatusCreated, gin.H{"client": client})
}

// GetClients handles listing clients with filters and pagination
// @Summary     List clients
// @Description List clients with optional search, state, KYC, risk profile and advisor filters
// @Tags        clients
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page         query int    false "Page number (default 1)"
// @Param       page_size    query int    false "Page size (default 20, max 100)"
// @Param       sort_by      query string false "Sort column"
// @Param       sort_order   query string false "asc or desc"
// @Param       search       query string false "Match against name or email"
// @Param       state        query string false "active or deactivated (default active)"
// @Param       kyc_status   query string false "pending, approved or rejected"
// @Param       risk_profile query string false "conservative, moderate or aggressive"
// @Param       advisor_id   query string false "Filter by advisor"
// @Success     200 {object} pagination.PageResponse[models.Client] "Paginated clients"
// @Failure     400 {object} ErrorResponse "Invalid query parameters"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /clients [get]
func (h *ClientHandler) GetClients(c *gin.Context) {
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
	var query listClientsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.clientService.GetClients(page, sort, query.toFilter())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetClient handles retrieving a single client
// @Summary     Get client by ID
// @Description Get a single client with its advisor
// @Tags        clients
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Client ID"
// @Success     200 {object} models.Client "Client details"
// @Failure     400 {object} ErrorResponse "Invalid client ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Client not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /clients/{id} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	clientID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	client, err := h.clientService.GetClientByID(clientID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"client": client})
}

// UpdateClient handles updating a client
// @Summary     Update client
// @Description Update client fields. Omitted fields are left unchanged.
// @Tags        clients
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string              true "Client ID"
// @Param       request body UpdateClientRequest true "Fields to update"
// @Success     200 {object} models.Client "Updated client"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Client or advisor not found"
// @Failure     409 {object} ErrorResponse "Duplicate email or document"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /clients/{id} [put]
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	clientID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	patch := services.ClientPatch{
		Name:                 req.Name,
		Email:                req.Email,
		Phone:                req.Phone,
		Document:             req.Document,
		BirthDate:            req.BirthDate,
		Address:              req.Address,
		City:                 req.City,
		State:                req.State,
		ZipCode:              req.ZipCode,
		Country:              req.Country,
		InvestmentExperience: req.InvestmentExperience,
		MonthlyIncome:        req.MonthlyIncome,
		NetWorth:             req.NetWorth,
		AdvisorID:            req.AdvisorID,
	}
	if req.RiskProfile != nil {
		profile := models.RiskProfile(*req.RiskProfile)
		patch.RiskProfile = &profile
	}
	if req.KYCStatus != nil {
		status := models.KYCStatus(*req.KYCStatus)
		patch.KYCStatus = &status
	}

	client, err := h.clientService.UpdateClient(clientID, patch)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_CLIENT", "client", client.ID, c.ClientIP(),
		map[string]interface{}{"fields": changedClientFields(req)})

	c.JSON(http.StatusOK, gin.H{"client": client})
}

// changedClientFields lists which fields the update request carried, for the
// audit trail.
func changedClientFields(req UpdateClientRequest) []string {
	fields := make([]string, 0, 8)
	if req.Name != nil {
		fields = append(fields, "name")
	}
	if req.Email != nil {
		fields = append(fields, "email")
	}
	if req.Phone != nil {
		fields = append(fields, "phone")
	}
	if req.Document != nil {
		fields = append(fields, "document")
	}
	if req.RiskProfile != nil {
		fields = append(fields, "risk_profile")
	}
	if req.KYCStatus != nil {
		fields = append(fields, "kyc_status")
	}
	if req.AdvisorID != nil {
		fields = append(fields, "advisor_id")
	}
	if req.MonthlyIncome != nil {
		fields = append(fields, "monthly_income")
	}
	if req.NetWorth != nil {
		fields = append(fields, "net_worth")
	}
	return fields
}

// DeactivateClient handles soft-deleting a client
// @Summary     Deactivate client
// @Description Deactivate a client. Requires all allocations to be closed.
// @Tags        clients
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Client ID"
// @Success     200 {object} map[string]string "Client deactivated"
// @Failure     400 {object} ErrorResponse "Client still has open allocations"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Client not found"
// @Failure     409 {object} ErrorResponse "Client already deactivated"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /clients/{id} [delete]
func (h *ClientHandler) DeactivateClient(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	clientID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.clientService.DeactivateClient(clientID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DEACTIVATE_CLIENT", "client", clientID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Client deactivated"})
}

// GetClientPortfolio handles retrieving a client's portfolio
// @Summary     Get client portfolio
// @Description Get a client's open positions with valuation totals
// @Tags        clients
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Client ID"
// @Success     200 {object} services.ClientPortfolio "Client portfolio"
// @Failure     400 {object} ErrorResponse "Invalid client ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Client not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /clients/{id}/portfolio [get]
func (h *ClientHandler) GetClientPortfolio(c *gin.Context) {
	clientID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	portfolio, err := h.clientService.GetClientPortfolio(clientID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, portfolio)
}

// GetClientStats handles retrieving the clients overview block
// @Summary     Get client statistics
// @Description Get aggregate client counts, KYC states and assets under custody
// @Tags        clients
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.ClientStats "Client statistics"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /clients/stats/overview [get]
func (h *ClientHandler) GetClientStats(c *gin.Context) {
	stats, err := h.clientService.GetClientStats()
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
