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

// AllocationHandler handles allocation-related requests
type AllocationHandler struct {
	allocationService services.AllocationServicer
	auditService      services.AuditServicer
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(allocationService services.AllocationServicer, auditService services.AuditServicer) *AllocationHandler {
	return &AllocationHandler{allocationService: allocationService, auditService: auditService}
}

// CreateAllocationRequest represents the payload for opening a position
type CreateAllocationRequest struct {
	ClientID      string          `json:"client_id" binding:"required,uuid"`
	AssetID       string          `json:"asset_id" binding:"required,uuid"`
	Quantity      decimal.Decimal `json:"quantity" binding:"required"`
	PurchasePrice decimal.Decimal `json:"purchase_price" binding:"required"`
	PurchaseDate  time.Time       `json:"purchase_date" binding:"required"`
	Fees          decimal.Decimal `json:"fees"`
	PositionType  string          `json:"position_type" binding:"omitempty,position_type"`
	Notes         string          `json:"notes"`
	OrderID       string          `json:"order_id" binding:"max=100"`
}

// UpdateAllocationRequest represents the payload for correcting an open
// position. Omitted fields are left unchanged.
type UpdateAllocationRequest struct {
	Quantity      *decimal.Decimal `json:"quantity"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	PurchaseDate  *time.Time       `json:"purchase_date"`
	Fees          *decimal.Decimal `json:"fees"`
	Notes         *string          `json:"notes"`
	OrderID       *string          `json:"order_id" binding:"omitempty,max=100"`
}

// CloseAllocationRequest represents the payload for closing a position. A
// missing exit date closes the position as of now.
type CloseAllocationRequest struct {
	ExitPrice decimal.Decimal `json:"exit_price" binding:"required"`
	ExitDate  *time.Time      `json:"exit_date"`
	ExitFees  decimal.Decimal `json:"exit_fees"`
}

// listAllocationsQuery holds the query string filters for listing allocations.
type listAllocationsQuery struct {
	ClientID string `form:"client_id" binding:"omitempty,uuid"`
	AssetID  string `form:"asset_id" binding:"omitempty,uuid"`
	IsActive *bool  `form:"is_active"`
	FromDate string `form:"from_date"`
	ToDate   string `form:"to_date"`
}

func (q *listAllocationsQuery) toFilter() (services.AllocationFilter, error) {
	filter := services.AllocationFilter{IsActive: q.IsActive}
	if q.ClientID != "" {
		filter.ClientID = &q.ClientID
	}
	if q.AssetID != "" {
		filter.AssetID = &q.AssetID
	}
	if q.FromDate != "" {
		from, err := time.Parse("2006-01-02", q.FromDate)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "from_date must be formatted as YYYY-MM-DD")
		}
		filter.FromDate = &from
	}
	if q.ToDate != "" {
		to, err := time.Parse("2006-01-02", q.ToDate)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "to_date must be formatted as YYYY-MM-DD")
		}
		filter.ToDate = &to
	}
	return filter, nil
}

// GetAllocations handles listing allocations with valuation metrics
// @Summary     List allocations
// @Description List allocations enriched with valuation metrics, filtered by client, asset, state or purchase date range
// @Tags        allocations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page       query int    false "Page number (default 1)"
// @Param       page_size  query int    false "Page size (default 20, max 100)"
// @Param       sort_by    query string false "Sort column"
// @Param       sort_order query string false "asc or desc"
// @Param       client_id  query string false "Filter by client"
// @Param       asset_id   query string false "Filter by asset"
// @Param       is_active  query bool   false "Open or closed positions"
// @Param       from_date  query string false "Purchase date lower bound (YYYY-MM-DD)"
// @Param       to_date    query string false "Purchase date upper bound (YYYY-MM-DD)"
// @Success     200 {object} pagination.PageResponse[services.AllocationWithMetrics] "Paginated allocations"
// @Failure     400 {object} ErrorResponse "Invalid query parameters"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /allocations [get]
func (h *AllocationHandler) GetAllocations(c *gin.Context) {
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
	var query listAllocationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter, err := query.toFilter()
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.allocationService.GetAllocations(page, sort, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAllocation handles retrieving a single allocation
// @Summary     Get allocation by ID
// @Description Get a single allocation with its client and asset
// @Tags        allocations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Allocation ID"
// @Success     200 {object} models.Allocation "Allocation details"
// @Failure     400 {object} ErrorResponse "Invalid allocation ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Allocation not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /allocations/{id} [get]
func (h *AllocationHandler) GetAllocation(c *gin.Context) {
	allocationID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	allocation, err := h.allocationService.GetAllocationByID(allocationID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"allocation": allocation})
}

// CreateAllocation handles opening a new position
// @Summary     Create an allocation
// @Description Open a position for a client in an asset. Total invested is derived as quantity times purchase price.
// @Tags        allocations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateAllocationRequest true "Allocation data"
// @Success     201 {object} models.Allocation "Created allocation"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Client or asset not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /allocations [post]
func (h *AllocationHandler) CreateAllocation(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	allocation, err := h.allocationService.CreateAllocation(services.CreateAllocationInput{
		ClientID:      req.ClientID,
		AssetID:       req.AssetID,
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice,
		PurchaseDate:  req.PurchaseDate,
		Fees:          req.Fees,
		PositionType:  models.PositionType(req.PositionType),
		Notes:         req.Notes,
		OrderID:       req.OrderID,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_ALLOCATION", "allocation", allocation.ID, c.ClientIP(),
		map[string]interface{}{
			"client_id": allocation.ClientID,
			"asset_id":  allocation.AssetID,
			"quantity":  allocation.Quantity,
		})

	c.JSON(http.StatusCreated, gin.H{"allocation": allocation})
}

// UpdateAllocation handles correcting an open position
// @Summary     Update allocation
// @Description Correct fields of an open allocation. Closed allocations reject updates.
// @Tags        allocations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                  true "Allocation ID"
// @Param       request body UpdateAllocationRequest true "Fields to update"
// @Success     200 {object} models.Allocation "Updated allocation"
// @Failure     400 {object} ErrorResponse "Invalid input or allocation closed"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Allocation not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /allocations/{id} [put]
func (h *AllocationHandler) UpdateAllocation(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	allocationID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	allocation, err := h.allocationService.UpdateAllocation(allocationID, services.AllocationPatch{
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice,
		PurchaseDate:  req.PurchaseDate,
		Fees:          req.Fees,
		Notes:         req.Notes,
		OrderID:       req.OrderID,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_ALLOCATION", "allocation", allocation.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"allocation": allocation})
}

// CloseAllocation handles closing a position
// @Summary     Close allocation
// @Description Close an open position at an exit price. The realized gain nets out entry and exit fees.
// @Tags        allocations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                 true "Allocation ID"
// @Param       request body CloseAllocationRequest true "Exit data"
// @Success     200 {object} models.Allocation "Closed allocation"
// @Failure     400 {object} ErrorResponse "Invalid input or allocation already closed"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Allocation not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /allocations/{id}/close [post]
func (h *AllocationHandler) CloseAllocation(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	allocationID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CloseAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	allocation, err := h.allocationService.CloseAllocation(allocationID, services.CloseAllocationInput{
		ExitPrice: req.ExitPrice,
		ExitDate:  req.ExitDate,
		ExitFees:  req.ExitFees,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CLOSE_ALLOCATION", "allocation", allocation.ID, c.ClientIP(),
		map[string]interface{}{
			"exit_price":    req.ExitPrice,
			"realized_gain": allocation.RealizedGainLoss,
		})

	c.JSON(http.StatusOK, gin.H{"allocation": allocation})
}
