package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "custodia/internal/errors"
	"custodia/internal/models"
	"custodia/internal/pagination"
	"custodia/internal/services"
)

// AssetHandler handles asset-related requests
type AssetHandler struct {
	assetService services.AssetServicer
	auditService services.AuditServicer
}

// NewAssetHandler creates a new AssetHandler
func NewAssetHandler(assetService services.AssetServicer, auditService services.AuditServicer) *AssetHandler {
	return &AssetHandler{assetService: assetService, auditService: auditService}
}

// CreateAssetRequest represents the asset registration payload. The market
// data provider fills the price block on creation.
type CreateAssetRequest struct {
	Ticker      string `json:"ticker" binding:"required,max=20"`
	Name        string `json:"name" binding:"required,max=255"`
	Market      string `json:"market" binding:"max=50"`
	Currency    string `json:"currency" binding:"omitempty,iso4217"`
	AssetClass  string `json:"asset_class" binding:"required,asset_class"`
	Sector      string `json:"sector" binding:"max=100"`
	Industry    string `json:"industry" binding:"max=100"`
	Description string `json:"description"`
	Website     string `json:"website" binding:"omitempty,url,max=255"`
}

// UpdateAssetRequest represents the asset update payload. Omitted fields are
// left unchanged.
type UpdateAssetRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=255"`
	Sector      *string `json:"sector" binding:"omitempty,max=100"`
	Industry    *string `json:"industry" binding:"omitempty,max=100"`
	Market      *string `json:"market" binding:"omitempty,max=50"`
	Currency    *string `json:"currency" binding:"omitempty,iso4217"`
	AssetClass  *string `json:"asset_class" binding:"omitempty,asset_class"`
	IsTradeable *bool   `json:"is_tradeable"`
	Description *string `json:"description"`
	Website     *string `json:"website" binding:"omitempty,url,max=255"`
}

// listAssetsQuery holds the query string filters for listing assets.
type listAssetsQuery struct {
	Search     string `form:"search"`
	Active     *bool  `form:"active"`
	AssetClass string `form:"asset_class" binding:"omitempty,asset_class"`
	Market     string `form:"market"`
}

func (q *listAssetsQuery) toFilter() services.AssetFilter {
	filter := services.AssetFilter{Search: q.Search, Active: q.Active}
	if q.AssetClass != "" {
		class := models.AssetClass(q.AssetClass)
		filter.AssetClass = &class
	}
	if q.Market != "" {
		filter.Market = &q.Market
	}
	return filter
}

// CreateAsset handles registering a new asset
// @Summary     Create an asset
// @Description Register a tradeable asset. The market data provider validates the ticker and backfills price history.
// @Tags        assets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateAssetRequest true "Asset data"
// @Success     201 {object} models.Asset "Created asset"
// @Failure     400 {object} ErrorResponse "Invalid input or ticker not covered by the provider"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Duplicate ticker"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /assets [post]
func (h *AssetHandler) CreateAsset(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	asset, err := h.assetService.CreateAsset(c.Request.Context(), services.CreateAssetInput{
		Ticker:      req.Ticker,
		Name:        req.Name,
		Market:      req.Market,
		Currency:    req.Currency,
		AssetClass:  models.AssetClass(req.AssetClass),
		Sector:      req.Sector,
		Industry:    req.Industry,
		Description: req.Description,
		Website:     req.Website,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_ASSET", "asset", asset.ID, c.ClientIP(),
		map[string]interface{}{"ticker": asset.Ticker, "asset_class": asset.AssetClass})

	c.JSON(http.StatusCreated, gin.H{"asset": asset})
}

// GetAssets handles listing assets with filters and pagination
// @Summary     List assets
// @Description List assets with optional search, class, market and active filters
// @Tags        assets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Page size (default 20, max 100)"
// @Param       sort_by     query string false "Sort column"
// @Param       sort_order  query string false "asc or desc"
// @Param       search      query string false "Match against ticker or name"
// @Param       active      query bool   false "Filter by lifecycle state (default active only)"
// @Param       asset_class query string false "stock, etf, fund, bond, crypto or reit"
// @Param       market      query string false "Exchange code"
// @Success     200 {object} pagination.PageResponse[models.Asset] "Paginated assets"
// @Failure     400 {object} ErrorResponse "Invalid query parameters"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /assets [get]
func (h *AssetHandler) GetAssets(c *gin.Context) {
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
	var query listAssetsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.assetService.GetAssets(page, sort, query.toFilter())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAsset handles retrieving an asset with trailing performance
// @Summary     Get asset by ID
// @Description Get an asset enriched with trailing price changes derived from its bar history
// @Tags        assets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Asset ID"
// @Success     200 {object} services.AssetWithPerformance "Asset with performance"
// @Failure     400 {object} ErrorResponse "Invalid asset ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Asset not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /assets/{id} [get]
func (h *AssetHandler) GetAsset(c *gin.Context) {
	assetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	asset, err := h.assetService.GetAssetWithPerformance(assetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"asset": asset})
}

// UpdateAsset handles updating an asset
// @Summary     Update asset
// @Description Update asset fields. Omitted fields are left unchanged.
// @Tags        assets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string             true "Asset ID"
// @Param       request body UpdateAssetRequest true "Fields to update"
// @Success     200 {object} models.Asset "Updated asset"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Asset not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /assets/{id} [put]
func (h *AssetHandler) UpdateAsset(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	assetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	patch := services.AssetPatch{
		Name:        req.Name,
		Sector:      req.Sector,
		Industry:    req.Industry,
		Market:      req.Market,
		Currency:    req.Currency,
		IsTradeable: req.IsTradeable,
		Description: req.Description,
		Website:     req.Website,
	}
	if req.AssetClass != nil {
		class := models.AssetClass(*req.AssetClass)
		patch.AssetClass = &class
	}

	asset, err := h.assetService.UpdateAsset(assetID, patch)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_ASSET", "asset", asset.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"asset": asset})
}

// DeactivateAsset handles soft-deleting an asset
// @Summary     Deactivate asset
// @Description Deactivate an asset. Requires no open allocations referencing it.
// @Tags        assets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Asset ID"
// @Success     200 {object} map[string]string "Asset deactivated"
// @Failure     400 {object} ErrorResponse "Asset still referenced by open allocations"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Asset not found"
// @Failure     409 {object} ErrorResponse "Asset already deactivated"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /assets/{id} [delete]
func (h *AssetHandler) DeactivateAsset(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	assetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.assetService.DeactivateAsset(assetID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DEACTIVATE_ASSET", "asset", assetID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Asset deactivated"})
}

// RefreshPrice handles an on-demand price refresh for one asset
// @Summary     Refresh asset price
// @Description Fetch the current quote from the market data provider and update the asset's price block
// @Tags        assets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Asset ID"
// @Success     200 {object} models.Asset "Asset with refreshed price"
// @Failure     400 {object} ErrorResponse "Invalid asset ID or provider has no data"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Asset not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /assets/{id}/refresh-price [post]
func (h *AssetHandler) RefreshPrice(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	assetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	asset, err := h.assetService.RefreshPrice(c.Request.Context(), assetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "REFRESH_ASSET_PRICE", "asset", asset.ID, c.ClientIP(),
		map[string]interface{}{"current_price": asset.CurrentPrice})

	c.JSON(http.StatusOK, gin.H{"asset": asset})
}
