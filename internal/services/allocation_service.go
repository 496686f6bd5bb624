package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "custodia/internal/errors"
	"custodia/internal/models"
	"custodia/internal/pagination"
	"custodia/internal/performance"
)

var allocationSortColumns = map[string]bool{
	"purchase_date":  true,
	"total_invested": true,
	"quantity":       true,
	"created_at":     true,
}

type allocationService struct {
	db *gorm.DB
}

// NewAllocationService creates a new allocation service instance.
func NewAllocationService(db *gorm.DB) AllocationServicer {
	return &allocationService{db: db}
}

// GetAllocations returns a paginated list of allocations enriched with
// valuation metrics. Open positions are valued at the asset's current price,
// closed ones at their exit price.
func (s *allocationService) GetAllocations(page pagination.PageRequest, sort pagination.SortRequest, filter AllocationFilter) (*pagination.PageResponse[AllocationWithMetrics], error) {
	page.Defaults()

	query := s.db.Model(&models.Allocation{})
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.AssetID != nil {
		query = query.Where("asset_id = ?", *filter.AssetID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.FromDate != nil {
		query = query.Where("purchase_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("purchase_date <= ?", *filter.ToDate)
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var allocations []models.Allocation
	err := query.
		Preload("Asset").
		Order(sort.OrderClause(allocationSortColumns, "purchase_date")).
		Scopes(pagination.Paginate(page)).
		Find(&allocations).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	now := time.Now()
	enriched := make([]AllocationWithMetrics, 0, len(allocations))
	for i := range allocations {
		enriched = append(enriched, enrichAllocation(&allocations[i], now))
	}

	result := pagination.NewPageResponse(enriched, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetAllocationByID returns an allocation by its ID with the asset preloaded.
func (s *allocationService) GetAllocationByID(id string) (*models.Allocation, error) {
	var alloc models.Allocation
	if err := s.db.Preload("Asset").Where("id = ?", id).First(&alloc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAllocationNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &alloc, nil
}

// CreateAllocation opens a position. The invested amount is derived as
// quantity times purchase price; purchase fees sit outside it. Deactivated
// clients and assets take no new positions.
func (s *allocationService) CreateAllocation(input CreateAllocationInput) (*models.Allocation, error) {
	if !input.Quantity.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Quantity must be positive")
	}
	if !input.PurchasePrice.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Purchase price must be positive")
	}
	if input.Fees.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Fees cannot be negative")
	}

	var client models.Client
	if err := s.db.Where("id = ?", input.ClientID).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrClientNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if client.LifecycleState == models.LifecycleDeactivated {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Client is deactivated")
	}

	var asset models.Asset
	if err := s.db.Where("id = ?", input.AssetID).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAssetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if asset.LifecycleState == models.LifecycleDeactivated {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Asset is deactivated")
	}

	purchaseDate := input.PurchaseDate
	if purchaseDate.IsZero() {
		purchaseDate = time.Now()
	}
	positionType := input.PositionType
	if positionType == "" {
		positionType = models.PositionLong
	}

	alloc := &models.Allocation{
		ClientID:      input.ClientID,
		AssetID:       input.AssetID,
		Quantity:      input.Quantity,
		PurchasePrice: input.PurchasePrice,
		PurchaseDate:  purchaseDate,
		TotalInvested: input.Quantity.Mul(input.PurchasePrice),
		Fees:          input.Fees,
		PositionType:  positionType,
		IsActive:      true,
		Notes:         input.Notes,
		OrderID:       input.OrderID,
	}

	if err := s.db.Create(alloc).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return alloc, nil
}

// UpdateAllocation applies a partial update to an open allocation. Changing
// the quantity or purchase price re-derives the invested amount.
func (s *allocationService) UpdateAllocation(id string, patch AllocationPatch) (*models.Allocation, error) {
	alloc, err := s.GetAllocationByID(id)
	if err != nil {
		return nil, err
	}
	if !alloc.IsActive {
		return nil, apperrors.ErrAllocationNotOpen
	}

	updates := make(map[string]interface{})

	quantity := alloc.Quantity
	price := alloc.PurchasePrice

	if patch.Quantity != nil {
		if !patch.Quantity.IsPositive() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Quantity must be positive")
		}
		quantity = *patch.Quantity
		updates["quantity"] = quantity
	}
	if patch.PurchasePrice != nil {
		if !patch.PurchasePrice.IsPositive() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Purchase price must be positive")
		}
		price = *patch.PurchasePrice
		updates["purchase_price"] = price
	}
	if patch.Quantity != nil || patch.PurchasePrice != nil {
		updates["total_invested"] = quantity.Mul(price)
	}
	if patch.PurchaseDate != nil {
		updates["purchase_date"] = *patch.PurchaseDate
	}
	if patch.Fees != nil {
		if patch.Fees.IsNegative() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Fees cannot be negative")
		}
		updates["fees"] = *patch.Fees
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if patch.OrderID != nil {
		updates["order_id"] = *patch.OrderID
	}

	if len(updates) > 0 {
		if err := s.db.Model(alloc).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return alloc, nil
}

// CloseAllocation terminates an open position, computing the realized
// gain/loss and clearing the mark-to-market fields.
func (s *allocationService) CloseAllocation(id string, input CloseAllocationInput) (*models.Allocation, error) {
	alloc, err := s.GetAllocationByID(id)
	if err != nil {
		return nil, err
	}
	if !alloc.IsActive || alloc.IsClosed() {
		return nil, apperrors.ErrAllocationClosed
	}

	if !input.ExitPrice.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Exit price must be positive")
	}
	if input.ExitFees.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Exit fees cannot be negative")
	}

	exitDate := time.Now()
	if input.ExitDate != nil {
		exitDate = *input.ExitDate
	}
	if exitDate.Before(alloc.PurchaseDate) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Exit date cannot precede the purchase date")
	}

	performance.ClosePosition(alloc, input.ExitPrice, exitDate, input.ExitFees)

	updates := map[string]interface{}{
		"is_active":                    alloc.IsActive,
		"exit_price":                   alloc.ExitPrice,
		"exit_date":                    alloc.ExitDate,
		"exit_fees":                    alloc.ExitFees,
		"realized_gain_loss":           alloc.RealizedGainLoss,
		"unrealized_gain_loss":         alloc.UnrealizedGainLoss,
		"unrealized_gain_loss_percent": alloc.UnrealizedGainLossPercent,
	}
	if err := s.db.Model(alloc).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return alloc, nil
}

// RefreshOpenPositions re-marks every open position in one asset against a
// fresh price and returns how many were touched.
func (s *allocationService) RefreshOpenPositions(assetID string, price decimal.Decimal, at time.Time) (int, error) {
	var open []models.Allocation
	err := s.db.
		Where("asset_id = ? AND is_active = ?", assetID, true).
		Find(&open).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	for i := range open {
		alloc := &open[i]
		performance.RefreshUnrealized(alloc, price, at)

		updates := map[string]interface{}{
			"unrealized_gain_loss":         alloc.UnrealizedGainLoss,
			"unrealized_gain_loss_percent": alloc.UnrealizedGainLossPercent,
			"last_price_check":             alloc.LastPriceCheck,
		}
		if err := s.db.Model(alloc).Updates(updates).Error; err != nil {
			return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return len(open), nil
}

// enrichAllocation attaches valuation metrics and the asset's daily move to
// an allocation loaded with its asset.
func enrichAllocation(alloc *models.Allocation, now time.Time) AllocationWithMetrics {
	var metrics performance.PositionMetrics
	if alloc.IsClosed() {
		metrics = performance.ValuePosition(alloc, alloc.ExitPrice, now)
		if alloc.RealizedGainLoss.Valid {
			metrics.GainLossAmount = alloc.RealizedGainLoss.Decimal
			if cost := alloc.TotalCost(); cost.IsPositive() {
				metrics.GainLossPercent = metrics.GainLossAmount.
					Div(cost).
					Mul(decimal.NewFromInt(100))
			}
		}
	} else {
		metrics = performance.ValuePosition(alloc, alloc.Asset.CurrentPrice, now)
	}

	return AllocationWithMetrics{
		Allocation:              *alloc,
		Metrics:                 metrics,
		AssetDailyChange:        alloc.Asset.DailyChange,
		AssetDailyChangePercent: alloc.Asset.DailyChangePercent,
	}
}
