package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"custodia/internal/cache"
	apperrors "custodia/internal/errors"
	"custodia/internal/logger"
	"custodia/internal/marketdata"
	"custodia/internal/models"
	"custodia/internal/pagination"
	"custodia/internal/performance"
)

// backfillDays is how much daily bar history a newly created asset receives.
const backfillDays = 365

var assetSortColumns = map[string]bool{
	"ticker":            true,
	"name":              true,
	"current_price":     true,
	"last_price_update": true,
	"created_at":        true,
}

type assetService struct {
	db       *gorm.DB
	provider marketdata.Provider
	cache    *cache.PriceCache
}

// NewAssetService creates a new asset service instance.
func NewAssetService(db *gorm.DB, provider marketdata.Provider, priceCache *cache.PriceCache) AssetServicer {
	return &assetService{db: db, provider: provider, cache: priceCache}
}

// CreateAsset registers an asset after confirming the market data provider
// covers its ticker. The current quote is stored and up to a year of daily
// bars is backfilled; a backfill failure leaves the asset created and is
// recovered by the next history sync.
func (s *assetService) CreateAsset(ctx context.Context, input CreateAssetInput) (*models.Asset, error) {
	ticker := strings.ToUpper(strings.TrimSpace(input.Ticker))
	name := strings.TrimSpace(input.Name)

	if ticker == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Ticker is required")
	}
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Name is required")
	}
	if input.AssetClass == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Asset class is required")
	}

	var count int64
	if err := s.db.Model(&models.Asset{}).Where("ticker = ?", ticker).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.ErrDuplicateTicker
	}

	asset := &models.Asset{
		Ticker:     ticker,
		Name:       name,
		Sector:     input.Sector,
		Industry:   input.Industry,
		Market:     input.Market,
		Currency:   input.Currency,
		AssetClass: input.AssetClass,

		IsTradeable:    true,
		LifecycleState: models.LifecycleActive,

		Description: input.Description,
		Website:     input.Website,
	}
	if asset.Market == "" {
		asset.Market = "BOVESPA"
	}
	if asset.Currency == "" {
		asset.Currency = "BRL"
	}

	quotes, fetchErrs := s.provider.Quotes(ctx, []string{asset.ProviderTicker()})
	if len(quotes) == 0 {
		if len(fetchErrs) > 0 {
			return nil, apperrors.Wrap(apperrors.ErrTickerNotCovered, fetchErrs[0].Err)
		}
		return nil, apperrors.ErrTickerNotCovered
	}
	quote := quotes[0]

	previousClose := decimal.Zero
	if quote.PreviousClose.Valid {
		previousClose = quote.PreviousClose.Decimal
	}
	asset.UpdatePriceInfo(quote.Price, previousClose, quote.Volume, quote.AsOf)

	if err := s.db.Create(asset).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, apperrors.ErrDuplicateTicker
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if inserted, err := s.backfillHistory(ctx, asset); err != nil {
		logger.Get().Warnw("price history backfill failed",
			"ticker", asset.Ticker,
			"error", err,
		)
	} else {
		logger.Get().Infow("price history backfilled",
			"ticker", asset.Ticker,
			"bars", inserted,
		)
	}

	s.cache.SetPrice(ctx, asset.ID, quote.Price)

	return asset, nil
}

// GetAssets returns a paginated list of assets. A nil filter.Active lists
// active assets only.
func (s *assetService) GetAssets(page pagination.PageRequest, sort pagination.SortRequest, filter AssetFilter) (*pagination.PageResponse[models.Asset], error) {
	page.Defaults()

	query := s.db.Model(&models.Asset{})

	state := models.LifecycleActive
	if filter.Active != nil && !*filter.Active {
		state = models.LifecycleDeactivated
	}
	query = query.Where("lifecycle_state = ?", state)

	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(ticker) LIKE ? OR LOWER(name) LIKE ?", pattern, pattern)
	}
	if filter.AssetClass != nil {
		query = query.Where("asset_class = ?", *filter.AssetClass)
	}
	if filter.Market != nil {
		query = query.Where("market = ?", *filter.Market)
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var assets []models.Asset
	err := query.
		Order(sort.OrderClause(assetSortColumns, "ticker")).
		Scopes(pagination.Paginate(page)).
		Find(&assets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(assets, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetAssetByID returns an asset by its ID.
func (s *assetService) GetAssetByID(id string) (*models.Asset, error) {
	var asset models.Asset
	if err := s.db.Where("id = ?", id).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAssetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &asset, nil
}

// GetAssetWithPerformance returns an asset with trailing week, month and
// year changes derived from its stored bar history.
func (s *assetService) GetAssetWithPerformance(id string) (*AssetWithPerformance, error) {
	asset, err := s.GetAssetByID(id)
	if err != nil {
		return nil, err
	}

	since := time.Now().AddDate(-1, 0, -7)
	var history []models.PriceBar
	err = s.db.
		Where("asset_id = ? AND date >= ?", id, since).
		Order("date asc").
		Find(&history).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return &AssetWithPerformance{
		Asset:          *asset,
		HistoryChanges: performance.ChangesFromHistory(history, asset.CurrentPrice, time.Now()),
	}, nil
}

// UpdateAsset applies a partial update to an asset. The ticker and the
// provider-owned price block are not updatable.
func (s *assetService) UpdateAsset(id string, patch AssetPatch) (*models.Asset, error) {
	asset, err := s.GetAssetByID(id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Name cannot be empty")
		}
		updates["name"] = name
	}
	if patch.Sector != nil {
		updates["sector"] = *patch.Sector
	}
	if patch.Industry != nil {
		updates["industry"] = *patch.Industry
	}
	if patch.Market != nil {
		updates["market"] = *patch.Market
	}
	if patch.Currency != nil {
		updates["currency"] = *patch.Currency
	}
	if patch.AssetClass != nil {
		updates["asset_class"] = *patch.AssetClass
	}
	if patch.IsTradeable != nil {
		updates["is_tradeable"] = *patch.IsTradeable
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Website != nil {
		updates["website"] = *patch.Website
	}

	if len(updates) > 0 {
		if err := s.db.Model(asset).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return asset, nil
}

// DeactivateAsset marks an asset as delisted. Its bar history and closed
// allocations are untouched; open positions must be closed first.
func (s *assetService) DeactivateAsset(id string) error {
	asset, err := s.GetAssetByID(id)
	if err != nil {
		return err
	}
	if asset.LifecycleState == models.LifecycleDeactivated {
		return apperrors.ErrAssetDeactivated
	}

	var open int64
	err = s.db.Model(&models.Allocation{}).
		Where("asset_id = ? AND is_active = ?", id, true).
		Count(&open).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if open > 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "Asset still has open allocations")
	}

	now := time.Now()
	updates := map[string]interface{}{
		"lifecycle_state": models.LifecycleDeactivated,
		"is_tradeable":    false,
		"delisted_date":   now,
	}
	if err := s.db.Model(asset).Updates(updates).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.cache.InvalidatePrice(context.Background(), id)

	return nil
}

// RefreshPrice fetches a fresh quote for the asset and stores it.
func (s *assetService) RefreshPrice(ctx context.Context, id string) (*models.Asset, error) {
	asset, err := s.GetAssetByID(id)
	if err != nil {
		return nil, err
	}

	quotes, fetchErrs := s.provider.Quotes(ctx, []string{asset.ProviderTicker()})
	if len(quotes) == 0 {
		if len(fetchErrs) > 0 {
			return nil, apperrors.Wrap(apperrors.ErrTickerNotCovered, fetchErrs[0].Err)
		}
		return nil, apperrors.ErrTickerNotCovered
	}
	quote := quotes[0]

	previousClose := decimal.Zero
	if quote.PreviousClose.Valid {
		previousClose = quote.PreviousClose.Decimal
	}
	asset.UpdatePriceInfo(quote.Price, previousClose, quote.Volume, quote.AsOf)

	updates := map[string]interface{}{
		"current_price":        asset.CurrentPrice,
		"previous_close":       asset.PreviousClose,
		"daily_change":         asset.DailyChange,
		"daily_change_percent": asset.DailyChangePercent,
		"volume":               asset.Volume,
		"last_price_update":    asset.LastPriceUpdate,
	}
	if err := s.db.Model(asset).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.cache.SetPrice(ctx, asset.ID, quote.Price)

	return asset, nil
}

// backfillHistory pulls up to a year of daily bars for a new asset and
// stores them with derived returns chained off each prior close.
func (s *assetService) backfillHistory(ctx context.Context, asset *models.Asset) (int, error) {
	bars, err := s.provider.DailyHistory(ctx, asset.ProviderTicker(), backfillDays)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

	records := make([]models.PriceBar, 0, len(bars))
	var previousClose decimal.Decimal
	for i, bar := range bars {
		record := models.PriceBar{
			AssetID:    asset.ID,
			Date:       bar.Date,
			OpenPrice:  bar.Open,
			HighPrice:  bar.High,
			LowPrice:   bar.Low,
			ClosePrice: bar.Close,
			Volume:     bar.Volume,
		}
		if i > 0 {
			record.ComputeReturn(previousClose)
		}
		previousClose = bar.Close
		records = append(records, record)
	}

	if err := s.db.Create(&records).Error; err != nil {
		return 0, err
	}
	return len(records), nil
}
