package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"custodia/internal/cache"
	apperrors "custodia/internal/errors"
	"custodia/internal/logger"
	"custodia/internal/marketdata"
	"custodia/internal/models"
	"custodia/internal/stream"
)

// historyFetchDays is the calendar window the nightly sync requests per
// asset. Wide enough to bridge weekends and holidays since the last run.
const historyFetchDays = 5

// brt is the B3 exchange timezone. Brazil has no daylight saving since
// 2019, so a fixed offset is exact.
var brt = time.FixedZone("BRT", -3*60*60)

type priceSyncService struct {
	db          *gorm.DB
	provider    marketdata.Provider
	cache       *cache.PriceCache
	hub         *stream.Hub
	allocations AllocationServicer
	log         *zap.SugaredLogger
}

// NewPriceSyncService creates the service behind the nightly history sync
// and the live price broadcast.
func NewPriceSyncService(db *gorm.DB, provider marketdata.Provider, priceCache *cache.PriceCache, hub *stream.Hub, allocations AllocationServicer) PriceSyncServicer {
	return &priceSyncService{
		db:          db,
		provider:    provider,
		cache:       priceCache,
		hub:         hub,
		allocations: allocations,
		log:         logger.Named("pricesync"),
	}
}

// SyncDailyHistory walks every tradeable asset, appends the provider's
// newest daily bars, refreshes the asset price block and re-marks open
// positions. A failing asset is logged and skipped so one bad ticker cannot
// stall the run.
func (s *priceSyncService) SyncDailyHistory(ctx context.Context) (*SyncReport, error) {
	var assets []models.Asset
	err := s.db.Where("lifecycle_state = ? AND is_tradeable = ?", models.LifecycleActive, true).
		Find(&assets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	report := &SyncReport{}
	for i := range assets {
		if err := ctx.Err(); err != nil {
			return report, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		inserted, err := s.syncAsset(ctx, &assets[i])
		if err != nil {
			report.AssetsFailed++
			s.log.Warnw("daily sync failed for asset",
				"ticker", assets[i].Ticker,
				"error", err)
			continue
		}
		report.AssetsProcessed++
		report.BarsInserted += inserted
	}

	s.log.Infow("daily price sync finished",
		"processed", report.AssetsProcessed,
		"failed", report.AssetsFailed,
		"bars", report.BarsInserted)
	return report, nil
}

func (s *priceSyncService) syncAsset(ctx context.Context, asset *models.Asset) (int, error) {
	bars, err := s.provider.DailyHistory(ctx, asset.ProviderTicker(), historyFetchDays)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

	// The first new bar's return is derived against the newest stored close.
	storedPrior := decimal.Zero
	var last models.PriceBar
	err = s.db.Where("asset_id = ? AND date < ?", asset.ID, bars[0].Date).
		Order("date DESC").
		First(&last).Error
	switch {
	case err == nil:
		storedPrior = last.ClosePrice
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	inserted := 0
	previousClose := storedPrior
	for _, bar := range bars {
		var existing int64
		err := s.db.Model(&models.PriceBar{}).
			Where("asset_id = ? AND date = ?", asset.ID, bar.Date).
			Count(&existing).Error
		if err != nil {
			return inserted, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if existing > 0 {
			previousClose = bar.Close
			continue
		}

		record := models.PriceBar{
			AssetID:    asset.ID,
			Date:       bar.Date,
			OpenPrice:  bar.Open,
			HighPrice:  bar.High,
			LowPrice:   bar.Low,
			ClosePrice: bar.Close,
			Volume:     bar.Volume,
		}
		record.ComputeReturn(previousClose)
		if err := s.db.Create(&record).Error; err != nil {
			return inserted, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		inserted++
		previousClose = bar.Close
	}

	latest := bars[len(bars)-1]
	priorClose := storedPrior
	if len(bars) >= 2 {
		priorClose = bars[len(bars)-2].Close
	}

	now := time.Now()
	asset.UpdatePriceInfo(latest.Close, priorClose, latest.Volume, now)
	updates := map[string]interface{}{
		"current_price":        asset.CurrentPrice,
		"previous_close":       asset.PreviousClose,
		"daily_change":         asset.DailyChange,
		"daily_change_percent": asset.DailyChangePercent,
		"volume":               asset.Volume,
		"last_price_update":    asset.LastPriceUpdate,
	}
	if err := s.db.Model(asset).Updates(updates).Error; err != nil {
		return inserted, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if _, err := s.allocations.RefreshOpenPositions(asset.ID, latest.Close, now); err != nil {
		return inserted, err
	}

	s.cache.SetPrice(ctx, asset.ID, latest.Close)
	s.hub.Broadcast(stream.PriceUpdate{
		Ticker:             asset.Ticker,
		CurrentPrice:       latest.Close,
		DailyChange:        asset.DailyChange,
		DailyChangePercent: asset.DailyChangePercent,
		Volume:             latest.Volume,
		Timestamp:          now,
		MarketStatus:       marketStatus(now),
	})

	return inserted, nil
}

// BroadcastLivePrices fetches one batch of quotes for all tradeable assets
// and pushes the ones whose price moved to the stream hub, updating the
// stored price block and cache on the way. Returns how many updates went
// out.
func (s *priceSyncService) BroadcastLivePrices(ctx context.Context) (int, error) {
	var assets []models.Asset
	err := s.db.Where("lifecycle_state = ? AND is_tradeable = ?", models.LifecycleActive, true).
		Find(&assets).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(assets) == 0 {
		return 0, nil
	}

	tickers := make([]string, len(assets))
	byProviderTicker := make(map[string]*models.Asset, len(assets))
	for i := range assets {
		ticker := assets[i].ProviderTicker()
		tickers[i] = ticker
		byProviderTicker[ticker] = &assets[i]
	}

	quotes, fetchErrs := s.provider.Quotes(ctx, tickers)
	for i := range fetchErrs {
		s.log.Warnw("live quote fetch failed",
			"ticker", fetchErrs[i].Ticker,
			"error", fetchErrs[i].Err)
	}

	now := time.Now()
	status := marketStatus(now)
	broadcast := 0
	for _, quote := range quotes {
		asset, ok := byProviderTicker[quote.Ticker]
		if !ok {
			continue
		}
		if asset.CurrentPrice.Valid && asset.CurrentPrice.Decimal.Equal(quote.Price) {
			continue
		}

		previousClose := decimal.Zero
		if quote.PreviousClose.Valid {
			previousClose = quote.PreviousClose.Decimal
		}
		asset.UpdatePriceInfo(quote.Price, previousClose, quote.Volume, now)

		updates := map[string]interface{}{
			"current_price":        asset.CurrentPrice,
			"previous_close":       asset.PreviousClose,
			"daily_change":         asset.DailyChange,
			"daily_change_percent": asset.DailyChangePercent,
			"volume":               asset.Volume,
			"last_price_update":    asset.LastPriceUpdate,
		}
		if err := s.db.Model(asset).Updates(updates).Error; err != nil {
			return broadcast, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		s.cache.SetPrice(ctx, asset.ID, quote.Price)
		s.hub.Broadcast(stream.PriceUpdate{
			Ticker:             asset.Ticker,
			CurrentPrice:       quote.Price,
			DailyChange:        asset.DailyChange,
			DailyChangePercent: asset.DailyChangePercent,
			Volume:             quote.Volume,
			Timestamp:          now,
			MarketStatus:       status,
		})
		broadcast++
	}

	return broadcast, nil
}

// marketStatus reports the B3 session state: open weekdays 10:00 to 17:00
// Sao Paulo time, closed otherwise.
func marketStatus(at time.Time) string {
	local := at.In(brt)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return "closed"
	}
	if local.Hour() < 10 || local.Hour() >= 17 {
		return "closed"
	}
	return "open"
}
