package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"custodia/internal/marketdata"
	"custodia/internal/models"
	"custodia/internal/pagination"
	"custodia/internal/testutil"
)

// fakeProvider is a scriptable market data provider for service tests.
type fakeProvider struct {
	quotes  func(tickers []string) ([]marketdata.Quote, []marketdata.FetchError)
	history func(ticker string, days int) ([]marketdata.Bar, error)
}

var _ marketdata.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Name() string { return "Fake Provider" }

func (f *fakeProvider) Quotes(_ context.Context, tickers []string) ([]marketdata.Quote, []marketdata.FetchError) {
	if f.quotes == nil {
		return nil, nil
	}
	return f.quotes(tickers)
}

func (f *fakeProvider) DailyHistory(_ context.Context, ticker string, days int) ([]marketdata.Bar, error) {
	if f.history == nil {
		return nil, nil
	}
	return f.history(ticker, days)
}

func singleQuote(price string) func([]string) ([]marketdata.Quote, []marketdata.FetchError) {
	return func(tickers []string) ([]marketdata.Quote, []marketdata.FetchError) {
		return []marketdata.Quote{{
			Ticker: tickers[0],
			Price:  decimal.RequireFromString(price),
			AsOf:   time.Now(),
		}}, nil
	}
}

func TestCreateAsset(t *testing.T) {
	t.Run("valid_with_quote_and_backfill", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		today := time.Now().Truncate(24 * time.Hour)
		var requestedTicker string
		provider := &fakeProvider{
			quotes: func(tickers []string) ([]marketdata.Quote, []marketdata.FetchError) {
				requestedTicker = tickers[0]
				return []marketdata.Quote{{
					Ticker:        tickers[0],
					Price:         decimal.RequireFromString("34.50"),
					PreviousClose: decimal.NewNullDecimal(decimal.RequireFromString("34.00")),
					Volume:        12000,
					AsOf:          time.Now(),
				}}, nil
			},
			history: func(ticker string, days int) ([]marketdata.Bar, error) {
				return []marketdata.Bar{
					{Date: today.AddDate(0, 0, -2), Close: decimal.RequireFromString("33.00")},
					{Date: today.AddDate(0, 0, -1), Close: decimal.RequireFromString("34.00")},
				}, nil
			},
		}
		svc := NewAssetService(db, provider, nil)

		asset, err := svc.CreateAsset(context.Background(), CreateAssetInput{
			Ticker:     "petr4",
			Name:       "Petrobras PN",
			AssetClass: models.AssetClassStock,
		})
		testutil.AssertNoError(t, err)

		if asset.Ticker != "PETR4" {
			t.Errorf("expected uppercased ticker, got %s", asset.Ticker)
		}
		if requestedTicker != "PETR4.SA" {
			t.Errorf("expected provider lookup with .SA suffix, got %s", requestedTicker)
		}
		if asset.Market != "BOVESPA" || asset.Currency != "BRL" {
			t.Errorf("expected BOVESPA/BRL defaults, got %s/%s", asset.Market, asset.Currency)
		}
		if !asset.CurrentPrice.Valid {
			t.Fatal("expected current price set from quote")
		}
		testutil.AssertDecimalEqual(t, "current_price", asset.CurrentPrice.Decimal, "34.50")
		if !asset.DailyChange.Valid {
			t.Fatal("expected daily change computed from previous close")
		}
		testutil.AssertDecimalEqual(t, "daily_change", asset.DailyChange.Decimal, "0.50")

		var bars []models.PriceBar
		if err := db.Where("asset_id = ?", asset.ID).Order("date asc").Find(&bars).Error; err != nil {
			t.Fatalf("failed to load bars: %v", err)
		}
		if len(bars) != 2 {
			t.Fatalf("expected 2 backfilled bars, got %d", len(bars))
		}
		if bars[0].DailyReturn.Valid {
			t.Error("expected first bar without a derived return")
		}
		if !bars[1].DailyReturn.Valid {
			t.Fatal("expected second bar with a derived return")
		}
		testutil.AssertDecimalEqual(t, "price_change", bars[1].PriceChange.Decimal, "1")
	})

	t.Run("missing_ticker", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		_, err := svc.CreateAsset(context.Background(), CreateAssetInput{
			Name:       "No Ticker",
			AssetClass: models.AssetClassStock,
		})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("duplicate_ticker", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{quotes: singleQuote("10")}, nil)

		existing := testutil.CreateTestAsset(t, db)

		_, err := svc.CreateAsset(context.Background(), CreateAssetInput{
			Ticker:     existing.Ticker,
			Name:       "Clone",
			AssetClass: models.AssetClassStock,
		})
		testutil.AssertAppError(t, err, "DUPLICATE_TICKER")
	})

	t.Run("ticker_not_covered_by_provider", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		provider := &fakeProvider{
			quotes: func(tickers []string) ([]marketdata.Quote, []marketdata.FetchError) {
				return nil, []marketdata.FetchError{{Ticker: tickers[0], Err: errors.New("no data")}}
			},
		}
		svc := NewAssetService(db, provider, nil)

		_, err := svc.CreateAsset(context.Background(), CreateAssetInput{
			Ticker:     "GHOST",
			Name:       "Ghost Corp",
			AssetClass: models.AssetClassStock,
		})
		testutil.AssertAppError(t, err, "TICKER_NOT_COVERED")

		var count int64
		db.Model(&models.Asset{}).Count(&count)
		if count != 0 {
			t.Errorf("expected no asset created, got %d", count)
		}
	})

	t.Run("backfill_failure_keeps_asset", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		provider := &fakeProvider{
			quotes: singleQuote("10"),
			history: func(string, int) ([]marketdata.Bar, error) {
				return nil, errors.New("history endpoint down")
			},
		}
		svc := NewAssetService(db, provider, nil)

		asset, err := svc.CreateAsset(context.Background(), CreateAssetInput{
			Ticker:     "VALE3",
			Name:       "Vale ON",
			AssetClass: models.AssetClassStock,
		})
		testutil.AssertNoError(t, err)

		var count int64
		db.Model(&models.PriceBar{}).Where("asset_id = ?", asset.ID).Count(&count)
		if count != 0 {
			t.Errorf("expected no bars after failed backfill, got %d", count)
		}
	})
}

func TestGetAssets(t *testing.T) {
	t.Run("default_lists_active_only", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		testutil.CreateTestAsset(t, db)
		gone := testutil.CreateTestAsset(t, db)
		db.Model(gone).Update("lifecycle_state", models.LifecycleDeactivated)

		page, err := svc.GetAssets(pagination.PageRequest{}, pagination.SortRequest{}, AssetFilter{})
		testutil.AssertNoError(t, err)

		if page.TotalItems != 1 {
			t.Errorf("expected 1 active asset, got %d", page.TotalItems)
		}
	})

	t.Run("inactive_filter", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		testutil.CreateTestAsset(t, db)
		gone := testutil.CreateTestAsset(t, db)
		db.Model(gone).Update("lifecycle_state", models.LifecycleDeactivated)

		active := false
		page, err := svc.GetAssets(pagination.PageRequest{}, pagination.SortRequest{}, AssetFilter{Active: &active})
		testutil.AssertNoError(t, err)

		if page.TotalItems != 1 || page.Data[0].ID != gone.ID {
			t.Errorf("expected only the deactivated asset, got %d items", page.TotalItems)
		}
	})

	t.Run("search_by_ticker", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		target := testutil.CreateTestAsset(t, db)
		testutil.CreateTestAsset(t, db)

		page, err := svc.GetAssets(pagination.PageRequest{}, pagination.SortRequest{}, AssetFilter{Search: target.Ticker})
		testutil.AssertNoError(t, err)

		if page.TotalItems != 1 || page.Data[0].ID != target.ID {
			t.Errorf("expected search to match exactly the target asset, got %d items", page.TotalItems)
		}
	})

	t.Run("filter_by_asset_class", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		testutil.CreateTestAsset(t, db)
		etf := testutil.CreateTestAsset(t, db)
		db.Model(etf).Update("asset_class", models.AssetClassETF)

		class := models.AssetClassETF
		page, err := svc.GetAssets(pagination.PageRequest{}, pagination.SortRequest{}, AssetFilter{AssetClass: &class})
		testutil.AssertNoError(t, err)

		if page.TotalItems != 1 || page.Data[0].ID != etf.ID {
			t.Errorf("expected only the etf, got %d items", page.TotalItems)
		}
	})
}

func TestGetAssetWithPerformance(t *testing.T) {
	t.Run("trailing_changes_from_bars", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		asset := testutil.CreateTestAssetWithPrice(t, db, "110")
		today := time.Now()
		testutil.CreateTestPriceBar(t, db, asset.ID, today.AddDate(0, 0, -10), "100")
		testutil.CreateTestPriceBar(t, db, asset.ID, today.AddDate(0, 0, -1), "108")

		got, err := svc.GetAssetWithPerformance(asset.ID)
		testutil.AssertNoError(t, err)

		if !got.WeeklyChangePercent.Valid {
			t.Fatal("expected weekly change from the 10 day old bar")
		}
		testutil.AssertDecimalEqual(t, "weekly_change_percent", got.WeeklyChangePercent.Decimal, "10")
		if got.YearlyChangePercent.Valid {
			t.Error("expected no yearly change without year old history")
		}
	})

	t.Run("no_history", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		asset := testutil.CreateTestAsset(t, db)

		got, err := svc.GetAssetWithPerformance(asset.ID)
		testutil.AssertNoError(t, err)

		if got.WeeklyChangePercent.Valid || got.MonthlyChangePercent.Valid || got.YearlyChangePercent.Valid {
			t.Error("expected empty changes without history")
		}
	})

	t.Run("not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		_, err := svc.GetAssetWithPerformance("0192aef1-0000-7000-8000-00000000dead")
		testutil.AssertAppError(t, err, "ASSET_NOT_FOUND")
	})
}

func TestUpdateAsset(t *testing.T) {
	t.Run("patches_only_given_fields", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		asset := testutil.CreateTestAsset(t, db)

		sector := "Energy"
		tradeable := false
		updated, err := svc.UpdateAsset(asset.ID, AssetPatch{
			Sector:      &sector,
			IsTradeable: &tradeable,
		})
		testutil.AssertNoError(t, err)

		if updated.Sector != "Energy" {
			t.Errorf("expected sector Energy, got %s", updated.Sector)
		}
		if updated.IsTradeable {
			t.Error("expected asset no longer tradeable")
		}
		if updated.Ticker != asset.Ticker {
			t.Errorf("expected ticker untouched, got %s", updated.Ticker)
		}
	})

	t.Run("empty_name_rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		asset := testutil.CreateTestAsset(t, db)

		empty := "  "
		_, err := svc.UpdateAsset(asset.ID, AssetPatch{Name: &empty})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestDeactivateAsset(t *testing.T) {
	t.Run("success_sets_delisted_date", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		asset := testutil.CreateTestAsset(t, db)

		testutil.AssertNoError(t, svc.DeactivateAsset(asset.ID))

		reloaded, err := svc.GetAssetByID(asset.ID)
		testutil.AssertNoError(t, err)
		if reloaded.LifecycleState != models.LifecycleDeactivated {
			t.Errorf("expected deactivated state, got %s", reloaded.LifecycleState)
		}
		if reloaded.IsTradeable {
			t.Error("expected delisted asset not tradeable")
		}
		if reloaded.DelistedDate == nil {
			t.Error("expected delisted date set")
		}
	})

	t.Run("already_deactivated", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		asset := testutil.CreateTestAsset(t, db)
		testutil.AssertNoError(t, svc.DeactivateAsset(asset.ID))

		err := svc.DeactivateAsset(asset.ID)
		testutil.AssertAppError(t, err, "ASSET_DEACTIVATED")
	})

	t.Run("open_allocations_block_deactivation", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAssetService(db, &fakeProvider{}, nil)

		asset := testutil.CreateTestAsset(t, db)
		client := testutil.CreateTestClient(t, db)
		alloc := testutil.CreateTestAllocation(t, db, client.ID, asset.ID)

		err := svc.DeactivateAsset(asset.ID)
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		// Closed positions do not block
		db.Model(alloc).Update("is_active", false)
		testutil.AssertNoError(t, svc.DeactivateAsset(asset.ID))
	})
}

func TestRefreshPrice(t *testing.T) {
	t.Run("updates_price_block", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		provider := &fakeProvider{
			quotes: func(tickers []string) ([]marketdata.Quote, []marketdata.FetchError) {
				return []marketdata.Quote{{
					Ticker:        tickers[0],
					Price:         decimal.RequireFromString("21.00"),
					PreviousClose: decimal.NewNullDecimal(decimal.RequireFromString("20.00")),
					Volume:        500,
					AsOf:          time.Now(),
				}}, nil
			},
		}
		svc := NewAssetService(db, provider, nil)

		asset := testutil.CreateTestAssetWithPrice(t, db, "19.80")

		refreshed, err := svc.RefreshPrice(context.Background(), asset.ID)
		testutil.AssertNoError(t, err)

		testutil.AssertDecimalEqual(t, "current_price", refreshed.CurrentPrice.Decimal, "21")
		testutil.AssertDecimalEqual(t, "previous_close", refreshed.PreviousClose.Decimal, "20")
		testutil.AssertDecimalEqual(t, "daily_change_percent", refreshed.DailyChangePercent.Decimal, "5")

		reloaded, err := svc.GetAssetByID(asset.ID)
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, "persisted_price", reloaded.CurrentPrice.Decimal, "21")
	})

	t.Run("provider_failure", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		provider := &fakeProvider{
			quotes: func(tickers []string) ([]marketdata.Quote, []marketdata.FetchError) {
				return nil, []marketdata.FetchError{{Ticker: tickers[0], Err: errors.New("rate limited")}}
			},
		}
		svc := NewAssetService(db, provider, nil)

		asset := testutil.CreateTestAssetWithPrice(t, db, "19.80")

		_, err := svc.RefreshPrice(context.Background(), asset.ID)
		testutil.AssertAppError(t, err, "TICKER_NOT_COVERED")
	})
}
