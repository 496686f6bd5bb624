package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass represents the type of tradeable instrument.
type AssetClass string

const (
	AssetClassStock  AssetClass = "stock"
	AssetClassETF    AssetClass = "etf"
	AssetClassFund   AssetClass = "fund"
	AssetClassBond   AssetClass = "bond"
	AssetClassCrypto AssetClass = "crypto"
	AssetClassREIT   AssetClass = "reit"
)

// Asset represents a tradeable instrument whose prices come from the market
// data provider. The current price block is a cache of the latest refresh;
// staleness is measurable via LastPriceUpdate.
type Asset struct {
	Base
	Ticker     string     `gorm:"uniqueIndex;not null" json:"ticker"`
	Name       string     `gorm:"not null" json:"name"`
	Sector     string     `json:"sector,omitempty"`
	Industry   string     `json:"industry,omitempty"`
	Market     string     `gorm:"not null" json:"market"`
	Currency   string     `gorm:"not null;default:'BRL'" json:"currency"`
	AssetClass AssetClass `gorm:"not null" json:"asset_class"`

	MarketCap         decimal.NullDecimal `gorm:"type:numeric(20,2)" json:"market_cap,omitempty"`
	SharesOutstanding decimal.NullDecimal `gorm:"type:numeric(15,0)" json:"shares_outstanding,omitempty"`

	// Current price info, cached from the provider
	CurrentPrice       decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"current_price,omitempty"`
	PreviousClose      decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"previous_close,omitempty"`
	DailyChange        decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"daily_change,omitempty"`
	DailyChangePercent decimal.NullDecimal `gorm:"type:numeric(8,4)" json:"daily_change_percent,omitempty"`
	Volume             int64               `json:"volume,omitempty"`

	IsTradeable    bool           `gorm:"default:true" json:"is_tradeable"`
	LifecycleState LifecycleState `gorm:"not null;default:'active'" json:"lifecycle_state"`
	DelistedDate   *time.Time     `json:"delisted_date,omitempty"`

	LastPriceUpdate   *time.Time `json:"last_price_update,omitempty"`
	PriceUpdateSource string     `gorm:"not null;default:'yahoo_finance'" json:"price_update_source"`

	Description string `json:"description,omitempty"`
	Website     string `json:"website,omitempty"`

	Allocations []Allocation `gorm:"foreignKey:AssetID" json:"allocations,omitempty"`
	PriceBars   []PriceBar   `gorm:"foreignKey:AssetID" json:"price_bars,omitempty"`
}

// IsBrazilian reports whether the asset trades on the Brazilian market.
func (a *Asset) IsBrazilian() bool {
	return a.Market == "BOVESPA" || strings.HasSuffix(a.Ticker, ".SA")
}

// ProviderTicker returns the ticker formatted for the market data provider.
// Brazilian tickers carry the .SA suffix.
func (a *Asset) ProviderTicker() string {
	if a.IsBrazilian() && !strings.HasSuffix(a.Ticker, ".SA") {
		return a.Ticker + ".SA"
	}
	return a.Ticker
}

// IsPriceStale reports whether the cached price is older than maxAge.
func (a *Asset) IsPriceStale(maxAge time.Duration) bool {
	if a.LastPriceUpdate == nil {
		return true
	}
	return time.Since(*a.LastPriceUpdate) > maxAge
}

// UpdatePriceInfo refreshes the cached price block. The daily change pair is
// recomputed only when the previous close is positive.
func (a *Asset) UpdatePriceInfo(price, previousClose decimal.Decimal, volume int64, at time.Time) {
	a.CurrentPrice = decimal.NewNullDecimal(price)
	a.PreviousClose = decimal.NewNullDecimal(previousClose)

	if previousClose.IsPositive() {
		change := price.Sub(previousClose)
		a.DailyChange = decimal.NewNullDecimal(change)
		a.DailyChangePercent = decimal.NewNullDecimal(
			change.Div(previousClose).Mul(decimal.NewFromInt(100)))
	}

	if volume > 0 {
		a.Volume = volume
	}
	a.LastPriceUpdate = &at
}
