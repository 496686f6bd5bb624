package models

import (
	"time"

	"custodia/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceBar represents one trading day of price history for an asset.
// This is immutable time-series data: no Base embed, no soft deletes.
// Rows are unique per (asset, date); the derived return fields are computed
// once at insertion from the prior bar and never touched again.
type PriceBar struct {
	ID      string    `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID string    `gorm:"type:uuid;not null;uniqueIndex:uq_price_bars_asset_date" json:"asset_id"`
	Date    time.Time `gorm:"type:date;not null;uniqueIndex:uq_price_bars_asset_date" json:"date"`

	OpenPrice     decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"open_price,omitempty"`
	HighPrice     decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"high_price,omitempty"`
	LowPrice      decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"low_price,omitempty"`
	ClosePrice    decimal.Decimal     `gorm:"type:numeric(12,4);not null" json:"close_price"`
	AdjustedClose decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"adjusted_close,omitempty"`
	Volume        int64               `json:"volume,omitempty"`

	// Derived at insertion from the prior bar's close
	DailyReturn decimal.NullDecimal `gorm:"type:numeric(10,6)" json:"daily_return,omitempty"`
	PriceChange decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"price_change,omitempty"`

	Source      string `gorm:"not null;default:'yahoo_finance'" json:"source"`
	DataQuality string `gorm:"not null;default:'good'" json:"data_quality"`

	CreatedAt time.Time `json:"created_at"`

	Asset Asset `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (p *PriceBar) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}

// ComputeReturn fills the derived return fields against the prior close.
// Left empty when the prior close is missing or non-positive.
func (p *PriceBar) ComputeReturn(previousClose decimal.Decimal) {
	if !previousClose.IsPositive() {
		return
	}
	change := p.ClosePrice.Sub(previousClose)
	p.PriceChange = decimal.NewNullDecimal(change)
	p.DailyReturn = decimal.NewNullDecimal(
		change.Div(previousClose).Mul(decimal.NewFromInt(100)))
}
