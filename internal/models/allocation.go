package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionType marks the direction of an allocation.
type PositionType string

const (
	PositionLong  PositionType = "long"
	PositionShort PositionType = "short"
)

// Allocation represents a client's position in one asset: an immutable
// purchase event plus a mutable close event. A position is either open
// (exit fields null, unrealized fields may be populated) or closed (exit
// fields populated, unrealized fields null, realized gain/loss populated),
// never both.
type Allocation struct {
	Base
	ClientID string `gorm:"type:uuid;not null;index" json:"client_id"`
	AssetID  string `gorm:"type:uuid;not null;index" json:"asset_id"`

	// Purchase event
	Quantity      decimal.Decimal `gorm:"type:numeric(15,4);not null" json:"quantity"`
	PurchasePrice decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"purchase_price"`
	PurchaseDate  time.Time       `gorm:"not null;index" json:"purchase_date"`
	TotalInvested decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"total_invested"`
	Fees          decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"fees"`
	PositionType  PositionType    `gorm:"not null;default:'long'" json:"position_type"`

	IsActive bool `gorm:"not null;default:true;index" json:"is_active"`

	// Mark-to-market fields, refreshed while open
	UnrealizedGainLoss        decimal.NullDecimal `gorm:"type:numeric(15,2)" json:"unrealized_gain_loss,omitempty"`
	UnrealizedGainLossPercent decimal.NullDecimal `gorm:"type:numeric(8,4)" json:"unrealized_gain_loss_percent,omitempty"`
	LastPriceCheck            *time.Time          `json:"last_price_check,omitempty"`

	// Close event
	ExitPrice        decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"exit_price,omitempty"`
	ExitDate         *time.Time          `json:"exit_date,omitempty"`
	ExitFees         decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"exit_fees,omitempty"`
	RealizedGainLoss decimal.NullDecimal `gorm:"type:numeric(15,2)" json:"realized_gain_loss,omitempty"`

	Notes   string `json:"notes,omitempty"`
	OrderID string `json:"order_id,omitempty"`

	Client Client `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Asset  Asset  `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
}

// TotalCost is the full cost basis: invested amount plus purchase fees.
func (a *Allocation) TotalCost() decimal.Decimal {
	return a.TotalInvested.Add(a.Fees)
}

// IsClosed reports whether the position has been terminated.
func (a *Allocation) IsClosed() bool {
	return !a.IsActive && a.ExitDate != nil
}
