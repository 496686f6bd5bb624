package models

import (
	"time"

	"custodia/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MetricPeriod is the granularity of a recorded performance metric.
type MetricPeriod string

const (
	MetricDaily   MetricPeriod = "daily"
	MetricWeekly  MetricPeriod = "weekly"
	MetricMonthly MetricPeriod = "monthly"
)

// PerformanceMetric is a recorded point-in-time rollup of a client's
// portfolio, written by the daily valuation job to shortcut dashboard
// queries. Immutable time-series data: no Base embed, no soft deletes.
// Unique per (client, period type, period date); re-runs upsert in place.
type PerformanceMetric struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID string `gorm:"type:uuid;not null;uniqueIndex:uq_performance_client_period" json:"client_id"`

	PeriodType MetricPeriod `gorm:"not null;uniqueIndex:uq_performance_client_period" json:"period_type"`
	PeriodDate time.Time    `gorm:"type:date;not null;uniqueIndex:uq_performance_client_period" json:"period_date"`

	TotalInvested        decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"total_invested"`
	CurrentValue         decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"current_value"`
	TotalGainLoss        decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"total_gain_loss"`
	TotalGainLossPercent decimal.Decimal `gorm:"type:numeric(8,4);not null" json:"total_gain_loss_percent"`

	ActivePositions int `gorm:"not null;default:0" json:"active_positions"`

	CalculatedAt time.Time `gorm:"not null" json:"calculated_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (p *PerformanceMetric) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}
