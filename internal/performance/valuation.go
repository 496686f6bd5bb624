// Package performance contains the portfolio analytics core: position
// valuation, portfolio time-series reconstruction, return chaining, and
// cash-flow aggregation. Everything here is a pure transformation over
// already-fetched collections; missing data degrades to omission or zero,
// never to an error.
package performance

import (
	"time"

	"github.com/shopspring/decimal"

	"custodia/internal/models"
)

var hundred = decimal.NewFromInt(100)

// PositionMetrics holds the point-in-time valuation of a single position.
type PositionMetrics struct {
	CurrentValue    decimal.Decimal `json:"current_value"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	GainLossAmount  decimal.Decimal `json:"gain_loss_amount"`
	GainLossPercent decimal.Decimal `json:"gain_loss_percent"`
	DaysHeld        int             `json:"days_held"`
}

// ValuePosition computes the valuation of an allocation against a current
// price. A missing price values the position at zero. The percentage is zero
// whenever the cost basis is not positive.
func ValuePosition(alloc *models.Allocation, currentPrice decimal.NullDecimal, now time.Time) PositionMetrics {
	currentValue := decimal.Zero
	if currentPrice.Valid {
		currentValue = alloc.Quantity.Mul(currentPrice.Decimal)
	}

	totalCost := alloc.TotalCost()
	gainLoss := currentValue.Sub(totalCost)

	gainLossPercent := decimal.Zero
	if totalCost.IsPositive() {
		gainLossPercent = gainLoss.Div(totalCost).Mul(hundred)
	}

	return PositionMetrics{
		CurrentValue:    currentValue,
		TotalCost:       totalCost,
		GainLossAmount:  gainLoss,
		GainLossPercent: gainLossPercent,
		DaysHeld:        daysHeld(alloc, now),
	}
}

func daysHeld(alloc *models.Allocation, now time.Time) int {
	switch {
	case alloc.IsActive:
		return int(now.Sub(alloc.PurchaseDate).Hours() / 24)
	case alloc.ExitDate != nil:
		return int(alloc.ExitDate.Sub(alloc.PurchaseDate).Hours() / 24)
	default:
		return 0
	}
}

// ClosePosition terminates an open allocation: stores the exit event, flips
// the active flag, computes the realized gain/loss and clears the
// mark-to-market fields. Preconditions (position open, exit price positive)
// are the caller's responsibility and are checked one layer up, before any
// mutation happens here.
func ClosePosition(alloc *models.Allocation, exitPrice decimal.Decimal, exitDate time.Time, exitFees decimal.Decimal) {
	proceeds := alloc.Quantity.Mul(exitPrice)
	realized := proceeds.Sub(alloc.TotalCost().Add(exitFees))

	alloc.IsActive = false
	alloc.ExitPrice = decimal.NewNullDecimal(exitPrice)
	alloc.ExitDate = &exitDate
	alloc.ExitFees = decimal.NewNullDecimal(exitFees)
	alloc.RealizedGainLoss = decimal.NewNullDecimal(realized)

	alloc.UnrealizedGainLoss = decimal.NullDecimal{}
	alloc.UnrealizedGainLossPercent = decimal.NullDecimal{}
}

// RefreshUnrealized recomputes the mark-to-market fields of an open
// allocation against a fresh price and stamps the check time. Callers must
// not invoke it on closed positions; the unrealized pair is meaningless
// after close.
func RefreshUnrealized(alloc *models.Allocation, currentPrice decimal.Decimal, at time.Time) {
	metrics := ValuePosition(alloc, decimal.NewNullDecimal(currentPrice), at)
	alloc.UnrealizedGainLoss = decimal.NewNullDecimal(metrics.GainLossAmount)
	alloc.UnrealizedGainLossPercent = decimal.NewNullDecimal(metrics.GainLossPercent)
	alloc.LastPriceCheck = &at
}
