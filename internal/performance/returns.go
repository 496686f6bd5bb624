package performance

import (
	"time"

	"github.com/shopspring/decimal"

	"custodia/internal/models"
)

// DailyReturn is the relative value change between two consecutive valued
// days of a series.
type DailyReturn struct {
	Date   time.Time `json:"date"`
	Return float64   `json:"return"`
}

// DailyReturns derives the return series from a portfolio series: for each
// consecutive pair of valued days with a positive prior value,
// (today - yesterday) / yesterday. Days without a valid predecessor are
// skipped, not zero-filled, so gaps in the series shrink the return count.
func DailyReturns(series Series) []DailyReturn {
	if len(series.Points) < 2 {
		return nil
	}

	returns := make([]DailyReturn, 0, len(series.Points)-1)
	for i := 1; i < len(series.Points); i++ {
		prev := series.Points[i-1].Value
		if !prev.IsPositive() {
			continue
		}
		change, _ := series.Points[i].Value.Sub(prev).Div(prev).Float64()
		returns = append(returns, DailyReturn{Date: series.Points[i].Date, Return: change})
	}
	return returns
}

// TimeWeightedReturn chain-links daily returns in date order:
// the product of (1 + r) over all available returns, minus one. Each return
// counts as a single compounding step regardless of the calendar gap to the
// next one; there is no sub-period value weighting. Returns 0 for an empty
// input.
func TimeWeightedReturn(returns []DailyReturn) float64 {
	if len(returns) == 0 {
		return 0
	}
	product := 1.0
	for i := range returns {
		product *= 1 + returns[i].Return
	}
	return product - 1
}

// SimpleReturn is (end - start) / start, or zero when the start value is not
// positive.
func SimpleReturn(startValue, endValue decimal.Decimal) decimal.Decimal {
	if !startValue.IsPositive() {
		return decimal.Zero
	}
	return endValue.Sub(startValue).Div(startValue)
}

// InternalRateOfReturn is not computed. The money-weighted return requires a
// root solver over the cash-flow schedule; it always reports zero and callers
// surface it as such rather than omitting the field.
func InternalRateOfReturn(cashFlows []decimal.Decimal) float64 {
	return 0
}

// HistoryChanges holds trailing price changes derived from an asset's bar
// history. Fields stay empty when the history does not reach back far enough.
type HistoryChanges struct {
	WeeklyChangePercent  decimal.NullDecimal `json:"weekly_change_percent,omitempty"`
	MonthlyChangePercent decimal.NullDecimal `json:"monthly_change_percent,omitempty"`
	YearlyChangePercent  decimal.NullDecimal `json:"yearly_change_percent,omitempty"`
}

// ChangesFromHistory computes trailing changes against the most recent
// reference points at least 7, 30 and 365 days old. The latest price is the
// provided current price when valid, otherwise the newest bar's close.
// History must be date-ascending.
func ChangesFromHistory(history []models.PriceBar, currentPrice decimal.NullDecimal, today time.Time) HistoryChanges {
	var changes HistoryChanges
	if len(history) == 0 {
		return changes
	}

	latest := history[len(history)-1].ClosePrice
	if currentPrice.Valid {
		latest = currentPrice.Decimal
	}

	var weekAgo, monthAgo, yearAgo decimal.NullDecimal
	for i := len(history) - 1; i >= 0; i-- {
		daysAgo := int(today.Sub(dateKey(history[i].Date)).Hours() / 24)
		if !weekAgo.Valid && daysAgo >= 7 {
			weekAgo = decimal.NewNullDecimal(history[i].ClosePrice)
		}
		if !monthAgo.Valid && daysAgo >= 30 {
			monthAgo = decimal.NewNullDecimal(history[i].ClosePrice)
		}
		if !yearAgo.Valid && daysAgo >= 365 {
			yearAgo = decimal.NewNullDecimal(history[i].ClosePrice)
		}
	}

	changes.WeeklyChangePercent = percentChange(latest, weekAgo)
	changes.MonthlyChangePercent = percentChange(latest, monthAgo)
	changes.YearlyChangePercent = percentChange(latest, yearAgo)
	return changes
}

func percentChange(latest decimal.Decimal, reference decimal.NullDecimal) decimal.NullDecimal {
	if !reference.Valid || !reference.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(
		latest.Sub(reference.Decimal).Div(reference.Decimal).Mul(hundred))
}
