package performance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"custodia/internal/models"
)

// Point is one valued day of a portfolio series.
type Point struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Series is a day-by-day reconstruction of a portfolio's market value.
type Series struct {
	Points     []Point         `json:"points"`
	StartValue decimal.Decimal `json:"start_value"`
	EndValue   decimal.Decimal `json:"end_value"`
}

// BuildSeries reconstructs the portfolio value for every date that has at
// least one price bar: day value is the sum of quantity times close over the
// allocations whose asset has a bar on that exact date. The result is sparse
// on purpose. Dates with no bars are absent rather than zero-filled, and
// days whose computed value is zero are dropped as "no data".
//
// Allocations are assumed pre-filtered to those overlapping the query window;
// per-day holding windows are not rechecked here, so a bar on a day outside
// an individual allocation's own holding window still counts it. Tightening
// that would rewrite historical valuations for every client.
func BuildSeries(allocations []models.Allocation, bars []models.PriceBar) Series {
	closeByAsset := make(map[string]map[time.Time]decimal.Decimal)
	dateSet := make(map[time.Time]struct{})

	for i := range bars {
		day := dateKey(bars[i].Date)
		byDate, ok := closeByAsset[bars[i].AssetID]
		if !ok {
			byDate = make(map[time.Time]decimal.Decimal)
			closeByAsset[bars[i].AssetID] = byDate
		}
		byDate[day] = bars[i].ClosePrice
		dateSet[day] = struct{}{}
	}

	days := make([]time.Time, 0, len(dateSet))
	for day := range dateSet {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	points := make([]Point, 0, len(days))
	for _, day := range days {
		dayValue := decimal.Zero
		for i := range allocations {
			if close, ok := closeByAsset[allocations[i].AssetID][day]; ok {
				dayValue = dayValue.Add(allocations[i].Quantity.Mul(close))
			}
		}
		if dayValue.IsPositive() {
			points = append(points, Point{Date: day, Value: dayValue})
		}
	}

	series := Series{Points: points, StartValue: decimal.Zero, EndValue: decimal.Zero}
	if len(points) > 0 {
		series.StartValue = points[0].Value
		series.EndValue = points[len(points)-1].Value
	}
	return series
}

// dateKey normalizes a timestamp to its calendar day in UTC so bars from
// different sources align on the same key.
func dateKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
