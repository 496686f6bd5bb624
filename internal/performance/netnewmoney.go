package performance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"custodia/internal/models"
)

// Granularity selects the bucket size for cash-flow aggregation.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// FlowBucket is one period of net-new-money: inflows from openings, outflows
// from closings, their difference and the running total up to this bucket.
type FlowBucket struct {
	Period        time.Time       `json:"period"`
	Inflows       decimal.Decimal `json:"inflows"`
	Outflows      decimal.Decimal `json:"outflows"`
	NetFlow       decimal.Decimal `json:"net_flow"`
	CumulativeNet decimal.Decimal `json:"cumulative_net"`
}

// NetNewMoney buckets allocation events by period: every opening contributes
// its invested amount to the purchase-date bucket, every closing contributes
// quantity times exit price to the exit-date bucket. The result is the union
// of buckets touched by either side, chronologically ordered, with the
// running net initialized at zero before the first bucket. Periods with no
// events are omitted rather than zero-filled.
func NetNewMoney(allocations []models.Allocation, granularity Granularity) []FlowBucket {
	inflows := make(map[time.Time]decimal.Decimal)
	outflows := make(map[time.Time]decimal.Decimal)

	for i := range allocations {
		alloc := &allocations[i]

		opened := BucketStart(alloc.PurchaseDate, granularity)
		inflows[opened] = inflows[opened].Add(alloc.TotalInvested)

		if !alloc.IsActive && alloc.ExitDate != nil && alloc.ExitPrice.Valid {
			closed := BucketStart(*alloc.ExitDate, granularity)
			outflows[closed] = outflows[closed].Add(alloc.Quantity.Mul(alloc.ExitPrice.Decimal))
		}
	}

	keySet := make(map[time.Time]struct{}, len(inflows)+len(outflows))
	for k := range inflows {
		keySet[k] = struct{}{}
	}
	for k := range outflows {
		keySet[k] = struct{}{}
	}

	keys := make([]time.Time, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	buckets := make([]FlowBucket, 0, len(keys))
	cumulative := decimal.Zero
	for _, k := range keys {
		in := inflows[k]
		out := outflows[k]
		net := in.Sub(out)
		cumulative = cumulative.Add(net)
		buckets = append(buckets, FlowBucket{
			Period:        k,
			Inflows:       in,
			Outflows:      out,
			NetFlow:       net,
			CumulativeNet: cumulative,
		})
	}
	return buckets
}

// BucketStart truncates a timestamp to the start of its period bucket in
// UTC: the day itself, the Monday of its week, or the first of its month.
func BucketStart(t time.Time, granularity Granularity) time.Time {
	day := dateKey(t)
	switch granularity {
	case GranularityWeek:
		// Monday-based weeks, matching SQL date_trunc('week', ...)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}
