package valuebet

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/yourusername/racing-value/internal/models"
)

// evPrecision is the number of decimal places at which two EVs count as tied
const evPrecision = 9

// Aggregator orders a race's results for presentation
type Aggregator struct {
	Threshold    float64
	PositiveOnly bool
}

// NewAggregator creates an aggregator. With positiveOnly set, only results whose
// best EV exceeds threshold are kept.
func NewAggregator(threshold float64, positiveOnly bool) *Aggregator {
	return &Aggregator{
		Threshold:    threshold,
		PositiveOnly: positiveOnly,
	}
}

// Aggregate sorts results by best EV descending, then runner name ascending.
// EVs equal to evPrecision decimal places are ties. The input slice is not modified.
func (a *Aggregator) Aggregate(results []models.ValueBetResult) []models.ValueBetResult {
	out := make([]models.ValueBetResult, 0, len(results))
	for _, r := range results {
		if a.PositiveOnly && !r.IsValue(a.Threshold) {
			continue
		}
		out = append(out, r)
	}

	evs := make([]decimal.Decimal, len(out))
	for i := range out {
		evs[i] = decimal.NewFromFloat(out[i].BestEV).Round(evPrecision)
	}
	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		x, y := order[i], order[j]
		if c := evs[x].Cmp(evs[y]); c != 0 {
			return c > 0
		}
		return out[x].Runner.Name < out[y].Runner.Name
	})

	sorted := make([]models.ValueBetResult, len(out))
	for i, idx := range order {
		sorted[i] = out[idx]
	}
	return sorted
}

// CountValue returns how many results clear the threshold
func (a *Aggregator) CountValue(results []models.ValueBetResult) int {
	n := 0
	for i := range results {
		if results[i].IsValue(a.Threshold) {
			n++
		}
	}
	return n
}
