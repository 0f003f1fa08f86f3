package valuebet

import (
	"math"
	"sort"
)

// PlacePolicy selects how a runner's place probability is derived
type PlacePolicy string

const (
	// PlacePolicyTopNShare divides a runner's win probability by the summed
	// probability of the top-places runners
	PlacePolicyTopNShare PlacePolicy = "top_n_share"
	// PlacePolicyScaled multiplies the win probability by the number of places, capped at 1
	PlacePolicyScaled PlacePolicy = "scaled"
	// PlacePolicyProvider uses the provider's place probability when present
	PlacePolicyProvider PlacePolicy = "provider"
)

// ParsePlacePolicy maps configuration to a PlacePolicy, defaulting to top_n_share
func ParsePlacePolicy(s string) PlacePolicy {
	switch PlacePolicy(s) {
	case PlacePolicyScaled, PlacePolicyProvider:
		return PlacePolicy(s)
	default:
		return PlacePolicyTopNShare
	}
}

// PlacesFor returns the number of each-way places paid for a field of numRunners
func PlacesFor(numRunners int) int {
	switch {
	case numRunners > 7:
		return 3
	case numRunners >= 5:
		return 2
	default:
		return 1
	}
}

// topShare returns the summed probability of the places most likely winners
func topShare(adjusted map[string]float64, places int) float64 {
	probs := make([]float64, 0, len(adjusted))
	for _, p := range adjusted {
		probs = append(probs, p)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(probs)))

	var sum float64
	for i := 0; i < places && i < len(probs); i++ {
		sum += probs[i]
	}
	return sum
}

// placeProbability applies policy to one runner. provided is the provider's estimate, if any.
func placeProbability(policy PlacePolicy, p float64, places int, top float64, provided *float64) float64 {
	switch policy {
	case PlacePolicyScaled:
		return math.Min(1, p*float64(places))
	case PlacePolicyProvider:
		if provided != nil && *provided >= 0 && *provided <= 1 {
			return *provided
		}
	}

	if top <= 0 {
		return 0
	}
	return math.Min(1, p/top)
}
