// Package valuebet turns decimal odds into expected-value ratings for win and each-way bets.
package valuebet

import (
	"errors"
	"fmt"
	"math"

	"github.com/yourusername/racing-value/internal/models"
)

// ErrDuplicateRunner flags a runner name that appears more than once in a race
var ErrDuplicateRunner = errors.New("duplicate runner")

// Normalization holds the overround-free win probabilities of one race
type Normalization struct {
	Adjusted  map[string]float64 // runner name to adjusted win probability
	BookSum   float64            // sum of raw implied probabilities
	Overround float64            // BookSum - 1
	Invalid   map[string]error   // runners excluded from normalization
}

// ValidCount returns the number of runners that were normalized
func (n Normalization) ValidCount() int {
	return len(n.Adjusted)
}

// Normalizer removes the bookmaker margin from a race's implied probabilities
type Normalizer struct{}

// NewNormalizer creates a normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize computes raw = 1/odds for every runner with odds above 1.0 and scales the raw
// probabilities so they sum to 1. Runners with unusable odds are excluded and recorded in Invalid.
func (n *Normalizer) Normalize(set models.OddsSet) Normalization {
	out := Normalization{
		Adjusted: make(map[string]float64, len(set.Runners)),
		Invalid:  make(map[string]error),
	}

	counts := make(map[string]int, len(set.Runners))
	for _, r := range set.Runners {
		counts[r.Name]++
	}

	raw := make(map[string]float64, len(set.Runners))
	for _, r := range set.Runners {
		switch {
		case counts[r.Name] > 1:
			out.Invalid[r.Name] = fmt.Errorf("%w: %s", ErrDuplicateRunner, r.Name)
		case math.IsNaN(r.WinOdds) || math.IsInf(r.WinOdds, 0) || !r.HasValidWinOdds():
			out.Invalid[r.Name] = fmt.Errorf("%w: %v", models.ErrInvalidOdds, r.WinOdds)
		default:
			p := r.GetImpliedProbability()
			raw[r.Name] = p
			out.BookSum += p
		}
	}

	if out.BookSum <= 0 {
		return out
	}

	for name, p := range raw {
		out.Adjusted[name] = p / out.BookSum
	}
	out.Overround = out.BookSum - 1

	return out
}
