package models

// Runner represents a horse with its market prices for one race
type Runner struct {
	RaceID    string   `json:"race_id"`
	Name      string   `json:"name" validate:"required"`
	WinOdds   float64  `json:"win_odds"`
	PlaceOdds *float64 `json:"place_odds,omitempty"`
	WinProb   *float64 `json:"win_prob,omitempty"`
	PlaceProb *float64 `json:"place_prob,omitempty"`
}

// HasValidWinOdds reports whether the win price is usable decimal odds
func (r *Runner) HasValidWinOdds() bool {
	return r.WinOdds > 1.0
}

// GetImpliedProbability returns the raw implied probability of the win price
func (r *Runner) GetImpliedProbability() float64 {
	if r.WinOdds <= 0 {
		return 0
	}
	return 1.0 / r.WinOdds
}
