package models

// BetType is the classification of the best available bet on a runner
type BetType string

const (
	BetTypeWin     BetType = "Win"
	BetTypePlace   BetType = "Place"
	BetTypeNoValue BetType = "NoValue"
)

// ValueBetResult is the derived EV rating of one runner
type ValueBetResult struct {
	Runner          Runner  `json:"runner"`
	AdjustedWinProb float64 `json:"adjusted_win_prob"`
	PlaceProb       float64 `json:"place_prob"`
	PlaceOdds       float64 `json:"place_odds"`
	Places          int     `json:"places"`
	WinEV           float64 `json:"win_ev"`
	PlaceEV         float64 `json:"place_ev"`
	BestBetType     BetType `json:"best_bet_type"`
	BestEV          float64 `json:"best_ev"`
	InvalidOdds     bool    `json:"invalid_odds"`
	Note            string  `json:"note,omitempty"`
}

// IsValue reports whether the best bet clears threshold
func (v *ValueBetResult) IsValue(threshold float64) bool {
	return !v.InvalidOdds && v.BestEV > threshold
}

// RaceReport groups the value bet results of one race for rendering
type RaceReport struct {
	Race    Race             `json:"race"`
	Results []ValueBetResult `json:"results"`
	Notice  string           `json:"notice,omitempty"`
}
