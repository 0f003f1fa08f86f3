package valuebet

import (
	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/models"
)

// DefaultPlaceFraction is the each-way place terms, one fifth of the win odds
const DefaultPlaceFraction = 0.2

// EngineConfig configures value bet evaluation
type EngineConfig struct {
	PlaceFraction float64
	PlacePolicy   PlacePolicy
}

// DefaultEngineConfig returns one-fifth place terms and the top_n_share policy
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PlaceFraction: DefaultPlaceFraction,
		PlacePolicy:   PlacePolicyTopNShare,
	}
}

// EngineConfigFromConfig builds engine settings from configuration
func EngineConfigFromConfig(cfg config.EngineConfig) EngineConfig {
	out := DefaultEngineConfig()
	if cfg.PlaceFraction > 0 {
		out.PlaceFraction = cfg.PlaceFraction
	}
	out.PlacePolicy = ParsePlacePolicy(cfg.PlacePolicy)
	return out
}

// Engine rates every runner of a race for win and place value. It holds no state.
type Engine struct {
	cfg EngineConfig
}

// NewEngine creates a value bet engine
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.PlaceFraction <= 0 {
		cfg.PlaceFraction = DefaultPlaceFraction
	}
	if cfg.PlacePolicy == "" {
		cfg.PlacePolicy = PlacePolicyTopNShare
	}
	return &Engine{cfg: cfg}
}

// Evaluate returns one result per runner, in the order of set.Runners.
// numRunners is the declared field size and decides how many places are paid.
func (e *Engine) Evaluate(set models.OddsSet, norm Normalization, numRunners int) []models.ValueBetResult {
	results := make([]models.ValueBetResult, 0, len(set.Runners))
	places := PlacesFor(numRunners)
	top := topShare(norm.Adjusted, places)

	for _, runner := range set.Runners {
		p, ok := norm.Adjusted[runner.Name]
		if err, invalid := norm.Invalid[runner.Name]; invalid || !ok {
			results = append(results, invalidResult(runner, places, err))
			continue
		}

		placeOdds := runner.WinOdds * e.cfg.PlaceFraction
		if runner.PlaceOdds != nil && *runner.PlaceOdds > 1.0 {
			placeOdds = *runner.PlaceOdds
		}
		placeProb := placeProbability(e.cfg.PlacePolicy, p, places, top, runner.PlaceProb)

		r := models.ValueBetResult{
			Runner:          runner,
			AdjustedWinProb: p,
			PlaceProb:       placeProb,
			PlaceOdds:       placeOdds,
			Places:          places,
			WinEV:           p*runner.WinOdds - 1,
			PlaceEV:         placeProb*placeOdds - 1,
		}

		if r.WinEV > r.PlaceEV {
			r.BestBetType, r.BestEV = models.BetTypeWin, r.WinEV
		} else {
			r.BestBetType, r.BestEV = models.BetTypePlace, r.PlaceEV
		}
		if r.BestEV < 0 {
			r.BestBetType = models.BetTypeNoValue
		}

		results = append(results, r)
	}

	return results
}

func invalidResult(runner models.Runner, places int, err error) models.ValueBetResult {
	r := models.ValueBetResult{
		Runner:      runner,
		Places:      places,
		WinEV:       -1,
		PlaceEV:     -1,
		BestBetType: models.BetTypeNoValue,
		BestEV:      -1,
		InvalidOdds: true,
		Note:        models.ErrInvalidOdds.Error(),
	}
	if err != nil {
		r.Note = err.Error()
	}
	return r
}
