package datasource

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/models"
)

const simulatedName = "simulated"

// SimulatedOddsSource prices runners from a seeded generator.
// The same seed and race ID always produce the same prices.
type SimulatedOddsSource struct {
	seed    int64
	runners int
	minOdds float64
	maxOdds float64
}

// NewSimulatedOddsSource creates a simulated odds source from configuration
func NewSimulatedOddsSource(cfg config.OddsConfig) *SimulatedOddsSource {
	s := &SimulatedOddsSource{
		seed:    cfg.SimulatedSeed,
		runners: cfg.SimulatedRunners,
		minOdds: cfg.SimulatedMinOdds,
		maxOdds: cfg.SimulatedMaxOdds,
	}
	if s.runners <= 0 {
		s.runners = 8
	}
	if s.minOdds <= 1.0 {
		s.minOdds = 2.0
	}
	if s.maxOdds <= s.minOdds {
		s.maxOdds = 15.0
	}
	return s
}

// Name returns the data source name
func (s *SimulatedOddsSource) Name() string {
	return simulatedName
}

// GetRunners prices the declared field, or the configured number of runners when unknown
func (s *SimulatedOddsSource) GetRunners(ctx context.Context, race models.Race) (models.OddsSet, error) {
	set := models.OddsSet{Race: race}
	if err := ctx.Err(); err != nil {
		return set, err
	}

	n := s.runners
	if race.DeclaredRunners > 0 {
		n = race.DeclaredRunners
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(race.ID))
	rng := rand.New(rand.NewSource(s.seed ^ int64(h.Sum64())))

	set.Runners = make([]models.Runner, n)
	for i := 0; i < n; i++ {
		price := s.minOdds + rng.Float64()*(s.maxOdds-s.minOdds)
		odds, _ := decimal.NewFromFloat(price).Round(2).Float64()
		set.Runners[i] = models.Runner{
			RaceID:  race.ID,
			Name:    runnerName(i),
			WinOdds: odds,
		}
	}

	return set, nil
}

// runnerName labels simulated runners "Runner A", "Runner B" and so on
func runnerName(i int) string {
	if i < 26 {
		return fmt.Sprintf("Runner %c", 'A'+i)
	}
	return fmt.Sprintf("Runner %d", i+1)
}
