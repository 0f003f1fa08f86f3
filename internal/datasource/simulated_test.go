package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/models"
)

func TestSimulatedOddsSourceIsDeterministic(t *testing.T) {
	cfg := config.OddsConfig{SimulatedSeed: 42, SimulatedRunners: 5, SimulatedMinOdds: 2.0, SimulatedMaxOdds: 15.0}
	race := models.Race{ID: "r1", Track: "Ascot"}

	first, err := NewSimulatedOddsSource(cfg).GetRunners(context.Background(), race)
	require.NoError(t, err)
	second, err := NewSimulatedOddsSource(cfg).GetRunners(context.Background(), race)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first.Runners, 5)
	assert.Equal(t, "Runner A", first.Runners[0].Name)
	assert.Equal(t, "Runner E", first.Runners[4].Name)
	for _, r := range first.Runners {
		assert.GreaterOrEqual(t, r.WinOdds, 2.0)
		assert.LessOrEqual(t, r.WinOdds, 15.0)
		assert.Equal(t, "r1", r.RaceID)
	}
}

func TestSimulatedOddsSourceUsesDeclaredField(t *testing.T) {
	src := NewSimulatedOddsSource(config.OddsConfig{SimulatedSeed: 1})

	set, err := src.GetRunners(context.Background(), models.Race{ID: "r2", Track: "York", DeclaredRunners: 12})
	require.NoError(t, err)
	assert.Len(t, set.Runners, 12)

	set, err = src.GetRunners(context.Background(), models.Race{ID: "r3", Track: "York"})
	require.NoError(t, err)
	assert.Len(t, set.Runners, 8)
}

func TestSimulatedOddsSourceVariesByRace(t *testing.T) {
	src := NewSimulatedOddsSource(config.OddsConfig{SimulatedSeed: 7, SimulatedRunners: 4})

	a, err := src.GetRunners(context.Background(), models.Race{ID: "a", Track: "Ascot"})
	require.NoError(t, err)
	b, err := src.GetRunners(context.Background(), models.Race{ID: "b", Track: "Ascot"})
	require.NoError(t, err)

	assert.NotEqual(t, a.Runners[0].WinOdds, b.Runners[0].WinOdds)
}

func TestRunnerName(t *testing.T) {
	assert.Equal(t, "Runner A", runnerName(0))
	assert.Equal(t, "Runner Z", runnerName(25))
	assert.Equal(t, "Runner 27", runnerName(26))
}
