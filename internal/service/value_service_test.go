package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/racing-value/internal/auth"
	"github.com/yourusername/racing-value/internal/clock"
	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/credentials"
	"github.com/yourusername/racing-value/internal/datasource"
	"github.com/yourusername/racing-value/internal/logger"
	"github.com/yourusername/racing-value/internal/models"
)

var testQuery = datasource.RaceQuery{
	Date:     time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
	Country:  "GB",
	RaceType: models.RaceTypeAll,
}

type stubCatalog struct {
	races []models.Race
	err   error
}

func (s *stubCatalog) Name() string { return "stub" }

func (s *stubCatalog) ListRaces(ctx context.Context, q datasource.RaceQuery) ([]models.Race, error) {
	return s.races, s.err
}

// stubOdds prices races from a table and records the order of calls
type stubOdds struct {
	mu     sync.Mutex
	odds   map[string][]float64
	errs   map[string]error
	called []string
}

func (s *stubOdds) Name() string { return "stub" }

func (s *stubOdds) GetRunners(ctx context.Context, race models.Race) (models.OddsSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called = append(s.called, race.ID)

	set := models.OddsSet{Race: race}
	if err := s.errs[race.ID]; err != nil {
		return set, err
	}
	for i, o := range s.odds[race.ID] {
		set.Runners = append(set.Runners, models.Runner{
			RaceID:  race.ID,
			Name:    fmt.Sprintf("Horse %c", 'A'+i),
			WinOdds: o,
		})
	}
	return set, nil
}

type stubSession struct {
	resets int
}

func (s *stubSession) ResetFailure() { s.resets++ }

func races(ids ...string) []models.Race {
	out := make([]models.Race, 0, len(ids))
	for i, id := range ids {
		out = append(out, models.Race{
			ID:        id,
			Track:     "Ascot",
			StartTime: time.Date(2024, 2, 3, 13, 30+i*5, 0, 0, time.UTC),
		})
	}
	return out
}

func newTestService(catalog datasource.RaceCatalog, odds datasource.OddsSource, session SessionResetter, opts ServiceOptions) *ValueBetService {
	return NewValueBetService(catalog, odds, session, opts, clock.NewFake(time.Date(2024, 2, 3, 9, 0, 0, 0, time.UTC)), logger.Discard())
}

func TestRunReferenceRace(t *testing.T) {
	odds := &stubOdds{odds: map[string][]float64{"r1": {2.0, 4.0, 5.0}}}
	svc := newTestService(&stubCatalog{races: races("r1")}, odds, nil, ServiceOptions{})

	report, err := svc.Run(context.Background(), testQuery)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "2024-02-03", report.Date)
	assert.Empty(t, report.Notice)
	require.Len(t, report.Races, 1)

	results := report.Races[0].Results
	require.Len(t, results, 3)
	for _, r := range results {
		assert.InDelta(t, 0.053, r.WinEV, 1e-3)
		assert.Equal(t, models.BetTypeWin, r.BestBetType)
	}
	assert.Equal(t, 3, report.ValueBets)
	assert.Empty(t, report.Races[0].Notice)
}

func TestRunNoRacesToday(t *testing.T) {
	odds := &stubOdds{}
	svc := newTestService(&stubCatalog{}, odds, nil, ServiceOptions{})

	report, err := svc.Run(context.Background(), testQuery)
	require.NoError(t, err)

	assert.Equal(t, NoticeNoRaces, report.Notice)
	assert.NotNil(t, report.Races)
	assert.Empty(t, report.Races)
	assert.Empty(t, odds.called)
}

func TestRunCatalogUnavailableIsDistinctFromNoRaces(t *testing.T) {
	catalog := &stubCatalog{err: &datasource.FetchError{Kind: datasource.KindNetworkUnavailable}}
	odds := &stubOdds{}
	svc := newTestService(catalog, odds, nil, ServiceOptions{})

	report, err := svc.Run(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Equal(t, NoticeCatalogUnavailable, report.Notice)
	assert.NotEqual(t, NoticeNoRaces, report.Notice)
	assert.NotNil(t, report.Races)
	assert.Empty(t, report.Races)
	assert.Empty(t, odds.called)
}

func TestRunCapsRaces(t *testing.T) {
	odds := &stubOdds{odds: map[string][]float64{}}
	ids := []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7"}
	for _, id := range ids {
		odds.odds[id] = []float64{2.5, 3.0, 6.0}
	}
	svc := newTestService(&stubCatalog{races: races(ids...)}, odds, nil, ServiceOptions{})

	report, err := svc.Run(context.Background(), testQuery)
	require.NoError(t, err)

	assert.Len(t, report.Races, DefaultMaxRaces)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5"}, odds.called)

	svc = newTestService(&stubCatalog{races: races(ids...)}, &stubOdds{odds: odds.odds}, nil, ServiceOptions{MaxRaces: 2})
	report, err = svc.Run(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Len(t, report.Races, 2)
}

func TestRunContainsRunnerFailures(t *testing.T) {
	odds := &stubOdds{
		odds: map[string][]float64{"r1": {2.0, 4.0, 5.0}, "r3": {2.0, 2.0}},
		errs: map[string]error{"r2": &datasource.FetchError{Kind: datasource.KindTimeout}},
	}
	svc := newTestService(&stubCatalog{races: races("r1", "r2", "r3", "r4")}, odds, nil, ServiceOptions{})

	report, err := svc.Run(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, report.Races, 4)

	assert.Len(t, report.Races[0].Results, 3)
	assert.Equal(t, NoticeNoRunnerData, report.Races[1].Notice)
	assert.Empty(t, report.Races[1].Results)
	assert.Len(t, report.Races[2].Results, 2)
	assert.Equal(t, NoticeNoValueBets, report.Races[2].Notice)
	assert.Equal(t, NoticeNoRunnerData, report.Races[3].Notice)
}

func TestRunInvalidRunnerAmongThree(t *testing.T) {
	odds := &stubOdds{odds: map[string][]float64{"r1": {2.0, 0.8, 4.0}}}
	svc := newTestService(&stubCatalog{races: races("r1")}, odds, nil, ServiceOptions{})

	report, err := svc.Run(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, report.Races, 1)

	results := report.Races[0].Results
	require.Len(t, results, 3)
	last := results[2]
	assert.Equal(t, "Horse B", last.Runner.Name)
	assert.True(t, last.InvalidOdds)
	assert.Equal(t, models.BetTypeNoValue, last.BestBetType)
}

func TestRunPositiveOnly(t *testing.T) {
	odds := &stubOdds{odds: map[string][]float64{"r1": {2.0, 0.8, 4.0}, "r2": {2.0, 2.0}}}
	svc := newTestService(&stubCatalog{races: races("r1", "r2")}, odds, nil, ServiceOptions{PositiveOnly: true})

	report, err := svc.Run(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, report.Races, 2)

	for _, r := range report.Races[0].Results {
		assert.False(t, r.InvalidOdds)
		assert.Greater(t, r.BestEV, 0.0)
	}
	assert.Empty(t, report.Races[1].Results)
	assert.Equal(t, NoticeNoValueBets, report.Races[1].Notice)
}

func TestRunAuthFailureShortCircuits(t *testing.T) {
	authErr := datasource.NewDataSourceError("racing_api", datasource.ErrCodeAuthenticationFailed,
		"could not obtain access token", auth.NewAuthenticationError("racing_api", "rejected", nil))
	odds := &stubOdds{
		odds: map[string][]float64{"r1": {2.0, 4.0, 5.0}, "r3": {2.0, 4.0}},
		errs: map[string]error{"r2": authErr},
	}
	session := &stubSession{}
	svc := newTestService(&stubCatalog{races: races("r1", "r2", "r3")}, odds, session, ServiceOptions{})

	report, err := svc.Run(context.Background(), testQuery)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrAuthFailure))

	require.NotNil(t, report)
	assert.Equal(t, NoticeNoData, report.Notice)
	require.Len(t, report.Races, 3)
	assert.Len(t, report.Races[0].Results, 3)
	assert.Equal(t, NoticeNoRunnerData, report.Races[1].Notice)
	assert.Equal(t, NoticeNoRunnerData, report.Races[2].Notice)
	assert.Equal(t, []string{"r1", "r2"}, odds.called)
	assert.Equal(t, 1, session.resets)
}

func TestRunCredentialMissing(t *testing.T) {
	catalog := &stubCatalog{err: fmt.Errorf("lookup: %w: racing_api", credentials.ErrCredentialMissing)}
	svc := newTestService(catalog, &stubOdds{}, nil, ServiceOptions{})

	report, err := svc.Run(context.Background(), testQuery)
	require.Error(t, err)
	assert.True(t, errors.Is(err, credentials.ErrCredentialMissing))
	assert.Empty(t, report.Races)
}

func TestRunCancelled(t *testing.T) {
	odds := &stubOdds{odds: map[string][]float64{"r1": {2.0, 4.0}}}
	svc := newTestService(&stubCatalog{races: races("r1")}, odds, nil, ServiceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, testQuery)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, odds.called)
}

func TestBuildRacingAPIEndToEnd(t *testing.T) {
	var tokenCalls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			mu.Lock()
			tokenCalls++
			mu.Unlock()
			_, _ = w.Write([]byte(`{"token":"tok-1"}`))
		case "/races":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`[{"id":"r1","course":"Ascot","time":"13:30","runners":3}]`))
		case "/races/r1/runners":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"runners":[
				{"name":"Alpha","odds_decimal":2.0},
				{"name":"Bravo","odds_decimal":"4.0"},
				{"name":"Charlie","odds_decimal":"4/1"}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			Catalog: "racing_api",
			RacingAPI: config.RacingAPIConfig{
				BaseURL:    server.URL,
				Credential: "racing_api",
				AuthMode:   "password",
				TokenPath:  "/token",
			},
		},
		Fetcher: config.FetcherConfig{
			Timeout:     2 * time.Second,
			MaxAttempts: 1,
			Backoff:     "fixed",
		},
		Auth:   config.AuthConfig{TokenTTL: time.Hour},
		Odds:   config.OddsConfig{Source: "live"},
		Engine: config.EngineConfig{PlaceFraction: 0.2, PlacePolicy: "top_n_share"},
		Credentials: []config.CredentialConfig{
			{Name: "racing_api", Username: "punter", Password: "secret"},
		},
	}

	components, err := Build(cfg, logger.Discard())
	require.NoError(t, err)
	defer components.Close()
	require.NotNil(t, components.Tokens)

	report, err := components.Service.Run(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, report.Races, 1)

	results := report.Races[0].Results
	require.Len(t, results, 3)
	assert.Equal(t, "Alpha", results[0].Runner.Name)
	assert.InDelta(t, 0.053, results[0].WinEV, 1e-3)
	assert.Equal(t, 1, tokenCalls)
	assert.Equal(t, auth.StateAuthenticated, components.Tokens.State())
}

func TestBuildSimulatedRequiresNoCredentialForOdds(t *testing.T) {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			Catalog:  "sportsdb",
			SportsDB: config.SportsDBConfig{BaseURL: "http://127.0.0.1:1", Credential: "thesportsdb"},
		},
		Fetcher: config.FetcherConfig{Timeout: time.Second, MaxAttempts: 1, Backoff: "fixed"},
		Odds:    config.OddsConfig{Source: "simulated"},
	}

	_, err := Build(cfg, logger.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, credentials.ErrCredentialMissing))

	cfg.Credentials = []config.CredentialConfig{{Name: "thesportsdb", APIKey: "3"}}
	components, err := Build(cfg, logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, components.Tokens)
	assert.Equal(t, "thesportsdb", components.Catalog.Name())
	assert.Equal(t, "simulated", components.Odds.Name())
}
