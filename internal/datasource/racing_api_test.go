package datasource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/racing-value/internal/clock"
	"github.com/yourusername/racing-value/internal/logger"
	"github.com/yourusername/racing-value/internal/models"
)

var errTestAuth = errors.New("test auth failure")

// stubAuth hands out tokens in order; Invalidate advances to the next one
type stubAuth struct {
	mu            sync.Mutex
	tokens        []string
	idx           int
	invalidations int
	err           error
}

func (s *stubAuth) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.tokens[s.idx], nil
}

func (s *stubAuth) Invalidate(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidations++
	if s.idx < len(s.tokens)-1 {
		s.idx++
	}
}

func newAPITestClient(baseURL string, auth Authenticator, mode string) *RacingAPIClient {
	fetcher := NewRateLimitedHTTPClient(HTTPClientConfig{
		Timeout: 2 * time.Second,
		Retry:   RetryPolicy{MaxAttempts: 1},
	}, logger.Discard(), WithClock(clock.NewFake(testStart)))

	return NewRacingAPIClient(fetcher, auth, RacingAPIOptions{
		BaseURL:  baseURL,
		AuthMode: mode,
	}, logger.Discard())
}

var testQuery = RaceQuery{
	Date:     time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
	Country:  "GB",
	RaceType: models.RaceTypeAll,
}

func TestRacingAPIListRaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/races", r.URL.Path)
		assert.Equal(t, "2024-02-03", r.URL.Query().Get("date"))
		assert.Equal(t, "GB", r.URL.Query().Get("country"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"races":[
			{"id":"r1","course":"Ascot","time":"13:30","type":"flat","distance":1609,"runners":[{},{},{}]},
			{"id":"r2","track":"Kempton","time":"2024-02-03T14:05:00Z","runners":9},
			{"track":"No Id"},
			"garbage"
		]}`))
	}))
	defer server.Close()

	client := newAPITestClient(server.URL, &stubAuth{tokens: []string{"tok-1"}}, AuthModePassword)

	races, err := client.ListRaces(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, races, 2)

	assert.Equal(t, "r1", races[0].ID)
	assert.Equal(t, "Ascot", races[0].Track)
	assert.Equal(t, models.RaceTypeFlat, races[0].Type)
	assert.Equal(t, 3, races[0].DeclaredRunners)
	require.NotNil(t, races[0].Distance)
	assert.Equal(t, 1609, *races[0].Distance)
	assert.Equal(t, time.Date(2024, 2, 3, 13, 30, 0, 0, time.UTC), races[0].StartTime)
	assert.Equal(t, "GB", races[0].Country)

	assert.Equal(t, "Kempton", races[1].Track)
	assert.Equal(t, 9, races[1].DeclaredRunners)
}

func TestRacingAPIListRacesFiltersRaceType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"r1","track":"Ascot","type":"flat"},
			{"id":"r2","track":"Cheltenham","type":"hurdle"}
		]`))
	}))
	defer server.Close()

	client := newAPITestClient(server.URL, nil, AuthModePassword)

	q := testQuery
	q.RaceType = models.RaceTypeJumps
	races, err := client.ListRaces(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, races, 1)
	assert.Equal(t, "Cheltenham", races[0].Track)
}

func TestRacingAPIListRacesEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newAPITestClient(server.URL, nil, AuthModePassword)

	races, err := client.ListRaces(context.Background(), testQuery)
	require.NoError(t, err)
	assert.NotNil(t, races)
	assert.Empty(t, races)
}

func TestRacingAPIListRacesNullList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"races":null}`))
	}))
	defer server.Close()

	client := newAPITestClient(server.URL, nil, AuthModePassword)

	races, err := client.ListRaces(context.Background(), testQuery)
	require.NoError(t, err)
	assert.NotNil(t, races)
	assert.Empty(t, races)
}

func TestRacingAPIListRacesMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected":true}`))
	}))
	defer server.Close()

	client := newAPITestClient(server.URL, nil, AuthModePassword)

	_, err := client.ListRaces(context.Background(), testQuery)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrMalformedResponse))
}

func TestRacingAPIGetRunners(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/races/r1/runners", r.URL.Path)
		_, _ = w.Write([]byte(`{"runners":[
			{"name":"Frankel","odds_decimal":2.0,"place_odds":"1.4"},
			{"name":"Enable","win_odds":"5/2","place_prob":0.6},
			{"name":"No Price"},
			{"name":"Bad Price","odds_decimal":"abc"},
			{"odds_decimal":3.0},
			{"name":"Odds On","odds_decimal":0.8}
		]}`))
	}))
	defer server.Close()

	client := newAPITestClient(server.URL, nil, AuthModePassword)
	race := models.Race{ID: "r1", Track: "Ascot"}

	set, err := client.GetRunners(context.Background(), race)
	require.NoError(t, err)
	assert.Equal(t, race, set.Race)
	require.Len(t, set.Runners, 3)

	assert.Equal(t, "Frankel", set.Runners[0].Name)
	assert.Equal(t, 2.0, set.Runners[0].WinOdds)
	require.NotNil(t, set.Runners[0].PlaceOdds)
	assert.InDelta(t, 1.4, *set.Runners[0].PlaceOdds, 1e-9)
	assert.Equal(t, "r1", set.Runners[0].RaceID)

	assert.InDelta(t, 3.5, set.Runners[1].WinOdds, 1e-9)
	require.NotNil(t, set.Runners[1].PlaceProb)
	assert.InDelta(t, 0.6, *set.Runners[1].PlaceProb, 1e-9)

	assert.Equal(t, "Odds On", set.Runners[2].Name)
	assert.False(t, set.Runners[2].HasValidWinOdds())
}

func TestRacingAPIReauthenticatesOnRejectedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"r1","track":"Ascot"}]`))
	}))
	defer server.Close()

	auth := &stubAuth{tokens: []string{"stale", "fresh"}}
	client := newAPITestClient(server.URL, auth, AuthModePassword)

	races, err := client.ListRaces(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Len(t, races, 1)
	assert.Equal(t, 1, auth.invalidations)
}

func TestRacingAPIRejectedTwiceFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	auth := &stubAuth{tokens: []string{"a", "b"}}
	client := newAPITestClient(server.URL, auth, AuthModePassword)

	_, err := client.ListRaces(context.Background(), testQuery)
	require.Error(t, err)
	assert.True(t, IsAuthRejected(err))

	var dsErr DataSourceError
	require.True(t, errors.As(err, &dsErr))
	assert.Equal(t, ErrCodeAuthenticationFailed, dsErr.Code)
}

func TestRacingAPIKeyModeUsesQueryParameter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.URL.Query().Get("apiKey"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newAPITestClient(server.URL, &stubAuth{tokens: []string{"key-123"}}, AuthModeAPIKey)

	_, err := client.ListRaces(context.Background(), testQuery)
	require.NoError(t, err)
}

func TestRacingAPIPropagatesAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called without a token")
	}))
	defer server.Close()

	client := newAPITestClient(server.URL, &stubAuth{err: errTestAuth}, AuthModePassword)

	_, err := client.GetRunners(context.Background(), models.Race{ID: "r1", Track: "Ascot"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errTestAuth))
}
