package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/racing-value/internal/logger"
	"github.com/yourusername/racing-value/internal/models"
)

const racingAPIName = "racing_api"

// Authentication modes of the racing API
const (
	AuthModePassword = "password"
	AuthModeAPIKey   = "api_key"
)

// RacingAPIOptions configures a RacingAPIClient
type RacingAPIOptions struct {
	BaseURL     string
	AuthMode    string
	APIKeyParam string
	Fields      FieldNames
}

// RacingAPIClient implements RaceCatalog and OddsSource for a token-authenticated racing API
type RacingAPIClient struct {
	fetcher     Fetcher
	auth        Authenticator
	baseURL     string
	authMode    string
	apiKeyParam string
	fields      FieldNames
	validate    *validator.Validate
	logger      *logrus.Entry
}

// NewRacingAPIClient creates a new racing API client. auth may be nil for open endpoints.
func NewRacingAPIClient(fetcher Fetcher, auth Authenticator, opts RacingAPIOptions, log *logrus.Logger) *RacingAPIClient {
	if opts.AuthMode == "" {
		opts.AuthMode = AuthModePassword
	}
	if opts.APIKeyParam == "" {
		opts.APIKeyParam = "apiKey"
	}
	if len(opts.Fields.Races) == 0 {
		opts.Fields = DefaultFieldNames()
	}

	return &RacingAPIClient{
		fetcher:     fetcher,
		auth:        auth,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		authMode:    opts.AuthMode,
		apiKeyParam: opts.APIKeyParam,
		fields:      opts.Fields,
		validate:    validator.New(),
		logger:      logger.Component(log, racingAPIName),
	}
}

// Name returns the data source name
func (c *RacingAPIClient) Name() string {
	return racingAPIName
}

// ListRaces retrieves the races of a day, filtered by country on the server
func (c *RacingAPIClient) ListRaces(ctx context.Context, q RaceQuery) ([]models.Race, error) {
	query := url.Values{}
	query.Set("date", q.DateString())
	if q.Country != "" {
		query.Set("country", q.Country)
	}
	if q.RaceType != "" {
		query.Set("type", string(q.RaceType))
	}

	resp, err := c.get(ctx, "/races", query)
	if err != nil {
		return nil, err
	}

	var payload interface{}
	if err := resp.DecodeJSON(&payload); err != nil {
		return nil, NewDataSourceError(racingAPIName, ErrCodeInvalidData, "failed to parse race list",
			fmt.Errorf("%w: %v", models.ErrMalformedResponse, err))
	}

	entries, ok := listField(payload, c.fields.Races)
	if !ok {
		return nil, NewDataSourceError(racingAPIName, ErrCodeInvalidData, "race list not found in response",
			models.ErrMalformedResponse)
	}

	races := make([]models.Race, 0, len(entries))
	for i, entry := range entries {
		race, err := c.convertRace(entry, q)
		if err != nil {
			c.logger.WithField("index", i).WithError(err).Warn("Skipping malformed race entry")
			continue
		}
		if !q.RaceType.Matches(race.Type) {
			continue
		}
		if q.Country != "" && race.Country != "" && !strings.EqualFold(race.Country, q.Country) {
			continue
		}
		races = append(races, race)
	}

	return races, nil
}

// GetRunners retrieves the priced runners of a race
func (c *RacingAPIClient) GetRunners(ctx context.Context, race models.Race) (models.OddsSet, error) {
	set := models.OddsSet{Race: race}

	resp, err := c.get(ctx, "/races/"+url.PathEscape(race.ID)+"/runners", nil)
	if err != nil {
		return set, err
	}

	var payload interface{}
	if err := resp.DecodeJSON(&payload); err != nil {
		return set, NewDataSourceError(racingAPIName, ErrCodeInvalidData, "failed to parse runners",
			fmt.Errorf("%w: %v", models.ErrMalformedResponse, err))
	}

	entries, ok := listField(payload, c.fields.Runners)
	if !ok {
		return set, NewDataSourceError(racingAPIName, ErrCodeInvalidData, "runner list not found in response",
			models.ErrMalformedResponse)
	}

	for i, entry := range entries {
		runner, err := c.convertRunner(entry, race.ID)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"race_id": race.ID,
				"index":   i,
			}).WithError(err).Warn("Skipping malformed runner entry")
			continue
		}
		set.Runners = append(set.Runners, runner)
	}

	return set, nil
}

// get performs an authenticated GET. A rejected token is invalidated and the call retried once.
func (c *RacingAPIClient) get(ctx context.Context, path string, query url.Values) (*Response, error) {
	resp, err := c.do(ctx, path, query)
	if err != nil && c.auth != nil && IsAuthRejected(err) {
		c.auth.Invalidate(fmt.Sprintf("%s rejected by provider", path))
		resp, err = c.do(ctx, path, query)
	}
	if err != nil {
		var dsErr DataSourceError
		if errors.As(err, &dsErr) {
			return nil, err
		}
		return nil, NewDataSourceError(racingAPIName, codeForFetchError(err), "request "+path+" failed", err)
	}
	return resp, nil
}

func (c *RacingAPIClient) do(ctx context.Context, path string, query url.Values) (*Response, error) {
	req := Request{
		Method: http.MethodGet,
		URL:    c.baseURL + path,
		Query:  url.Values{},
		Header: http.Header{},
	}
	for k, vs := range query {
		req.Query[k] = append([]string(nil), vs...)
	}

	if c.auth != nil {
		token, err := c.auth.AccessToken(ctx)
		if err != nil {
			return nil, NewDataSourceError(racingAPIName, ErrCodeAuthenticationFailed, "could not obtain access token", err)
		}
		if c.authMode == AuthModeAPIKey {
			req.Query.Set(c.apiKeyParam, token)
			req.Sensitive = append(req.Sensitive, token)
		} else {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return c.fetcher.Execute(ctx, req)
}

func (c *RacingAPIClient) convertRace(entry interface{}, q RaceQuery) (models.Race, error) {
	obj, ok := entry.(object)
	if !ok {
		return models.Race{}, fmt.Errorf("%w: race entry is %T", models.ErrMalformedResponse, entry)
	}

	race := models.Race{
		ID:       stringField(obj, c.fields.RaceID),
		Track:    stringField(obj, c.fields.Track),
		Country:  stringField(obj, c.fields.Country),
		Type:     parseRaceType(stringField(obj, c.fields.RaceType)),
		Distance: intField(obj, c.fields.Distance),
	}
	if race.Country == "" {
		race.Country = q.Country
	}
	if t, ok := parseStartTime(stringField(obj, c.fields.Time), q.Date); ok {
		race.StartTime = t
	}

	if v, ok := lookup(obj, c.fields.Runners); ok {
		switch runners := v.(type) {
		case []interface{}:
			race.DeclaredRunners = len(runners)
		default:
			if n := intField(obj, c.fields.Runners); n != nil {
				race.DeclaredRunners = *n
			}
		}
	}

	if err := c.validate.Struct(race); err != nil {
		return models.Race{}, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	return race, nil
}

func (c *RacingAPIClient) convertRunner(entry interface{}, raceID string) (models.Runner, error) {
	obj, ok := entry.(object)
	if !ok {
		return models.Runner{}, fmt.Errorf("%w: runner entry is %T", models.ErrMalformedResponse, entry)
	}

	runner := models.Runner{
		RaceID: raceID,
		Name:   stringField(obj, c.fields.Name),
	}
	if runner.Name == "" {
		return models.Runner{}, fmt.Errorf("%w: runner without a name", models.ErrMalformedResponse)
	}

	raw, ok := lookup(obj, c.fields.WinOdds)
	if !ok {
		return models.Runner{}, fmt.Errorf("%w: runner %s has no win odds", models.ErrMalformedResponse, runner.Name)
	}
	winOdds, err := ParseOdds(raw)
	if err != nil {
		return models.Runner{}, err
	}
	runner.WinOdds = winOdds

	if runner.PlaceOdds, err = optionalFloat(obj, c.fields.PlaceOdds); err != nil {
		return models.Runner{}, err
	}
	if runner.WinProb, err = optionalFloat(obj, c.fields.WinProb); err != nil {
		return models.Runner{}, err
	}
	if runner.PlaceProb, err = optionalFloat(obj, c.fields.PlaceProb); err != nil {
		return models.Runner{}, err
	}

	return runner, nil
}
