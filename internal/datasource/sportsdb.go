package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/racing-value/internal/logger"
	"github.com/yourusername/racing-value/internal/models"
)

const sportsDBName = "thesportsdb"

// countryNames maps ISO codes to the country names TheSportsDB reports
var countryNames = map[string][]string{
	"GB": {"united kingdom", "uk", "great britain", "england", "scotland", "wales"},
	"IE": {"ireland"},
	"FR": {"france"},
	"US": {"united states", "usa"},
	"AU": {"australia"},
}

// SportsDBClient implements RaceCatalog on TheSportsDB daily events feed.
// The feed has no country parameter, so races are filtered on strCountry after the call.
type SportsDBClient struct {
	fetcher Fetcher
	baseURL string
	apiKey  string
	sport   string
	logger  *logrus.Entry
}

type sportsDBEvents struct {
	Events []sportsDBEvent `json:"events"`
}

type sportsDBEvent struct {
	ID        string `json:"idEvent"`
	Event     string `json:"strEvent"`
	Venue     string `json:"strVenue"`
	Date      string `json:"dateEvent"`
	Time      string `json:"strTime"`
	Timestamp string `json:"strTimestamp"`
	Country   string `json:"strCountry"`
}

// NewSportsDBClient creates a new TheSportsDB client
func NewSportsDBClient(fetcher Fetcher, baseURL, apiKey, sport string, log *logrus.Logger) *SportsDBClient {
	if sport == "" {
		sport = "Horse_Racing"
	}
	return &SportsDBClient{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		sport:   sport,
		logger:  logger.Component(log, sportsDBName),
	}
}

// Name returns the data source name
func (c *SportsDBClient) Name() string {
	return sportsDBName
}

// ListRaces retrieves the day's events and keeps those run in the requested country
func (c *SportsDBClient) ListRaces(ctx context.Context, q RaceQuery) ([]models.Race, error) {
	resp, err := c.fetcher.Execute(ctx, Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/%s/eventsday.php", c.baseURL, url.PathEscape(c.apiKey)),
		Query: url.Values{
			"d": {q.DateString()},
			"s": {c.sport},
		},
		Sensitive: []string{c.apiKey},
	})
	if err != nil {
		return nil, NewDataSourceError(sportsDBName, codeForFetchError(err), "failed to fetch events", err)
	}

	var payload sportsDBEvents
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, NewDataSourceError(sportsDBName, ErrCodeInvalidData, "failed to parse events",
			fmt.Errorf("%w: %v", models.ErrMalformedResponse, err))
	}

	races := make([]models.Race, 0, len(payload.Events))
	for _, e := range payload.Events {
		if q.Country != "" && !countryMatches(q.Country, e.Country) {
			continue
		}
		race, ok := c.convertEvent(e, q)
		if !ok {
			c.logger.WithField("event", e.Event).Warn("Skipping event without identity")
			continue
		}
		races = append(races, race)
	}

	return races, nil
}

func (c *SportsDBClient) convertEvent(e sportsDBEvent, q RaceQuery) (models.Race, bool) {
	track := e.Event
	if e.Venue != "" {
		track = e.Venue
	}
	id := e.ID
	if id == "" && track != "" {
		id = e.Date + ":" + track
	}
	if id == "" || track == "" {
		return models.Race{}, false
	}

	race := models.Race{
		ID:      id,
		Track:   track,
		Country: q.Country,
	}

	switch {
	case e.Timestamp != "":
		race.StartTime, _ = parseStartTime(e.Timestamp, q.Date)
	case e.Date != "" && e.Time != "":
		race.StartTime, _ = parseStartTime(e.Date+" "+e.Time, q.Date)
	}

	return race, true
}

// countryMatches compares an ISO code with a provider country label
func countryMatches(code, label string) bool {
	label = strings.ToLower(strings.TrimSpace(label))
	if strings.EqualFold(code, label) {
		return true
	}
	for _, name := range countryNames[strings.ToUpper(code)] {
		if label == name {
			return true
		}
	}
	return false
}
