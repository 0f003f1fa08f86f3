package datasource

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/credentials"
)

// SourceType represents the type of data source
type SourceType string

const (
	// RacingAPISourceType is the token-authenticated racing API
	RacingAPISourceType SourceType = "racing_api"
	// SportsDBSourceType is TheSportsDB events feed
	SportsDBSourceType SourceType = "sportsdb"
	// LiveOddsType prices runners from the racing API
	LiveOddsType SourceType = "live"
	// SimulatedOddsType prices runners from the seeded generator
	SimulatedOddsType SourceType = "simulated"
)

// Factory creates catalogs and odds sources based on configuration
type Factory struct {
	logger *logrus.Logger
	config *config.Config
	store  *credentials.Store
}

// NewFactory creates a new data source factory
func NewFactory(cfg *config.Config, store *credentials.Store, logger *logrus.Logger) *Factory {
	return &Factory{
		logger: logger,
		config: cfg,
		store:  store,
	}
}

// NewRacingAPIClient creates the racing API client shared by the catalog and the live odds source
func (f *Factory) NewRacingAPIClient(fetcher Fetcher, auth Authenticator) (*RacingAPIClient, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("HTTP client is required")
	}
	rc := f.config.Providers.RacingAPI
	if rc.BaseURL == "" {
		return nil, fmt.Errorf("racing API base URL is required")
	}
	return NewRacingAPIClient(fetcher, auth, RacingAPIOptions{
		BaseURL:     rc.BaseURL,
		AuthMode:    rc.AuthMode,
		APIKeyParam: rc.APIKeyParam,
		Fields:      FieldNamesFromConfig(rc.Fields),
	}, f.logger), nil
}

// NewCatalog creates the configured race catalog, wrapped in a cache when enabled.
// api is reused when the racing API is the catalog and may be nil otherwise.
func (f *Factory) NewCatalog(fetcher Fetcher, api *RacingAPIClient) (RaceCatalog, error) {
	var catalog RaceCatalog

	switch SourceType(f.config.Providers.Catalog) {
	case RacingAPISourceType:
		if api == nil {
			return nil, fmt.Errorf("racing API client is required for the %s catalog", RacingAPISourceType)
		}
		catalog = api

	case SportsDBSourceType:
		sc := f.config.Providers.SportsDB
		cred, err := f.store.Lookup(sc.Credential)
		if err != nil {
			return nil, fmt.Errorf("failed to create sportsdb catalog: %w", err)
		}
		if !cred.HasAPIKey() {
			return nil, fmt.Errorf("failed to create sportsdb catalog: %w: %s has no api_key",
				credentials.ErrCredentialMissing, sc.Credential)
		}
		catalog = NewSportsDBClient(fetcher, sc.BaseURL, cred.APIKey, sc.Sport, f.logger)

	default:
		return nil, fmt.Errorf("unknown race catalog: %s", f.config.Providers.Catalog)
	}

	if f.config.Cache.Enabled {
		catalog = NewCachedCatalog(catalog, f.config.Cache.CatalogTTL, f.logger)
	}
	return catalog, nil
}

// NewOddsSource creates the configured odds source
func (f *Factory) NewOddsSource(api *RacingAPIClient) (OddsSource, error) {
	switch SourceType(f.config.Odds.Source) {
	case LiveOddsType:
		if api == nil {
			return nil, fmt.Errorf("racing API client is required for live odds")
		}
		return api, nil
	case SimulatedOddsType:
		return NewSimulatedOddsSource(f.config.Odds), nil
	default:
		return nil, fmt.Errorf("unknown odds source: %s", f.config.Odds.Source)
	}
}

// ListAvailableSources returns the source types this configuration uses
func (f *Factory) ListAvailableSources() []SourceType {
	if f.config == nil {
		return nil
	}
	return []SourceType{
		SourceType(f.config.Providers.Catalog),
		SourceType(f.config.Odds.Source),
	}
}
