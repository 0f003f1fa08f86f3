package service

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/racing-value/internal/auth"
	"github.com/yourusername/racing-value/internal/clock"
	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/credentials"
	"github.com/yourusername/racing-value/internal/datasource"
	"github.com/yourusername/racing-value/internal/tracing"
)

// Components holds everything a run needs, built from configuration
type Components struct {
	Fetcher *datasource.RateLimitedHTTPClient
	Tokens  *auth.TokenManager // nil unless the racing API is in use
	Catalog datasource.RaceCatalog
	Odds    datasource.OddsSource
	Service *ValueBetService
}

// Close releases the idle connections of the shared fetcher
func (c *Components) Close() error {
	if c.Fetcher == nil {
		return nil
	}
	return c.Fetcher.Close()
}

// Build wires the credential store, fetcher, token manager and providers described by cfg.
// One fetcher is shared by every provider so the minimum call interval holds process-wide.
func Build(cfg *config.Config, log *logrus.Logger, opts ...datasource.Option) (*Components, error) {
	clk := clock.Clock(clock.Real{})
	if tracing.Enabled() {
		base := http.DefaultTransport.(*http.Transport).Clone()
		opts = append([]datasource.Option{datasource.WithTransport(tracing.Transport(base))}, opts...)
	}
	store := credentials.NewStoreFromConfig(cfg.Credentials)
	fetcher := datasource.NewRateLimitedHTTPClient(datasource.HTTPClientConfigFromConfig(cfg.Fetcher), log, opts...)
	factory := datasource.NewFactory(cfg, store, log)

	c := &Components{Fetcher: fetcher}

	var api *datasource.RacingAPIClient
	if cfg.UsesRacingAPI() {
		c.Tokens = auth.NewTokenManager(fetcher, store, auth.OptionsFromConfig(cfg), clk, log)
		var err error
		api, err = factory.NewRacingAPIClient(fetcher, c.Tokens)
		if err != nil {
			return nil, fmt.Errorf("failed to create racing API client: %w", err)
		}
	}

	catalog, err := factory.NewCatalog(fetcher, api)
	if err != nil {
		return nil, err
	}
	odds, err := factory.NewOddsSource(api)
	if err != nil {
		return nil, err
	}
	c.Catalog = catalog
	c.Odds = odds

	var session SessionResetter
	if c.Tokens != nil {
		session = c.Tokens
	}
	c.Service = NewValueBetService(catalog, odds, session, ServiceOptionsFromConfig(cfg.Engine), clk, log)

	for _, source := range factory.ListAvailableSources() {
		log.WithField("source", source).Debug("Data source configured")
	}

	return c, nil
}
