// Package config provides configuration management for the racing value application.
package config

import (
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App         AppConfig          `mapstructure:"app" validate:"required"`
	Providers   ProvidersConfig    `mapstructure:"providers" validate:"required"`
	Fetcher     FetcherConfig      `mapstructure:"fetcher" validate:"required"`
	Auth        AuthConfig         `mapstructure:"auth" validate:"required"`
	Odds        OddsConfig         `mapstructure:"odds" validate:"required"`
	Engine      EngineConfig       `mapstructure:"engine" validate:"required"`
	Query       QueryConfig        `mapstructure:"query" validate:"required"`
	Cache       CacheConfig        `mapstructure:"cache"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
	Server      ServerConfig       `mapstructure:"server"`
	Tracing     TracingConfig      `mapstructure:"tracing"`
	Secrets     SecretsConfig      `mapstructure:"secrets"`
	Credentials []CredentialConfig `mapstructure:"credentials" validate:"dive"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// ProvidersConfig selects and configures the upstream race data providers
type ProvidersConfig struct {
	Catalog   string          `mapstructure:"catalog" validate:"required,oneof=racing_api sportsdb"`
	RacingAPI RacingAPIConfig `mapstructure:"racing_api"`
	SportsDB  SportsDBConfig  `mapstructure:"sportsdb"`
}

// RacingAPIConfig configures a token-authenticated racing data API
type RacingAPIConfig struct {
	BaseURL     string       `mapstructure:"base_url" validate:"omitempty,url"`
	Credential  string       `mapstructure:"credential"`
	AuthMode    string       `mapstructure:"auth_mode" validate:"omitempty,oneof=password api_key"`
	TokenPath   string       `mapstructure:"token_path"`
	APIKeyParam string       `mapstructure:"api_key_param"`
	Fields      FieldsConfig `mapstructure:"fields"`
}

// FieldsConfig lists candidate JSON field names for provider payloads.
// The first name present in an object wins.
type FieldsConfig struct {
	Races     []string `mapstructure:"races"`
	RaceID    []string `mapstructure:"race_id"`
	Track     []string `mapstructure:"track"`
	Time      []string `mapstructure:"time"`
	Country   []string `mapstructure:"country"`
	RaceType  []string `mapstructure:"race_type"`
	Distance  []string `mapstructure:"distance"`
	Runners   []string `mapstructure:"runners"`
	Name      []string `mapstructure:"name"`
	WinOdds   []string `mapstructure:"win_odds"`
	PlaceOdds []string `mapstructure:"place_odds"`
	WinProb   []string `mapstructure:"win_prob"`
	PlaceProb []string `mapstructure:"place_prob"`
}

// SportsDBConfig configures the TheSportsDB event feed
type SportsDBConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"omitempty,url"`
	Credential string `mapstructure:"credential"`
	Sport      string `mapstructure:"sport"`
}

// FetcherConfig represents outbound call pacing and retry configuration
type FetcherConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval" validate:"gte=0"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"required,gt=0,lte=10"`
	Backoff     string        `mapstructure:"backoff" validate:"required,backoff"`
	BackoffMin  time.Duration `mapstructure:"backoff_min" validate:"gte=0"`
	BackoffMax  time.Duration `mapstructure:"backoff_max" validate:"gte=0"`
}

// AuthConfig represents session token configuration
type AuthConfig struct {
	TokenTTL time.Duration `mapstructure:"token_ttl" validate:"required,gt=0"`
}

// OddsConfig selects the odds source
type OddsConfig struct {
	Source           string  `mapstructure:"source" validate:"required,oddssource"`
	SimulatedSeed    int64   `mapstructure:"simulated_seed"`
	SimulatedRunners int     `mapstructure:"simulated_runners" validate:"gte=0"`
	SimulatedMinOdds float64 `mapstructure:"simulated_min_odds" validate:"gte=0"`
	SimulatedMaxOdds float64 `mapstructure:"simulated_max_odds" validate:"gte=0"`
}

// EngineConfig represents value bet evaluation configuration
type EngineConfig struct {
	PlaceFraction float64 `mapstructure:"place_fraction" validate:"required,gt=0,lte=1"`
	PlacePolicy   string  `mapstructure:"place_policy" validate:"required,placepolicy"`
	MinEV         float64 `mapstructure:"min_ev"`
	PositiveOnly  bool    `mapstructure:"positive_only"`
	MaxRaces      int     `mapstructure:"max_races" validate:"gte=0"`
}

// QueryConfig holds the default race query used by the CLI and the refresher
type QueryConfig struct {
	Country  string `mapstructure:"country" validate:"required,len=2"`
	RaceType string `mapstructure:"race_type" validate:"required,racetype"`
}

// CacheConfig represents race catalog cache configuration
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	CatalogTTL time.Duration `mapstructure:"catalog_ttl" validate:"gte=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ServerConfig represents serve mode configuration
type ServerConfig struct {
	Port           int      `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	RefreshCron    string   `mapstructure:"refresh_cron"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TracingConfig controls AWS X-Ray tracing
type TracingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	DaemonAddr string `mapstructure:"daemon_addr"`
}

// SecretsConfig controls the AWS Secrets Manager credential overlay
type SecretsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Region     string `mapstructure:"region"`
	SecretName string `mapstructure:"secret_name"`
}

// CredentialConfig represents one named provider credential
type CredentialConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	APIKey   string `mapstructure:"api_key"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// UsesRacingAPI reports whether any configured component calls the racing API
func (c *Config) UsesRacingAPI() bool {
	return c.Providers.Catalog == "racing_api" || c.Odds.Source == "live"
}
