// Package config provides configuration management for the racing value application.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix         = "RACING_VALUE"
	defaultConfigPath = "config/config.yaml"
)

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	setDefaults(v)

	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return unmarshal(v)
}

// LoadWithDefaults loads configuration with default values for optional fields.
// A missing file is not an error; defaults and environment variables are used instead.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults holds the provider limits: 0.6s between calls, 10s timeout,
// 3 attempts, top five races.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "racing-value")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("providers.catalog", "racing_api")
	v.SetDefault("providers.racing_api.auth_mode", "password")
	v.SetDefault("providers.racing_api.token_path", "/token")
	v.SetDefault("providers.racing_api.api_key_param", "apiKey")
	v.SetDefault("providers.racing_api.credential", "racing_api")
	v.SetDefault("providers.sportsdb.base_url", "https://www.thesportsdb.com/api/v1/json")
	v.SetDefault("providers.sportsdb.credential", "thesportsdb")
	v.SetDefault("providers.sportsdb.sport", "Horse_Racing")

	v.SetDefault("fetcher.min_interval", "600ms")
	v.SetDefault("fetcher.timeout", "10s")
	v.SetDefault("fetcher.max_attempts", 3)
	v.SetDefault("fetcher.backoff", "exponential")
	v.SetDefault("fetcher.backoff_min", "500ms")
	v.SetDefault("fetcher.backoff_max", "5s")

	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("odds.source", "live")
	v.SetDefault("odds.simulated_seed", 42)
	v.SetDefault("odds.simulated_runners", 8)
	v.SetDefault("odds.simulated_min_odds", 2.0)
	v.SetDefault("odds.simulated_max_odds", 15.0)

	v.SetDefault("engine.place_fraction", 0.2)
	v.SetDefault("engine.place_policy", "top_n_share")
	v.SetDefault("engine.min_ev", 0.0)
	v.SetDefault("engine.positive_only", false)
	v.SetDefault("engine.max_races", 5)

	v.SetDefault("query.country", "GB")
	v.SetDefault("query.race_type", "all")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.catalog_ttl", "5m")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.refresh_cron", "@every 5m")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.daemon_addr", "127.0.0.1:2000")
}
