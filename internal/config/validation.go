// Package config provides configuration management for the racing value application.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	// Registration only fails on an empty tag or nil func
	_ = v.RegisterValidation("environment", oneOfFunc("development", "staging", "production"))
	_ = v.RegisterValidation("loglevel", oneOfFunc("debug", "info", "warn", "error"))
	_ = v.RegisterValidation("racetype", oneOfFunc("flat", "jumps", "all"))
	_ = v.RegisterValidation("placepolicy", oneOfFunc("top_n_share", "scaled", "provider"))
	_ = v.RegisterValidation("oddssource", oneOfFunc("live", "simulated"))
	_ = v.RegisterValidation("backoff", oneOfFunc("fixed", "exponential"))

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

func oneOfFunc(allowed ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, a := range allowed {
			if value == a {
				return true
			}
		}
		return false
	}
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	if cfg.UsesRacingAPI() {
		if cfg.Providers.RacingAPI.BaseURL == "" {
			return fmt.Errorf("providers.racing_api.base_url is required when the racing API is used")
		}
		if cfg.Providers.RacingAPI.Credential == "" {
			return fmt.Errorf("providers.racing_api.credential is required when the racing API is used")
		}
	}

	if cfg.Providers.Catalog == "sportsdb" && cfg.Providers.SportsDB.Credential == "" {
		return fmt.Errorf("providers.sportsdb.credential is required for the sportsdb catalog")
	}

	if cfg.Fetcher.BackoffMax > 0 && cfg.Fetcher.BackoffMin > cfg.Fetcher.BackoffMax {
		return fmt.Errorf("fetcher.backoff_min cannot exceed fetcher.backoff_max")
	}

	if cfg.Odds.Source == "simulated" {
		if cfg.Odds.SimulatedMinOdds <= 1.0 {
			return fmt.Errorf("odds.simulated_min_odds must be greater than 1.0")
		}
		if cfg.Odds.SimulatedMinOdds >= cfg.Odds.SimulatedMaxOdds {
			return fmt.Errorf("odds.simulated_min_odds must be below odds.simulated_max_odds")
		}
	}

	if cfg.Secrets.Enabled && (cfg.Secrets.Region == "" || cfg.Secrets.SecretName == "") {
		return fmt.Errorf("secrets.region and secrets.secret_name are required when secrets are enabled")
	}

	seen := make(map[string]bool, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		if seen[c.Name] {
			return fmt.Errorf("duplicate credential name %q", c.Name)
		}
		seen[c.Name] = true
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var b strings.Builder
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required":
			fmt.Fprintf(&b, "- Field '%s' is required\n", field)
		case "url":
			fmt.Fprintf(&b, "- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max", "len":
			fmt.Fprintf(&b, "- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			fmt.Fprintf(&b, "- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			fmt.Fprintf(&b, "- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			fmt.Fprintf(&b, "- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "racetype":
			fmt.Fprintf(&b, "- Field '%s' must be one of: flat, jumps, all\n", field)
		case "placepolicy":
			fmt.Fprintf(&b, "- Field '%s' must be one of: top_n_share, scaled, provider\n", field)
		case "oddssource":
			fmt.Fprintf(&b, "- Field '%s' must be one of: live, simulated\n", field)
		case "backoff":
			fmt.Fprintf(&b, "- Field '%s' must be one of: fixed, exponential\n", field)
		case "oneof":
			fmt.Fprintf(&b, "- Field '%s' has invalid value '%v'\n", field, value)
		default:
			fmt.Fprintf(&b, "- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", b.String())
}

// ValidateEnvironment validates environment-specific requirements
func ValidateEnvironment(cfg *Config) error {
	if cfg.IsProduction() {
		if cfg.Odds.Source == "simulated" {
			return fmt.Errorf("production environment must not use simulated odds")
		}
		for _, c := range cfg.Credentials {
			if isTestCredential(c.APIKey) || isTestCredential(c.Username) {
				return fmt.Errorf("production environment should not use test credential %q", c.Name)
			}
		}
	}

	return nil
}

// isTestCredential checks if a credential looks like a test credential
func isTestCredential(credential string) bool {
	if credential == "" {
		return false
	}

	testPatterns := []string{
		"test", "demo", "example", "placeholder", "YOUR_",
	}

	for _, pattern := range testPatterns {
		if match, _ := regexp.MatchString("(?i)"+pattern, credential); match {
			return true
		}
	}

	return false
}
