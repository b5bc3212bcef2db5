// loader.go implements the configuration loading lifecycle for mailroom.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType categorizes configuration failures for diagnostics.
type ConfigErrorType string

const (
	ErrTypeProcess    ConfigErrorType = "process"
	ErrTypeValidation ConfigErrorType = "validation"
)

// ConfigError is a diagnostic error type returned by Load to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load loads and validates the mailroom configuration from the environment,
// layering a .env file under the OS environment when present.
func Load() (*Config, error) {
	// Enforce UTC for all time handling in this process.
	time.Local = time.UTC

	// Load .env if present. OS environment takes precedence because
	// godotenv.Load never overwrites existing variables.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrTypeProcess,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var configValidate = validator.New()

// validate runs struct-tag validation and the cross-field rules envconfig
// tags cannot express.
func validate(cfg *Config) error {
	if err := configValidate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrTypeValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	// The SendGrid provider cannot run without a key. The stub provider is
	// only acceptable outside prod.
	if cfg.Email.Provider == "sendgrid" && cfg.Email.SendGridKey == "" {
		return &ConfigError{
			Type:    ErrTypeValidation,
			Message: "EMAIL_PROVIDER=sendgrid requires SENDGRID_API_KEY",
		}
	}
	if cfg.Environment == "prod" && cfg.Email.Provider == "stub" {
		return &ConfigError{
			Type:    ErrTypeValidation,
			Message: "stub email provider is not allowed in prod",
		}
	}

	return nil
}
