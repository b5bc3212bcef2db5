// Package config defines the global configuration structure for mailroom.
// Configuration is loaded once at process initialization (Lambda cold start)
// and is immutable thereafter. It follows 12-Factor App principles by
// strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to
// fail immediately on startup (fail fast).
package config

import (
	"time"
)

// Config is the top-level configuration struct for mailroom.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"mailroom"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Email    EmailConfig
	Site     SiteConfig
}

// ServerConfig holds HTTP server configuration for the ops API.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region        string `envconfig:"AWS_REGION" default:"us-east-1"`
	EmailJobQueue string `envconfig:"SQS_EMAIL_JOBS" validate:"omitempty,url"`
}

// EmailConfig holds the outbound email provider configuration.
type EmailConfig struct {
	Provider    string `envconfig:"EMAIL_PROVIDER" default:"stub"` // "sendgrid" or "stub"
	SendGridKey string `envconfig:"SENDGRID_API_KEY"`
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"noreply@forum.local"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"Forum"`
	BaseURL     string `envconfig:"FORUM_BASE_URL" default:"http://forum.local"`
}

// SiteConfig carries the forum site settings the decision engine reads.
// They are threaded explicitly into the policy engine at call time rather
// than read as ambient globals.
type SiteConfig struct {
	// Name is the forum's display name, used in subjects and templates.
	Name string `envconfig:"SITE_NAME" default:"Forum"`

	// EmailTimeWindowMins is the recency throttle: users seen within this
	// window do not receive non-forced email.
	EmailTimeWindowMins int `envconfig:"EMAIL_TIME_WINDOW_MINS" default:"10" validate:"gte=0"`

	// AllowAnonymousPosting enables the anonymous-recipient rules for
	// private messages.
	AllowAnonymousPosting bool `envconfig:"ALLOW_ANONYMOUS_POSTING" default:"false"`
}

// IsLocal reports whether the process runs in the local environment, which
// enables stub providers and stdin-driven workers.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}
