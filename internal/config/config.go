// Package config defines the configuration of the agent console services.
// Configuration is loaded once at process start and is immutable afterwards.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Mounted Secret Files (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"agentconsole/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types just to unmask a value.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"agentconsole"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Sync          SyncConfig
	Auth          AuthConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (injected via ldflags, not env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public dashboard URL used for checkout redirects (no trailing slash).
	DashboardURL   string        `envconfig:"DASHBOARD_URL" validate:"required,url"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds queue identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	SyncQueue         string `envconfig:"SQS_PLAN_SYNC" validate:"required,url"`
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe credentials.
type BillingConfig struct {
	StripeSecretKey      SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret  SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	StripePublishableKey string       `envconfig:"STRIPE_PUBLISHABLE_KEY" validate:"required"`
	// StripePriceIDs maps paid tiers to price IDs, e.g. "basic:price_1,premium:price_2".
	StripePriceIDs map[string]string `envconfig:"STRIPE_PRICE_IDS" validate:"required,min=1"`
}

// SyncConfig tunes plan synchronization.
type SyncConfig struct {
	// RemoteTimeout bounds each call to the authoritative plan store.
	RemoteTimeout time.Duration `envconfig:"SYNC_REMOTE_TIMEOUT" default:"3s" validate:"gt=0"`
	// CacheSnapshotPath is where the local plan cache persists between restarts.
	// Empty disables persistence.
	CacheSnapshotPath string `envconfig:"PLAN_CACHE_SNAPSHOT"`
	// RetryDelay is the SQS delay applied to re-enqueued sync requests.
	RetryDelay    time.Duration `envconfig:"SYNC_RETRY_DELAY" default:"30s"`
	MaxRetries    int           `envconfig:"SYNC_MAX_RETRIES" default:"5" validate:"gte=0"`
	TrialDays     int           `envconfig:"PLAN_TRIAL_DAYS" default:"5" validate:"gte=1"`
	NotifyEnabled bool          `envconfig:"SYNC_NOTIFY_ENABLED" default:"true"`
}

// AuthConfig holds session settings.
type AuthConfig struct {
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	BcryptCost int           `envconfig:"BCRYPT_COST" default:"12" validate:"gte=4,lte=31"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"AgentConsole"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSecretResolution indicates a failure resolving a secret reference.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure parsing environment values into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
