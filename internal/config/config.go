// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net/url"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Ingest    IngestConfig
	Providers ProviderConfig
	Data      DataConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
// Either URL or the discrete DB_HOST/DB_NAME settings must be provided;
// when both are present URL wins.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// Host is the database host when no URL is given
	Host string `env:"DB_HOST"`

	// Port is the database port (default: 5432)
	Port int `env:"DB_PORT" default:"5432"`

	// User is the database user when no URL is given
	User string `env:"DB_USER"`

	// Password is the database password when no URL is given
	Password string `env:"DB_PASSWORD"`

	// Name is the database name when no URL is given
	Name string `env:"DB_NAME"`

	// SSLMode sets the sslmode query parameter on assembled connection strings
	SSLMode string `env:"DB_SSLMODE"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IngestConfig holds CSV ingestion and provider run settings.
type IngestConfig struct {
	// MaxFileSize is the maximum allowed CSV size in bytes (default: 100MB)
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel ingestions (default: 5)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an ingestion slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	// RetryAttempts is the number of attempts per provider run (default: 3)
	RetryAttempts int `env:"INGEST_RETRY_ATTEMPTS" default:"3"`

	// RetryBackoff is the pause between provider run attempts (default: 5s)
	RetryBackoff time.Duration `env:"INGEST_RETRY_BACKOFF" default:"5s"`

	// RunLogSize is how many finished runs to keep in memory (default: 200)
	RunLogSize int `env:"INGEST_RUN_LOG_SIZE" default:"200"`

	// InboxDir is the root directory watched for dropped CSV files.
	// Empty disables the inbox watcher.
	InboxDir string `env:"INGEST_INBOX_DIR"`

	// SettleDelay is how long a dropped file must sit unchanged before
	// it is picked up (default: 2s)
	SettleDelay time.Duration `env:"INGEST_SETTLE_DELAY" default:"2s"`
}

// ProviderConfig holds external data provider settings.
type ProviderConfig struct {
	// StartDate bounds provider history fetches, YYYY-MM-DD.
	// Empty fetches full history.
	StartDate string `env:"PROVIDER_START_DATE"`

	// SGSSchedule is a cron expression for scheduled SGS runs.
	// Empty disables the schedule.
	SGSSchedule string `env:"SGS_SCHEDULE"`

	// FREDSchedule is a cron expression for scheduled FRED runs.
	// Empty disables the schedule.
	FREDSchedule string `env:"FRED_SCHEDULE"`

	// FREDAPIKey authenticates FRED requests
	// Supports both FRED_API_KEY and PERSEVERA_FRED_API_KEY for compatibility
	FREDAPIKey string `env:"FRED_API_KEY" envAlt:"PERSEVERA_FRED_API_KEY"`
}

// DataConfig holds the table names the readers query.
type DataConfig struct {
	// IndicatorTable is the long-format indicator table (default: indicadores)
	IndicatorTable string `env:"TABLE_INDICATORS" default:"indicadores"`

	// DescriptorTable is the equity descriptor table (default: descriptor_zoo)
	DescriptorTable string `env:"TABLE_DESCRIPTORS" default:"descriptor_zoo"`

	// CompositionTable is the index membership table (default: b3_index_composition)
	CompositionTable string `env:"TABLE_COMPOSITION" default:"b3_index_composition"`

	// DefinitionsTable maps raw provider codes to canonical codes (default: indicadores_definicoes)
	DefinitionsTable string `env:"TABLE_DEFINITIONS" default:"indicadores_definicoes"`

	// SecuritiesTable lists active securities (default: b3_active_securities)
	SecuritiesTable string `env:"TABLE_SECURITIES" default:"b3_active_securities"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects requests without a valid key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// ConnString returns the pgx connection string, preferring the explicit
// URL and otherwise assembling one from the discrete DB_* settings.
func (c *DatabaseConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + itoa(c.Port),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = "sslmode=" + c.SSLMode
	}
	return u.String()
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
