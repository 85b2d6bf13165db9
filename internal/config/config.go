// Package config holds all runtime configuration for bulk-restore.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Default provider endpoint and token secret, overridable per invocation.
const (
	DefaultBaseURL    = "https://us-west-2.api.clumio.com/"
	DefaultSecretPath = "clumio/token/bulk_restore"
)

// Config holds all configuration options
type Config struct {
	// Version information
	Version   string
	BuildTime string
	GitCommit string

	// Provider connection
	BaseURL     string // Backup service endpoint
	Token       string // Bearer token; fetched from Secrets Manager when empty
	TokenSecret string // Secrets Manager secret id for the token fallback
	AWSRegion   string // Region for the Secrets Manager client

	// Input/output
	InputPath  string // Restore definition document (JSON or YAML)
	OutputPath string // Combined report destination ("" = stdout)

	// Concurrency
	MaxConcurrentRestores int // In-flight dispatches per restore set

	// Discovery retry (transient provider errors)
	DiscoveryMaxRetries     int
	DiscoveryInitialBackoff time.Duration
	DiscoveryMaxBackoff     time.Duration

	// Status polling
	PollInterval    time.Duration // Base interval between status polls
	PollMaxInterval time.Duration // Backoff ceiling between polls
	PollMaxAttempts int           // Transient poll failures before giving up
	PollTimeout     time.Duration // Overall per-job polling deadline

	// Output options
	NoColor   bool
	Debug     bool
	LogLevel  string
	LogFormat string
}

// New creates a configuration populated from environment variables
// with sensible defaults
func New() *Config {
	return &Config{
		BaseURL:     getEnv("BULKRESTORE_BASE_URL", DefaultBaseURL),
		Token:       getEnv("BULKRESTORE_TOKEN", ""),
		TokenSecret: getEnv("BULKRESTORE_TOKEN_SECRET", DefaultSecretPath),
		AWSRegion:   getEnv("AWS_REGION", "us-west-2"),

		MaxConcurrentRestores: getEnvInt("BULKRESTORE_MAX_CONCURRENT", 4),

		DiscoveryMaxRetries:     getEnvInt("BULKRESTORE_DISCOVERY_RETRIES", 5),
		DiscoveryInitialBackoff: getEnvDuration("BULKRESTORE_DISCOVERY_BACKOFF", 500*time.Millisecond),
		DiscoveryMaxBackoff:     getEnvDuration("BULKRESTORE_DISCOVERY_MAX_BACKOFF", 30*time.Second),

		PollInterval:    getEnvDuration("BULKRESTORE_POLL_INTERVAL", 20*time.Second),
		PollMaxInterval: getEnvDuration("BULKRESTORE_POLL_MAX_INTERVAL", 60*time.Second),
		PollMaxAttempts: getEnvInt("BULKRESTORE_POLL_ATTEMPTS", 5),
		PollTimeout:     getEnvDuration("BULKRESTORE_POLL_TIMEOUT", 60*time.Minute),

		NoColor:   getEnvBool("NO_COLOR", false),
		Debug:     getEnvBool("BULKRESTORE_DEBUG", false),
		LogLevel:  getEnv("BULKRESTORE_LOG_LEVEL", "info"),
		LogFormat: getEnv("BULKRESTORE_LOG_FORMAT", "text"),
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errMissing("base URL")
	}
	if c.MaxConcurrentRestores < 1 {
		return errInvalid("max concurrent restores must be at least 1")
	}
	if c.PollMaxAttempts < 1 {
		return errInvalid("poll attempt ceiling must be at least 1")
	}
	if c.PollInterval <= 0 {
		return errInvalid("poll interval must be positive")
	}
	return nil
}

// APIHost returns the base URL without the scheme prefix, the form the
// provider client expects
func (c *Config) APIHost() string {
	return strings.TrimSuffix(strings.TrimPrefix(c.BaseURL, "https://"), "/")
}

type configError string

func (e configError) Error() string { return string(e) }

func errMissing(what string) error { return configError("missing " + what) }
func errInvalid(what string) error { return configError("invalid configuration: " + what) }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
