// Package config provides configuration management for installkit.
package config

import (
	"time"
)

// Config is the root configuration for installkit.
type Config struct {
	// Poller configures task status polling.
	Poller PollerConfig `mapstructure:"poller" json:"poller"`
	// Upload configures upload normalization.
	Upload UploadConfig `mapstructure:"upload" json:"upload"`
	// Releases configures GitHub release lookups.
	Releases ReleasesConfig `mapstructure:"releases" json:"releases"`
	// Bundle configures bundle installs.
	Bundle BundleConfig `mapstructure:"bundle" json:"bundle"`
	// Host describes the host the plugins are installed into.
	Host HostConfig `mapstructure:"host" json:"host"`
	// Sandbox configures the in-memory backend.
	Sandbox SandboxConfig `mapstructure:"sandbox" json:"sandbox"`
	// Server configures the session API.
	Server ServerConfig `mapstructure:"server" json:"server"`
	// Output configures output settings.
	Output OutputConfig `mapstructure:"output" json:"output"`
}

// PollerConfig configures task status polling.
type PollerConfig struct {
	// Interval is the wait between two task status fetches.
	Interval time.Duration `mapstructure:"interval" json:"interval"`
}

// UploadConfig configures upload normalization.
type UploadConfig struct {
	// LegacyRejectedSuccess treats a rejected upload without an error
	// message as a success.
	LegacyRejectedSuccess bool `mapstructure:"legacy_rejected_success" json:"legacy_rejected_success"`
}

// ReleasesConfig configures the resilient release fetcher.
type ReleasesConfig struct {
	RetryAttempts             int           `mapstructure:"retry_attempts" json:"retry_attempts"`
	RetryInitialWait          time.Duration `mapstructure:"retry_initial_wait" json:"retry_initial_wait"`
	RetryMaxWait              time.Duration `mapstructure:"retry_max_wait" json:"retry_max_wait"`
	RateLimitRPM              int           `mapstructure:"rate_limit_rpm" json:"rate_limit_rpm"`
	CircuitBreakerEnabled     bool          `mapstructure:"circuit_breaker_enabled" json:"circuit_breaker_enabled"`
	CircuitBreakerThreshold   int           `mapstructure:"circuit_breaker_threshold" json:"circuit_breaker_threshold"`
	CircuitBreakerTimeout     time.Duration `mapstructure:"circuit_breaker_timeout" json:"circuit_breaker_timeout"`
	CircuitBreakerMaxRequests int           `mapstructure:"circuit_breaker_max_requests" json:"circuit_breaker_max_requests"`
}

// BundleConfig configures bundle installs.
type BundleConfig struct {
	// MaxConcurrentPolls bounds how many member tasks are polled at once.
	MaxConcurrentPolls int `mapstructure:"max_concurrent_polls" json:"max_concurrent_polls"`
}

// HostConfig describes the host.
type HostConfig struct {
	// Version enables the minimum host version warning when set.
	Version string `mapstructure:"version" json:"version,omitempty"`
}

// SandboxConfig configures the in-memory backend.
type SandboxConfig struct {
	// Catalog is a YAML or TOML file with repositories and marketplace entries.
	Catalog string `mapstructure:"catalog" json:"catalog,omitempty"`
	// TaskLatency is how long each task step takes.
	TaskLatency time.Duration `mapstructure:"task_latency" json:"task_latency"`
	// TaskSteps is how many running steps a task reports before finishing.
	TaskSteps int `mapstructure:"task_steps" json:"task_steps"`
}

// ServerConfig configures the session API.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr" json:"addr"`
	// AllowedOrigins lists CORS origins.
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins,omitempty"`
	// APIKey, when set, is required on every /api request.
	APIKey string `mapstructure:"api_key" json:"-"`
	// RateLimit is the number of API requests allowed per client per minute.
	// Zero disables rate limiting.
	RateLimit int `mapstructure:"rate_limit" json:"rate_limit"`
}

// OutputConfig configures output settings.
type OutputConfig struct {
	// Format is the log format (text, json).
	Format string `mapstructure:"format" json:"format"`
	// Color enables colored output.
	Color bool `mapstructure:"color" json:"color"`
	// LogLevel is the log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	// Trace logs a span for every poll, upload and install at debug level.
	Trace bool `mapstructure:"trace" json:"trace"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Poller: PollerConfig{
			Interval: 10 * time.Second,
		},
		Releases: ReleasesConfig{
			RetryAttempts:             3,
			RetryInitialWait:          500 * time.Millisecond,
			RetryMaxWait:              10 * time.Second,
			RateLimitRPM:              30,
			CircuitBreakerEnabled:     true,
			CircuitBreakerThreshold:   5,
			CircuitBreakerTimeout:     30 * time.Second,
			CircuitBreakerMaxRequests: 1,
		},
		Bundle: BundleConfig{
			MaxConcurrentPolls: 4,
		},
		Sandbox: SandboxConfig{
			TaskLatency: 2 * time.Second,
			TaskSteps:   2,
		},
		Server: ServerConfig{
			Addr:      ":8089",
			RateLimit: 600,
		},
		Output: OutputConfig{
			Format:   "text",
			Color:    true,
			LogLevel: "info",
		},
	}
}

// ConfigFileNames to search for.
var ConfigFileNames = []string{
	"installkit.config",
}

// ConfigFileExtensions supported by Viper.
var ConfigFileExtensions = []string{
	"yaml",
	"yml",
	"json",
	"toml",
}
