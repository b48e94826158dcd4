package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
)

// Pre-compiled patterns for environment variable expansion.
var (
	// envVarPattern matches ${VAR} or ${VAR:-default} syntax
	envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
	// simpleEnvVarPattern matches $VAR syntax
	simpleEnvVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// EnvPrefix is the prefix of environment overrides, e.g. INSTALLKIT_POLLER_INTERVAL.
const EnvPrefix = "INSTALLKIT"

// Loader handles configuration loading and merging.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".installkit"))
	}

	return &Loader{
		v:           v,
		searchPaths: paths,
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths replaces the directories searched for config files.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = paths
	return l
}

// Load loads the configuration.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to load config file")
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, rperrors.ConfigWrap(err, op, "failed to unmarshal config")
	}

	l.expandEnvVars(cfg)

	return cfg, nil
}

// setDefaults sets default values using Viper.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("poller.interval", defaults.Poller.Interval)

	l.v.SetDefault("upload.legacy_rejected_success", defaults.Upload.LegacyRejectedSuccess)

	l.v.SetDefault("releases.retry_attempts", defaults.Releases.RetryAttempts)
	l.v.SetDefault("releases.retry_initial_wait", defaults.Releases.RetryInitialWait)
	l.v.SetDefault("releases.retry_max_wait", defaults.Releases.RetryMaxWait)
	l.v.SetDefault("releases.rate_limit_rpm", defaults.Releases.RateLimitRPM)
	l.v.SetDefault("releases.circuit_breaker_enabled", defaults.Releases.CircuitBreakerEnabled)
	l.v.SetDefault("releases.circuit_breaker_threshold", defaults.Releases.CircuitBreakerThreshold)
	l.v.SetDefault("releases.circuit_breaker_timeout", defaults.Releases.CircuitBreakerTimeout)
	l.v.SetDefault("releases.circuit_breaker_max_requests", defaults.Releases.CircuitBreakerMaxRequests)

	l.v.SetDefault("bundle.max_concurrent_polls", defaults.Bundle.MaxConcurrentPolls)

	l.v.SetDefault("host.version", defaults.Host.Version)

	l.v.SetDefault("sandbox.catalog", defaults.Sandbox.Catalog)
	l.v.SetDefault("sandbox.task_latency", defaults.Sandbox.TaskLatency)
	l.v.SetDefault("sandbox.task_steps", defaults.Sandbox.TaskSteps)

	l.v.SetDefault("server.addr", defaults.Server.Addr)
	l.v.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	l.v.SetDefault("server.api_key", defaults.Server.APIKey)
	l.v.SetDefault("server.rate_limit", defaults.Server.RateLimit)

	l.v.SetDefault("output.format", defaults.Output.Format)
	l.v.SetDefault("output.color", defaults.Output.Color)
	l.v.SetDefault("output.log_level", defaults.Output.LogLevel)
	l.v.SetDefault("output.trace", defaults.Output.Trace)
}

// loadConfigFile loads the configuration file.
func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", l.configPath, err)
		}
		return nil
	}

	configFile, err := FindConfigFile(l.searchPaths...)
	if err != nil {
		// No config file found - this is OK, we use defaults
		return nil
	}
	l.v.SetConfigFile(configFile)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", configFile, err)
	}
	return nil
}

// expandEnvVars expands environment variables in path-like fields.
func (l *Loader) expandEnvVars(cfg *Config) {
	cfg.Sandbox.Catalog = expandEnvVar(cfg.Sandbox.Catalog)
	cfg.Server.Addr = expandEnvVar(cfg.Server.Addr)
	cfg.Server.APIKey = expandEnvVar(cfg.Server.APIKey)
	cfg.Host.Version = expandEnvVar(cfg.Host.Version)
}

// expandEnvVar expands environment variables in a string.
// Supports both ${VAR} and $VAR syntax.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}

		varName := submatch[1]
		defaultValue := ""
		if len(submatch) > 2 {
			defaultValue = submatch[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})

	result = simpleEnvVarPattern.ReplaceAllStringFunc(result, func(match string) string {
		varName := match[1:]
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match
	})

	return result
}

// GetConfigPath returns the path to the loaded config file, if any.
func (l *Loader) GetConfigPath() string {
	return l.v.ConfigFileUsed()
}

// MergeConfig overrides configuration values, typically from command flags.
func (l *Loader) MergeConfig(values map[string]any) {
	for key, value := range values {
		l.v.Set(key, value)
	}
}

// WriteConfig writes cfg to path. The format follows the file extension.
func WriteConfig(cfg *Config, path string) error {
	const op = "config.WriteConfig"

	v := viper.New()
	v.Set("poller.interval", cfg.Poller.Interval.String())
	v.Set("upload.legacy_rejected_success", cfg.Upload.LegacyRejectedSuccess)
	v.Set("releases.retry_attempts", cfg.Releases.RetryAttempts)
	v.Set("releases.retry_initial_wait", cfg.Releases.RetryInitialWait.String())
	v.Set("releases.retry_max_wait", cfg.Releases.RetryMaxWait.String())
	v.Set("releases.rate_limit_rpm", cfg.Releases.RateLimitRPM)
	v.Set("releases.circuit_breaker_enabled", cfg.Releases.CircuitBreakerEnabled)
	v.Set("releases.circuit_breaker_threshold", cfg.Releases.CircuitBreakerThreshold)
	v.Set("releases.circuit_breaker_timeout", cfg.Releases.CircuitBreakerTimeout.String())
	v.Set("releases.circuit_breaker_max_requests", cfg.Releases.CircuitBreakerMaxRequests)
	v.Set("bundle.max_concurrent_polls", cfg.Bundle.MaxConcurrentPolls)
	v.Set("host.version", cfg.Host.Version)
	v.Set("sandbox.catalog", cfg.Sandbox.Catalog)
	v.Set("sandbox.task_latency", cfg.Sandbox.TaskLatency.String())
	v.Set("sandbox.task_steps", cfg.Sandbox.TaskSteps)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.Set("server.rate_limit", cfg.Server.RateLimit)
	v.Set("output.format", cfg.Output.Format)
	v.Set("output.color", cfg.Output.Color)
	v.Set("output.log_level", cfg.Output.LogLevel)
	v.Set("output.trace", cfg.Output.Trace)

	if err := v.WriteConfigAs(path); err != nil {
		return rperrors.ConfigWrap(err, op, "failed to write config file")
	}
	return nil
}

// WriteDefaultConfig writes the default configuration to a file.
func WriteDefaultConfig(path string) error {
	return WriteConfig(DefaultConfig(), path)
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// FindConfigFile searches for a config file and returns its path.
func FindConfigFile(searchPaths ...string) (string, error) {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}

	for _, searchPath := range searchPaths {
		for _, name := range ConfigFileNames {
			for _, ext := range ConfigFileExtensions {
				configFile := filepath.Join(searchPath, name+"."+ext)
				if _, err := os.Stat(configFile); err == nil {
					return configFile, nil
				}
			}
		}
	}

	return "", rperrors.NotFound("config.FindConfigFile", "no config file found")
}
