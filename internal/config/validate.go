package config

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/relicta-tech/installkit/internal/domain/version"
	rperrors "github.com/relicta-tech/installkit/internal/errors"
)

// minPollInterval keeps the task endpoint from being hammered.
const minPollInterval = 100 * time.Millisecond

// ValidationError contains all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string

	if len(e.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Errors:\n  - %s", strings.Join(e.Errors, "\n  - ")))
	}

	if len(e.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("Warnings:\n  - %s", strings.Join(e.Warnings, "\n  - ")))
	}

	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(parts, "\n"))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (e *ValidationError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// Addf adds a formatted error to the validation error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Warnf adds a formatted warning to the validation error.
func (e *ValidationError) Warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates configuration.
type Validator struct {
	errors *ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: &ValidationError{},
	}
}

// Validate validates the configuration. Warnings never fail validation;
// read them with Warnings.
func (v *Validator) Validate(cfg *Config) error {
	v.validatePoller(cfg.Poller)
	v.validateReleases(cfg.Releases)
	v.validateBundle(cfg.Bundle)
	v.validateHost(cfg.Host)
	v.validateSandbox(cfg.Sandbox)
	v.validateServer(cfg.Server)
	v.validateOutput(cfg.Output)

	if v.errors.HasErrors() {
		return &rperrors.Error{
			Kind:    rperrors.KindConfig,
			Op:      "config.Validate",
			Message: "invalid configuration",
			Err:     v.errors,
		}
	}
	return nil
}

// Warnings returns the warnings collected by Validate.
func (v *Validator) Warnings() []string {
	if !v.errors.HasWarnings() {
		return nil
	}
	return append([]string(nil), v.errors.Warnings...)
}

// Validate validates cfg and returns the warnings.
func Validate(cfg *Config) ([]string, error) {
	v := NewValidator()
	err := v.Validate(cfg)
	return v.Warnings(), err
}

func (v *Validator) validatePoller(cfg PollerConfig) {
	if cfg.Interval <= 0 {
		v.errors.Addf("poller.interval: must be positive, got %s", cfg.Interval)
	} else if cfg.Interval < minPollInterval {
		v.errors.Warnf("poller.interval: %s is very short and may overload the task endpoint", cfg.Interval)
	}
}

func (v *Validator) validateReleases(cfg ReleasesConfig) {
	if cfg.RetryAttempts < 0 {
		v.errors.Addf("releases.retry_attempts: must not be negative, got %d", cfg.RetryAttempts)
	}
	if cfg.RetryAttempts > 0 && cfg.RetryInitialWait <= 0 {
		v.errors.Addf("releases.retry_initial_wait: must be positive when retries are enabled")
	}
	if cfg.RetryMaxWait > 0 && cfg.RetryMaxWait < cfg.RetryInitialWait {
		v.errors.Addf("releases.retry_max_wait: must not be shorter than retry_initial_wait")
	}
	if cfg.RateLimitRPM < 0 {
		v.errors.Addf("releases.rate_limit_rpm: must not be negative, got %d", cfg.RateLimitRPM)
	}
	if cfg.CircuitBreakerEnabled {
		if cfg.CircuitBreakerThreshold <= 0 {
			v.errors.Addf("releases.circuit_breaker_threshold: must be positive, got %d", cfg.CircuitBreakerThreshold)
		}
		if cfg.CircuitBreakerTimeout <= 0 {
			v.errors.Addf("releases.circuit_breaker_timeout: must be positive")
		}
		if cfg.CircuitBreakerMaxRequests <= 0 {
			v.errors.Addf("releases.circuit_breaker_max_requests: must be positive, got %d", cfg.CircuitBreakerMaxRequests)
		}
	}
}

func (v *Validator) validateBundle(cfg BundleConfig) {
	if cfg.MaxConcurrentPolls <= 0 {
		v.errors.Addf("bundle.max_concurrent_polls: must be positive, got %d", cfg.MaxConcurrentPolls)
	}
}

func (v *Validator) validateHost(cfg HostConfig) {
	if cfg.Version == "" {
		return
	}
	if version.Compare(cfg.Version, "0") == 0 {
		v.errors.Warnf("host.version: %q does not look like a version, the host compatibility check is ineffective", cfg.Version)
	}
}

func (v *Validator) validateSandbox(cfg SandboxConfig) {
	if cfg.Catalog != "" {
		if _, err := os.Stat(cfg.Catalog); os.IsNotExist(err) {
			v.errors.Addf("sandbox.catalog: file does not exist: %s", cfg.Catalog)
		}
	}
	if cfg.TaskLatency < 0 {
		v.errors.Addf("sandbox.task_latency: must not be negative")
	}
	if cfg.TaskSteps < 0 {
		v.errors.Addf("sandbox.task_steps: must not be negative, got %d", cfg.TaskSteps)
	}
}

func (v *Validator) validateServer(cfg ServerConfig) {
	if cfg.Addr == "" {
		v.errors.Addf("server.addr: required")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		v.errors.Addf("server.addr: invalid listen address %q: %v", cfg.Addr, err)
	}
	if slices.Contains(cfg.AllowedOrigins, "*") {
		v.errors.Warnf("server.allowed_origins: '*' allows any origin to drive install sessions")
	}
	if cfg.RateLimit < 0 {
		v.errors.Addf("server.rate_limit: must not be negative, got %d", cfg.RateLimit)
	}
	if cfg.APIKey != "" && len(cfg.APIKey) < 16 {
		v.errors.Warnf("server.api_key: keys shorter than 16 characters are easy to guess")
	}
}

func (v *Validator) validateOutput(cfg OutputConfig) {
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, cfg.Format) {
		v.errors.Addf("output.format: must be one of %v, got %q", validFormats, cfg.Format)
	}

	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		v.errors.Addf("output.log_level: must be one of [debug info warn error], got %q", cfg.LogLevel)
	}
}
